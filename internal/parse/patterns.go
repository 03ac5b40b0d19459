package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/address-resolver/internal/model"
)

// DetailMarker identifies links to a person's detail page.
const DetailMarker = "/find/person/"

var (
	// "Austin, TX", "Lives in Austin, Texas".
	locationRe = regexp.MustCompile(`(?i)^(?:(?:lives|living|resides) in\s+|current(?:ly)?(?: in)?:?\s+)?([a-z][a-z .'-]*?),\s*([a-z][a-z .]*?)\.?$`)

	// Optional street, then "City, ST ZIP?".
	addressRe = regexp.MustCompile(`^(?:(.+?),\s*)?([A-Za-z][A-Za-z .'-]*),\s*([A-Z]{2})(?:\s+(\d{5})(?:-\d{4})?)?$`)

	// "Age 47", "Age: 47", "in their 50s", "40s".
	ageRe      = regexp.MustCompile(`(?i)\b(?:age[:\s]*|in (?:their|his|her) )(\d{2})(s)?\b`)
	ageLooseRe = regexp.MustCompile(`\b(\d{2})s\b`)

	phoneRe = regexp.MustCompile(`(?:\+?1[\s.-]*)?\(?\b(\d{3})\)?[\s.-]*(\d{3})[\s.-]*(\d{4})\b`)

	uiRe = regexp.MustCompile(`(?i)\b(view|unlock|powered|see (?:more|all|full)|show more|sign up|log in|click|report|premium|subscribe|upgrade)\b`)

	nameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z.'-]*(?:\s+[A-Za-z][A-Za-z.'-]*){1,4}$`)

	streetRe = regexp.MustCompile(`^\d+[A-Za-z]?\s+\S`)
)

type section int

const (
	sectionNone section = iota
	sectionAddress
	sectionPhones
	sectionRelatives
	sectionPrevious
)

// sectionNames maps heading prefixes (lowercase) to sections.
var sectionNames = []struct {
	prefix  string
	section section
}{
	{"current address", sectionAddress},
	{"address", sectionAddress},
	{"landlines", sectionPhones},
	{"landline", sectionPhones},
	{"phone numbers", sectionPhones},
	{"wireless", sectionPhones},
	{"relatives & associates", sectionRelatives},
	{"relatives and associates", sectionRelatives},
	{"relatives", sectionRelatives},
	{"associates", sectionRelatives},
	{"previous addresses", sectionPrevious},
	{"past addresses", sectionPrevious},
}

// sectionOf reports which section a line heads, if any. A heading is the
// section name optionally followed by a count, as in "Phone Numbers (3)";
// "Address: 1 Main St" is content, not a heading.
func sectionOf(l string) section {
	lower := strings.ToLower(strings.TrimSpace(l))
	for _, s := range sectionNames {
		if !strings.HasPrefix(lower, s.prefix) {
			continue
		}
		rest := strings.Trim(lower[len(s.prefix):], " :()0123456789")
		if rest == "" {
			return s.section
		}
	}
	return sectionNone
}

func isUILine(l string) bool {
	return uiRe.MatchString(l)
}

func looksLikeName(l string) bool {
	return nameRe.MatchString(l) && sectionOf(l) == sectionNone && !isUILine(l)
}

// splitLocation parses "City, ST" (or a full state name) into a city and a
// normalized state code.
func splitLocation(s string) (city, state string, ok bool) {
	m := locationRe.FindStringSubmatch(collapse(s))
	if m == nil {
		return "", "", false
	}
	state = model.NormalizeState(m[2])
	if state == "" {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), state, true
}

// ageBracket extracts "47" or "40s" from free text.
func ageBracket(s string) string {
	if m := ageRe.FindStringSubmatch(s); m != nil {
		return m[1] + m[2]
	}
	if m := ageLooseRe.FindStringSubmatch(s); m != nil {
		return m[1] + "s"
	}
	return ""
}

// phones returns every 10-digit number in s as (xxx) xxx-xxxx.
func phones(s string) []string {
	var out []string
	for _, m := range phoneRe.FindAllStringSubmatch(s, -1) {
		out = append(out, fmt.Sprintf("(%s) %s-%s", m[1], m[2], m[3]))
	}
	return out
}

// splitName splits a display name into first and last by whitespace.
func splitName(display string) (first, last string) {
	fields := strings.Fields(display)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], fields[len(fields)-1]
	}
}
