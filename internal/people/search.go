// Package people builds people-search URLs from a query.
package people

import (
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/address-resolver/internal/model"
)

// credentialSuffixes are dropped from names before building a slug.
var credentialSuffixes = map[string]bool{
	"jr": true, "sr": true, "ii": true, "iii": true, "iv": true, "v": true,
	"md": true, "do": true, "phd": true, "dds": true, "dmd": true, "esq": true,
	"cpa": true, "rn": true, "np": true, "pa": true, "mba": true, "jd": true,
	"cfa": true, "cfp": true, "pe": true, "dvm": true, "od": true,
}

// StripDiacritics folds accented letters to their base form ("José" -> "Jose").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CleanName removes diacritics, credential suffixes and punctuation from a
// name part, leaving space-separated words.
func CleanName(name string) string {
	name = StripDiacritics(name)
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == ','
	})

	var kept []string
	for i, f := range fields {
		key := strings.ToLower(strings.ReplaceAll(f, ".", ""))
		// Only the leading word is protected, so "Do" stays a given name.
		if i > 0 && credentialSuffixes[key] {
			continue
		}
		word := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
				return r
			}
			return -1
		}, f)
		if word != "" {
			kept = append(kept, word)
		}
	}
	return strings.Join(kept, " ")
}

// slug title-cases s and joins its words with hyphens. Casers are stateful,
// so each call gets its own.
func slug(s string) string {
	s = cases.Title(language.English).String(strings.ToLower(s))
	return strings.Join(strings.Fields(s), "-")
}

// SearchURL returns {base}/name/{First}-{Last}/{City}-{ST}. The location
// segment is omitted when both city and state are unknown and reduced to
// whichever part is known otherwise.
func SearchURL(base string, q model.PersonQuery) string {
	base = strings.TrimRight(base, "/")

	name := slug(CleanName(q.FirstName) + " " + CleanName(q.LastName))
	u := base + "/name/" + url.PathEscape(name)

	city := slug(CleanName(q.City))
	var loc string
	switch {
	case city != "" && q.State != "":
		loc = city + "-" + q.State
	case city != "":
		loc = city
	case q.State != "":
		loc = q.State
	}
	if loc != "" {
		u += "/" + url.PathEscape(loc)
	}
	return u
}
