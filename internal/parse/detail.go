package parse

import (
	"bytes"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/address-resolver/internal/model"
)

// ErrNotParseable is returned by ParseDetail when a page has no usable
// content at all. Missing sections are not errors.
var ErrNotParseable = eris.New("parse: detail page has no usable content")

// relativeLookahead is how many lines after a relative's name may carry
// their age and location.
const relativeLookahead = 2

// ParseDetail reads a person detail page into a candidate holding whatever
// sections the page has: current address, phones, relatives, previous
// addresses. A candidate with only a name is a valid result.
func ParseDetail(doc []byte) (model.Candidate, error) {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		return model.Candidate{}, eris.Wrap(ErrNotParseable, err.Error())
	}

	var c model.Candidate
	if h1 := findAll(root, func(n *html.Node) bool { return isElement(n, atom.H1) }); len(h1) > 0 {
		if name := text(h1[0]); looksLikeName(name) {
			c.DisplayName = name
			c.FirstName, c.LastName = splitName(name)
		}
	}

	sections := partition(lines(root))
	found := 0

	if ls := sections[sectionAddress]; len(ls) > 0 {
		if addrs := addresses(ls); len(addrs) > 0 {
			a := addrs[0]
			c.StreetAddress, c.Locality, c.Region, c.PostalCode = a.street, a.city, a.state, a.zip
			found++
		}
	}

	if ls := sections[sectionPhones]; len(ls) > 0 {
		seen := make(map[string]bool)
		for _, l := range ls {
			for _, p := range phones(l) {
				if !seen[p] {
					seen[p] = true
					c.Phones = append(c.Phones, p)
				}
			}
		}
		if len(c.Phones) > 0 {
			found++
		}
	}

	if ls := sections[sectionRelatives]; len(ls) > 0 {
		c.Relatives = relatives(ls)
		if len(c.Relatives) > 0 {
			found++
		}
	}

	if ls := sections[sectionPrevious]; len(ls) > 0 {
		for _, a := range addresses(ls) {
			c.PreviousAddresses = append(c.PreviousAddresses, a.String())
		}
		if len(c.PreviousAddresses) > 0 {
			found++
		}
	}

	if c.DisplayName == "" && found == 0 {
		return model.Candidate{}, ErrNotParseable
	}
	if found == 0 {
		zap.L().Debug("parse: detail page has a name but no known sections",
			zap.String("name", c.DisplayName))
	}
	return c, nil
}

// partition groups non-UI lines under the most recent section heading.
// Lines before the first heading are dropped.
func partition(ls []line) map[section][]string {
	out := make(map[section][]string)
	cur := sectionNone
	for _, l := range ls {
		if s := sectionOf(l.Text); s != sectionNone {
			cur = s
			continue
		}
		// Any other heading closes the open section.
		if l.Heading {
			cur = sectionNone
			continue
		}
		if cur == sectionNone || isUILine(l.Text) {
			continue
		}
		out[cur] = append(out[cur], l.Text)
	}
	return out
}

type address struct {
	street, city, state, zip string
}

func (a address) String() string {
	c := model.Candidate{StreetAddress: a.street, Locality: a.city, Region: a.state, PostalCode: a.zip}
	if s := c.FullAddress(); s != "" {
		return s
	}
	return strings.TrimSpace(a.city + ", " + a.state + " " + a.zip)
}

// addresses finds "City, ST ZIP?" lines. The street is either the part of
// the same line before the city or the street-looking line just above it.
func addresses(ls []string) []address {
	var out []address
	for i, l := range ls {
		m := addressRe.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		a := address{street: strings.TrimSpace(m[1]), city: strings.TrimSpace(m[2]), state: m[3], zip: m[4]}
		if model.NormalizeState(a.state) == "" {
			continue
		}
		if a.street == "" && i > 0 && streetRe.MatchString(ls[i-1]) {
			a.street = ls[i-1]
		}
		out = append(out, a)
	}
	return out
}

// relatives reads (name, age?, location?) groups: a name line optionally
// followed within relativeLookahead lines by an age line and a location
// line.
func relatives(ls []string) []model.Relative {
	var out []model.Relative
	for i := 0; i < len(ls); i++ {
		if !looksLikeName(ls[i]) {
			continue
		}
		r := model.Relative{Name: ls[i]}
		j := i + 1
		for ; j < len(ls) && j <= i+relativeLookahead; j++ {
			next := ls[j]
			if age := ageBracket(next); age != "" && r.Age == "" && len(next) < 20 {
				r.Age = age
				continue
			}
			if city, state, ok := splitLocation(next); ok && r.Location == "" {
				r.Location = city + ", " + state
				continue
			}
			break
		}
		out = append(out, r)
		i = j - 1
	}
	return out
}
