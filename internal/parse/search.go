package parse

import (
	"bytes"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sells-group/address-resolver/internal/model"
)

// maxCardDepth bounds the ancestor walk from a detail link to its card.
const maxCardDepth = 10

// ParseSearch extracts up to maxResults candidate stubs from a search
// results page. Candidates are unique by detail ref and ranked 1..N in
// document order. Malformed markup yields fewer (possibly zero) candidates,
// never an error.
func ParseSearch(doc []byte, maxResults int) []model.Candidate {
	root, err := html.Parse(bytes.NewReader(doc))
	if err != nil {
		zap.L().Debug("parse: search page unreadable", zap.Error(err))
		return nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	links := findAll(root, func(n *html.Node) bool {
		return isElement(n, atom.A) && strings.Contains(attr(n, "href"), DetailMarker)
	})

	seen := make(map[string]bool)
	var out []model.Candidate
	for _, a := range links {
		if len(out) >= maxResults {
			break
		}
		ref := normalizeRef(attr(a, "href"))
		if ref == "" || seen[ref] {
			continue
		}
		c, ok := candidateFromLink(a)
		if !ok {
			continue
		}
		seen[ref] = true
		c.DetailRef = ref
		c.Rank = len(out) + 1
		out = append(out, c)
	}
	return out
}

// normalizeRef strips query, fragment and trailing slash so the same
// person linked from several layouts dedupes to one ref.
func normalizeRef(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if !strings.Contains(p, DetailMarker) {
		return ""
	}
	if u.Host != "" {
		return u.Scheme + "://" + u.Host + p
	}
	return p
}

// candidateFromLink walks up from a detail link until an ancestor holds
// both a name heading and a location, then reads the card. The walk gives
// up once an ancestor holds more than one card name. A link whose own text
// names someone else (a relative listed on the card) yields nothing.
func candidateFromLink(a *html.Node) (model.Candidate, bool) {
	n := a
	for depth := 0; n != nil && depth < maxCardDepth; depth++ {
		if n.Type == html.ElementNode {
			if len(nameElements(n)) > 1 {
				return model.Candidate{}, false
			}
			name := cardName(n)
			city, state, hasLoc := cardLocation(n)
			if name != "" && hasLoc {
				if label := text(a); looksLikeName(label) && !sameName(label, name) {
					return model.Candidate{}, false
				}
				first, last := splitName(name)
				return model.Candidate{
					DisplayName: name,
					FirstName:   first,
					LastName:    last,
					AgeBracket:  ageBracket(text(n)),
					City:        city,
					State:       state,
				}, true
			}
		}
		n = n.Parent
	}
	return model.Candidate{}, false
}

// cardName returns the first heading under n that reads as a person's name.
func cardName(n *html.Node) string {
	if names := nameElements(n); len(names) > 0 {
		return text(names[0])
	}
	return ""
}

// nameElements returns the outermost elements under n that read as a
// card's name: headings, or classed elements in layouts without one.
// Links are skipped so relatives listed on a card do not count.
func nameElements(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		if x.Type == html.ElementNode && !isElement(x, atom.A) &&
			(isHeading(x) || hasClassWord(x, "name")) && looksLikeName(text(x)) {
			out = append(out, x)
			return
		}
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// sameName reports whether two display names share a first and last name.
// Middle names and initials are ignored.
func sameName(a, b string) bool {
	af, al := splitName(a)
	bf, bl := splitName(b)
	return strings.EqualFold(af, bf) && strings.EqualFold(al, bl)
}

// cardLocation returns the first element under n whose own text is a
// "City, ST" location.
func cardLocation(n *html.Node) (city, state string, ok bool) {
	for _, el := range findAll(n, func(x *html.Node) bool { return x.Type == html.ElementNode }) {
		if hasElementChild(el) && !isHeading(el) {
			continue
		}
		if c, s, found := splitLocation(text(el)); found {
			return c, s, true
		}
	}
	return "", "", false
}

func hasElementChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && !isElement(c, atom.Br, atom.Span, atom.Strong, atom.B, atom.Em, atom.I) {
			return true
		}
	}
	return false
}

func hasClassWord(n *html.Node, word string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		c = strings.ToLower(c)
		if c == word || strings.HasSuffix(c, "-"+word) || strings.HasSuffix(c, "_"+word) {
			return true
		}
	}
	return false
}
