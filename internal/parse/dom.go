// Package parse extracts candidates from people-search result and detail
// pages. All markup heuristics live here so they can be revised without
// touching the pipeline.
package parse

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// findAll returns every node under n (inclusive) matching pred, in
// document order.
func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if pred(node) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isElement(n *html.Node, atoms ...atom.Atom) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, a := range atoms {
		if n.DataAtom == a {
			return true
		}
	}
	return false
}

func isHeading(n *html.Node) bool {
	return isElement(n, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6)
}

func skipped(n *html.Node) bool {
	return isElement(n, atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Svg)
}

// text returns the whitespace-collapsed text content of n.
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if skipped(node) {
			return
		}
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			b.WriteByte(' ')
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapse(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// blockAtoms end a visual line when rendered.
var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Br: true, atom.Tr: true, atom.Td: true, atom.Th: true, atom.Table: true,
	atom.Section: true, atom.Article: true, atom.Header: true, atom.Footer: true,
	atom.Dt: true, atom.Dd: true, atom.Dl: true, atom.Address: true,
}

// line is one rendered line of text and whether it came from a heading.
type line struct {
	Text    string
	Heading bool
}

// lines renders n into visual text lines, splitting at block elements.
func lines(n *html.Node) []line {
	var out []line
	var cur strings.Builder
	heading := 0

	flush := func() {
		t := collapse(cur.String())
		cur.Reset()
		if t != "" {
			out = append(out, line{Text: t, Heading: heading > 0})
		}
	}

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if skipped(node) {
			return
		}
		if node.Type == html.TextNode {
			cur.WriteString(node.Data)
			cur.WriteByte(' ')
			return
		}
		block := node.Type == html.ElementNode && blockAtoms[node.DataAtom]
		if block {
			flush()
		}
		if isHeading(node) {
			heading++
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			flush()
		}
		if isHeading(node) {
			heading--
		}
	}
	walk(n)
	flush()
	return out
}
