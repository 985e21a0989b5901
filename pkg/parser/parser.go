// Package parser turns fetched markup into a queryable document tree.
// Parsing follows the HTML5 tree-construction rules, so malformed input
// never fails: missing or mismatched tags simply yield a different tree.
package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is a parsed page.
type Document struct {
	doc *goquery.Document
}

// Element is a single node of a Document. The zero Element represents
// "not found" and answers every query with an empty result.
type Element struct {
	sel *goquery.Selection
}

// Parse builds a Document from markup.
func Parse(markup string) *Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		// only reader failures end up here, and strings.Reader has none
		doc = goquery.NewDocumentFromNode(&html.Node{Type: html.DocumentNode})
	}
	return &Document{doc: doc}
}

// First returns the first element with the given tag in document order.
func (d *Document) First(tag string) (Element, bool) {
	sel := d.doc.Find(tag).First()
	if sel.Length() == 0 {
		return Element{}, false
	}
	return Element{sel: sel}, true
}

// All returns every element with the given tag in document order.
func (d *Document) All(tag string) []Element {
	sel := d.doc.Find(tag)
	elements := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, Element{sel: s})
	})
	return elements
}

// Count returns the number of elements with the given tag.
func (d *Document) Count(tag string) int {
	return d.doc.Find(tag).Length()
}

// Root returns the document's <html> element.
func (d *Document) Root() (Element, bool) {
	for n := d.doc.Get(0).FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode && n.Data == "html" {
			return Element{sel: goquery.NewDocumentFromNode(n).Selection}, true
		}
	}
	return Element{}, false
}

// Tag returns the element name, or "" for the zero Element.
func (e Element) Tag() string {
	if e.sel == nil {
		return ""
	}
	return goquery.NodeName(e.sel)
}

// Attr looks up an attribute. The boolean reports presence, so an attribute
// written with an empty value is distinguishable from a missing one.
func (e Element) Attr(name string) (string, bool) {
	if e.sel == nil {
		return "", false
	}
	return e.sel.Attr(strings.ToLower(name))
}

// Text returns the element's text content with surrounding whitespace trimmed.
func (e Element) Text() string {
	if e.sel == nil {
		return ""
	}
	return strings.TrimSpace(e.sel.Text())
}
