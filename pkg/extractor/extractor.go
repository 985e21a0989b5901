package extractor

import (
	"fmt"
	"strings"

	"github.com/amosWeiskopf/pagesmith/internal/models"
	"github.com/amosWeiskopf/pagesmith/pkg/parser"
)

const (
	// DefaultTitle is reported when the page has no usable <title>.
	DefaultTitle = "No Title"

	// DefaultHTMLVersion is reported when <html> carries no version attribute.
	// HTML5 defines no such attribute, so modern pages always land here; only
	// legacy documents that set it explicitly get a different label.
	DefaultHTMLVersion = "HTML5 or unknown"
)

// Extractor runs structural analysis over a parsed page
type Extractor struct {
	doc *parser.Document
}

// New creates a new Extractor for doc
func New(doc *parser.Document) *Extractor {
	return &Extractor{doc: doc}
}

// Title returns the trimmed text of the first <title> element
func (e *Extractor) Title() string {
	el, ok := e.doc.First("title")
	if !ok {
		return DefaultTitle
	}
	if title := el.Text(); title != "" {
		return title
	}
	return DefaultTitle
}

// HTMLVersion returns the version attribute of the root <html> element
func (e *Extractor) HTMLVersion() string {
	root, ok := e.doc.Root()
	if !ok {
		return DefaultHTMLVersion
	}
	version, ok := root.Attr("version")
	if !ok {
		return DefaultHTMLVersion
	}
	return version
}

// HeadingCounts tallies h1 through h6
func (e *Extractor) HeadingCounts() models.Headings {
	var counts [7]int
	for level := 1; level <= 6; level++ {
		counts[level] = e.doc.Count(fmt.Sprintf("h%d", level))
	}
	return models.Headings{
		H1: counts[1], H2: counts[2], H3: counts[3],
		H4: counts[4], H5: counts[5], H6: counts[6],
	}
}

// HasLoginForm reports whether any <input> is a password field
func (e *Extractor) HasLoginForm() bool {
	for _, input := range e.doc.All("input") {
		kind, ok := input.Attr("type")
		if ok && strings.EqualFold(kind, "password") {
			return true
		}
	}
	return false
}

// RawLinks returns every absolute anchor href in document order. Duplicates
// are kept; relative, fragment, mailto and other non-http hrefs are dropped.
func (e *Extractor) RawLinks() []string {
	links := []string{}
	for _, a := range e.doc.All("a") {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			continue
		}
		if !strings.HasPrefix(href, "http") {
			continue
		}
		links = append(links, href)
	}
	return links
}
