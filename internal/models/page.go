package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ErrorMarker is the status recorded for a link whose probe never produced
// an HTTP response.
const ErrorMarker = "error"

// LinkKind classifies a link relative to the analyzed page.
type LinkKind string

const (
	// Internal links belong to the analyzed page's site.
	Internal LinkKind = "internal"
	// External links point somewhere else.
	External LinkKind = "external"
)

// LinkRecord is an absolute link found on the page together with its class.
type LinkRecord struct {
	URL  string   `json:"url"`
	Kind LinkKind `json:"kind"`
}

// ProbeStatus is either an HTTP status code or the error marker.
type ProbeStatus struct {
	Code   int
	Failed bool
}

// StatusCode returns a ProbeStatus carrying an HTTP status.
func StatusCode(code int) ProbeStatus {
	return ProbeStatus{Code: code}
}

// StatusError returns the ProbeStatus used for transport failures.
func StatusError() ProbeStatus {
	return ProbeStatus{Failed: true}
}

func (s ProbeStatus) String() string {
	if s.Failed {
		return ErrorMarker
	}
	return strconv.Itoa(s.Code)
}

// MarshalJSON encodes the status as a number, or as "error" for failures.
func (s ProbeStatus) MarshalJSON() ([]byte, error) {
	if s.Failed {
		return json.Marshal(ErrorMarker)
	}
	return json.Marshal(s.Code)
}

// UnmarshalJSON accepts either form written by MarshalJSON.
func (s *ProbeStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var marker string
		if err := json.Unmarshal(data, &marker); err != nil {
			return err
		}
		if marker != ErrorMarker {
			return fmt.Errorf("unknown link status %q", marker)
		}
		*s = StatusError()
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("invalid link status: %w", err)
	}
	*s = StatusCode(code)
	return nil
}

// LinkStatus records a link that failed its reachability probe.
type LinkStatus struct {
	URL    string      `json:"url"`
	Status ProbeStatus `json:"status"`
}

// Headings holds the number of h1..h6 elements on a page.
type Headings struct {
	H1 int `json:"h1"`
	H2 int `json:"h2"`
	H3 int `json:"h3"`
	H4 int `json:"h4"`
	H5 int `json:"h5"`
	H6 int `json:"h6"`
}

// Level returns the count for heading level 1-6, zero for any other level.
func (h Headings) Level(level int) int {
	switch level {
	case 1:
		return h.H1
	case 2:
		return h.H2
	case 3:
		return h.H3
	case 4:
		return h.H4
	case 5:
		return h.H5
	case 6:
		return h.H6
	}
	return 0
}

// Total sums all levels.
func (h Headings) Total() int {
	return h.H1 + h.H2 + h.H3 + h.H4 + h.H5 + h.H6
}

// PageReport is the outcome of analyzing a single page.
type PageReport struct {
	URL           string       `json:"url"`
	Title         string       `json:"title"`
	HTMLVersion   string       `json:"html_version"`
	Headings      Headings     `json:"headings"`
	InternalLinks int          `json:"internal_links"`
	ExternalLinks int          `json:"external_links"`
	HasLoginForm  bool         `json:"has_login_form"`
	BrokenLinks   []LinkStatus `json:"broken_links"`
	AnalyzedAt    time.Time    `json:"analyzed_at"`
}

// Result is a persisted report, with the heading counts flattened.
type Result struct {
	ID            int64        `json:"id"`
	URL           string       `json:"url"`
	Title         string       `json:"title"`
	HTMLVersion   string       `json:"html_version"`
	H1            int          `json:"h1"`
	H2            int          `json:"h2"`
	H3            int          `json:"h3"`
	H4            int          `json:"h4"`
	H5            int          `json:"h5"`
	H6            int          `json:"h6"`
	InternalLinks int          `json:"internal_links"`
	ExternalLinks int          `json:"external_links"`
	HasLoginForm  bool         `json:"has_login_form"`
	BrokenLinks   []LinkStatus `json:"broken_links"`
	CreatedAt     time.Time    `json:"created_at"`
}

// NewResult flattens a report into a row. ID and CreatedAt are left for the store.
func NewResult(report *PageReport) Result {
	broken := report.BrokenLinks
	if broken == nil {
		broken = []LinkStatus{}
	}
	return Result{
		URL:           report.URL,
		Title:         report.Title,
		HTMLVersion:   report.HTMLVersion,
		H1:            report.Headings.H1,
		H2:            report.Headings.H2,
		H3:            report.Headings.H3,
		H4:            report.Headings.H4,
		H5:            report.Headings.H5,
		H6:            report.Headings.H6,
		InternalLinks: report.InternalLinks,
		ExternalLinks: report.ExternalLinks,
		HasLoginForm:  report.HasLoginForm,
		BrokenLinks:   broken,
	}
}

// Report rebuilds the nested report shape from a stored row.
func (r Result) Report() *PageReport {
	broken := r.BrokenLinks
	if broken == nil {
		broken = []LinkStatus{}
	}
	return &PageReport{
		URL:         r.URL,
		Title:       r.Title,
		HTMLVersion: r.HTMLVersion,
		Headings: Headings{
			H1: r.H1, H2: r.H2, H3: r.H3,
			H4: r.H4, H5: r.H5, H6: r.H6,
		},
		InternalLinks: r.InternalLinks,
		ExternalLinks: r.ExternalLinks,
		HasLoginForm:  r.HasLoginForm,
		BrokenLinks:   broken,
		AnalyzedAt:    r.CreatedAt,
	}
}
