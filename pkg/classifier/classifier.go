package classifier

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/amosWeiskopf/pagesmith/internal/models"
)

// Policy decides when a link host belongs to the analyzed site.
type Policy string

const (
	// PolicySubstring treats a link as internal when the source domain occurs
	// anywhere in its host. This admits hosts such as notexample.com for
	// example.com and is kept as the default behavior.
	PolicySubstring Policy = "substring"

	// PolicyRegistrable compares registrable domains (eTLD+1), so
	// sub.example.com is internal to example.com but notexample.com is not.
	PolicyRegistrable Policy = "registrable"
)

// Classifier partitions absolute links into internal and external.
type Classifier struct {
	policy Policy
}

// New returns a classifier for policy. An empty policy means PolicySubstring.
func New(policy Policy) (*Classifier, error) {
	switch policy {
	case "":
		policy = PolicySubstring
	case PolicySubstring, PolicyRegistrable:
	default:
		return nil, fmt.Errorf("unknown classification policy %q", policy)
	}
	return &Classifier{policy: policy}, nil
}

// Policy returns the active policy.
func (c *Classifier) Policy() Policy {
	return c.policy
}

// Classify labels each raw link, preserving order and duplicates.
func (c *Classifier) Classify(raw []string, sourceDomain string) []models.LinkRecord {
	records := make([]models.LinkRecord, 0, len(raw))
	for _, link := range raw {
		kind := models.External
		if c.isInternal(link, sourceDomain) {
			kind = models.Internal
		}
		records = append(records, models.LinkRecord{URL: link, Kind: kind})
	}
	return records
}

// Classify applies PolicySubstring.
func Classify(raw []string, sourceDomain string) []models.LinkRecord {
	return (&Classifier{policy: PolicySubstring}).Classify(raw, sourceDomain)
}

// Count returns the number of internal and external records.
func Count(records []models.LinkRecord) (internal, external int) {
	for _, r := range records {
		if r.Kind == models.Internal {
			internal++
		} else {
			external++
		}
	}
	return internal, external
}

// SourceDomain returns the host (with port, if any) of the analyzed page.
func SourceDomain(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page URL: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("page URL %q has no host", pageURL)
	}
	return u.Host, nil
}

func (c *Classifier) isInternal(link, sourceDomain string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}

	switch c.policy {
	case PolicyRegistrable:
		return sameRegistrableDomain(u.Hostname(), hostname(sourceDomain))
	default:
		return strings.Contains(u.Host, sourceDomain)
	}
}

func sameRegistrableDomain(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ra, errA := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(a))
	rb, errB := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(b))
	if errA != nil || errB != nil {
		// single-label hosts such as localhost have no registrable domain
		return strings.EqualFold(a, b)
	}
	return ra == rb
}

// hostname strips an optional port from a host[:port] string.
func hostname(host string) string {
	return (&url.URL{Host: host}).Hostname()
}
