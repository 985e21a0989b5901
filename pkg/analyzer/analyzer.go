package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/amosWeiskopf/pagesmith/internal/models"
	"github.com/amosWeiskopf/pagesmith/pkg/classifier"
	"github.com/amosWeiskopf/pagesmith/pkg/extractor"
	"github.com/amosWeiskopf/pagesmith/pkg/parser"
	"github.com/amosWeiskopf/pagesmith/pkg/utils"
)

// ErrInvalidURL is returned for requests that are not absolute http(s) URLs.
var ErrInvalidURL = errors.New("invalid URL")

// PageFetcher retrieves the HTML of the analyzed page.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// LinkClassifier partitions absolute links relative to the page's domain.
type LinkClassifier interface {
	Classify(raw []string, sourceDomain string) []models.LinkRecord
}

// LinkVerifier probes links and returns the broken ones.
type LinkVerifier interface {
	Verify(ctx context.Context, links []models.LinkRecord) []models.LinkStatus
}

// Config holds analyzer configuration
type Config struct {
	// Deadline bounds the whole analysis, fetch and verification included.
	// Zero means no overall deadline.
	Deadline time.Duration
}

// Analyzer sequences fetch, extraction, classification and verification
type Analyzer struct {
	fetcher    PageFetcher
	classifier LinkClassifier
	verifier   LinkVerifier
	config     Config
	logger     zerolog.Logger
	now        func() time.Time
}

// New creates a new Analyzer instance
func New(f PageFetcher, c LinkClassifier, v LinkVerifier, config Config, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		fetcher:    f,
		classifier: c,
		verifier:   v,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// Analyze fetches pageURL and builds its report. Only an invalid URL or a
// failed fetch returns an error; link probe failures end up in the report.
func (a *Analyzer) Analyze(ctx context.Context, pageURL string) (*models.PageReport, error) {
	u, err := utils.ParseAbsoluteURL(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	pageURL = strings.TrimSpace(pageURL)

	log := a.logger.With().Str("url", pageURL).Logger()
	log.Debug().Msg("Starting page analysis")

	if a.config.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Deadline)
		defer cancel()
	}

	started := a.now()

	// Fetch
	body, err := a.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		log.Warn().Err(err).Msg("Page fetch failed")
		return nil, err
	}

	// Extract
	ex := extractor.New(parser.Parse(body))
	report := &models.PageReport{
		URL:          pageURL,
		Title:        ex.Title(),
		HTMLVersion:  ex.HTMLVersion(),
		Headings:     ex.HeadingCounts(),
		HasLoginForm: ex.HasLoginForm(),
	}

	// Classify
	links := a.classifier.Classify(ex.RawLinks(), u.Host)
	report.InternalLinks, report.ExternalLinks = classifier.Count(links)

	// Verify every absolute link, internal and external alike
	report.BrokenLinks = a.verifier.Verify(ctx, links)
	if report.BrokenLinks == nil {
		report.BrokenLinks = []models.LinkStatus{}
	}
	report.AnalyzedAt = a.now().UTC()

	event := log.Info()
	if len(report.BrokenLinks) > 0 {
		event = log.Warn()
	}
	event.
		Str("title", report.Title).
		Str("html_version", report.HTMLVersion).
		Int("internal_links", report.InternalLinks).
		Int("external_links", report.ExternalLinks).
		Int("broken_links", len(report.BrokenLinks)).
		Bool("has_login_form", report.HasLoginForm).
		Dur("elapsed", a.now().Sub(started)).
		Msg("Page analysis complete")

	return report, nil
}
