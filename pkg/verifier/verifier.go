package verifier

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/amosWeiskopf/pagesmith/internal/models"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultMaxWorkers = 16
)

// Options configures a Verifier.
type Options struct {
	Timeout           time.Duration // per probe
	MaxWorkers        int
	RequestsPerSecond float64 // zero disables the limiter
	Coalesce          bool    // share one probe between identical URLs in flight
	UserAgent         string
}

// Verifier probes links for reachability with HEAD requests.
type Verifier struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New creates a Verifier on top of a shared client.
func New(client *http.Client, opts Options, logger zerolog.Logger) *Verifier {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = defaultMaxWorkers
	}

	v := &Verifier{client: client, opts: opts, logger: logger}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		v.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return v
}

// Verify probes every link occurrence and returns the broken ones in input
// order. Probe failures are reported as data and never returned as errors.
// Cancelling ctx stops pending and in-flight probes; those links are
// reported with the error marker.
func (v *Verifier) Verify(ctx context.Context, links []models.LinkRecord) []models.LinkStatus {
	outcomes := make([]*models.LinkStatus, len(links))

	// Plain Group, not WithContext: one failing probe must not cancel the rest.
	var g errgroup.Group
	g.SetLimit(v.opts.MaxWorkers)

	var flight *singleflight.Group
	if v.opts.Coalesce {
		flight = &singleflight.Group{}
	}

	started := time.Now()
	for i, link := range links {
		g.Go(func() error {
			outcomes[i] = v.check(ctx, flight, link.URL)
			return nil
		})
	}
	_ = g.Wait()

	broken := make([]models.LinkStatus, 0)
	for _, outcome := range outcomes {
		if outcome != nil {
			broken = append(broken, *outcome)
		}
	}

	v.logger.Debug().
		Int("checked", len(links)).
		Int("broken", len(broken)).
		Dur("elapsed", time.Since(started)).
		Msg("Link verification finished")

	return broken
}

func (v *Verifier) check(ctx context.Context, flight *singleflight.Group, link string) *models.LinkStatus {
	var (
		status int
		err    error
	)
	if flight != nil {
		var val any
		val, err, _ = flight.Do(link, func() (any, error) {
			return v.probe(ctx, link)
		})
		if err == nil {
			status = val.(int)
		}
	} else {
		status, err = v.probe(ctx, link)
	}

	log := v.logger.With().Str("link", link).Logger()
	switch {
	case err != nil:
		log.Debug().Err(err).Msg("Link probe failed")
		return &models.LinkStatus{URL: link, Status: models.StatusError()}
	case status >= http.StatusBadRequest:
		log.Debug().Int("status", status).Msg("Link is broken")
		return &models.LinkStatus{URL: link, Status: models.StatusCode(status)}
	default:
		log.Trace().Int("status", status).Msg("Link is reachable")
		return nil
	}
}

// probe issues one HEAD request, following redirects, and returns the final status.
func (v *Verifier) probe(ctx context.Context, link string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, v.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return 0, err
	}
	if v.opts.UserAgent != "" {
		req.Header.Set("User-Agent", v.opts.UserAgent)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
