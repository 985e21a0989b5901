package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

const acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Options configures a Fetcher.
type Options struct {
	Timeout      time.Duration // per fetch
	UserAgent    string
	MaxBodyBytes int64
}

// FetchError reports that the analyzed page itself could not be retrieved.
// StatusCode is zero when no response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewClient builds the outbound HTTP client shared by the fetcher and the
// link verifier. Timeouts are applied per request through contexts. The
// client keeps no cookies between requests.
func NewClient(maxRedirects int) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// Fetcher retrieves the raw HTML of a single page.
type Fetcher struct {
	client *http.Client
	opts   Options
	logger zerolog.Logger
}

// New creates a Fetcher on top of a shared client.
func New(client *http.Client, opts Options, logger zerolog.Logger) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 10 * 1024 * 1024
	}
	return &Fetcher{client: client, opts: opts, logger: logger}
}

// Fetch issues a single GET and returns the decoded body. There is no retry:
// any failure is returned as a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	req.Header.Set("Accept", acceptHeader)

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", &FetchError{
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	limited := io.LimitReader(resp.Body, f.opts.MaxBodyBytes)
	body, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		// unknown charset label; read the bytes as they are
		body = limited
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: fmt.Errorf("read body: %w", err)}
	}

	f.logger.Debug().
		Str("url", pageURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(started)).
		Msg("Fetched page")

	return string(data), nil
}
