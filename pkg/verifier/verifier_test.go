package verifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/pagesmith/internal/models"
	"github.com/amosWeiskopf/pagesmith/pkg/fetcher"
)

func newTestVerifier(opts Options) *Verifier {
	return New(fetcher.NewClient(10), opts, zerolog.Nop())
}

func records(urls ...string) []models.LinkRecord {
	out := make([]models.LinkRecord, 0, len(urls))
	for _, u := range urls {
		out = append(out, models.LinkRecord{URL: u, Kind: models.External})
	}
	return out
}

// statusServer answers /status/<code> with that code.
func statusServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(r.PathValue("code"))
		if err != nil {
			code = http.StatusBadRequest
		}
		w.WriteHeader(code)
	})
	mux.HandleFunc("/redirect/{code}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/status/"+r.PathValue("code"), http.StatusFound)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestVerifyStatuses(t *testing.T) {
	server := statusServer(t)

	tests := []struct {
		name string
		path string
		want *models.LinkStatus
	}{
		{name: "ok", path: "/status/200"},
		{name: "no content", path: "/status/204"},
		{name: "not found", path: "/status/404", want: &models.LinkStatus{Status: models.StatusCode(404)}},
		{name: "gone", path: "/status/410", want: &models.LinkStatus{Status: models.StatusCode(410)}},
		{name: "server error", path: "/status/503", want: &models.LinkStatus{Status: models.StatusCode(503)}},
		{name: "redirect to ok", path: "/redirect/200"},
		{name: "redirect to missing", path: "/redirect/404", want: &models.LinkStatus{Status: models.StatusCode(404)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := server.URL + tt.path
			broken := newTestVerifier(Options{}).Verify(context.Background(), records(link))
			if tt.want == nil {
				assert.Empty(t, broken)
				return
			}
			require.Len(t, broken, 1)
			assert.Equal(t, link, broken[0].URL)
			assert.Equal(t, tt.want.Status, broken[0].Status)
		})
	}
}

func TestVerifyUsesHead(t *testing.T) {
	var methods atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods.Store(r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	broken := newTestVerifier(Options{UserAgent: "probe"}).Verify(context.Background(), records(server.URL))
	assert.Empty(t, broken)
	assert.Equal(t, http.MethodHead, methods.Load())
}

func TestVerifyTransportFailures(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	refused := closed.URL
	closed.Close()

	links := records(slow.URL+"/timeout", refused+"/refused", "http://[::1")
	broken := newTestVerifier(Options{Timeout: 50 * time.Millisecond}).Verify(context.Background(), links)

	require.Len(t, broken, 3)
	for i, status := range broken {
		assert.Equal(t, links[i].URL, status.URL)
		assert.Equal(t, models.StatusError(), status.Status)
	}
}

func TestVerifyPreservesInputOrder(t *testing.T) {
	server := statusServer(t)
	links := records(
		server.URL+"/status/200",
		server.URL+"/status/404",
		server.URL+"/status/200",
		server.URL+"/status/500",
		server.URL+"/status/410",
	)

	for run := 0; run < 5; run++ {
		broken := newTestVerifier(Options{MaxWorkers: 5}).Verify(context.Background(), links)
		require.Len(t, broken, 3)
		assert.Equal(t, links[1].URL, broken[0].URL)
		assert.Equal(t, models.StatusCode(404), broken[0].Status)
		assert.Equal(t, links[3].URL, broken[1].URL)
		assert.Equal(t, models.StatusCode(500), broken[1].Status)
		assert.Equal(t, links[4].URL, broken[2].URL)
		assert.Equal(t, models.StatusCode(410), broken[2].Status)
	}
}

func TestVerifyDuplicatesIndependently(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	links := records(server.URL, server.URL, server.URL)
	broken := newTestVerifier(Options{}).Verify(context.Background(), links)

	assert.Len(t, broken, 3)
	assert.Equal(t, int32(3), hits.Load())
}

func TestVerifyCoalescesIdenticalProbes(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	links := records(server.URL, server.URL, server.URL, server.URL, server.URL)
	broken := newTestVerifier(Options{MaxWorkers: 5, Coalesce: true}).Verify(context.Background(), links)

	// every occurrence is still reported
	require.Len(t, broken, 5)
	for _, status := range broken {
		assert.Equal(t, models.StatusCode(404), status.Status)
	}
	assert.Less(t, hits.Load(), int32(5))
}

func TestVerifyBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	urls := make([]string, 20)
	for i := range urls {
		urls[i] = server.URL + "/page/" + strconv.Itoa(i)
	}

	broken := newTestVerifier(Options{MaxWorkers: 3}).Verify(context.Background(), records(urls...))
	assert.Empty(t, broken)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestVerifyCancelledContext(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	links := records(server.URL+"/a", server.URL+"/b")
	broken := newTestVerifier(Options{}).Verify(ctx, links)

	require.Len(t, broken, 2)
	for _, status := range broken {
		assert.Equal(t, models.StatusError(), status.Status)
	}
	assert.Zero(t, hits.Load())
}

func TestVerifyOverallDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	started := time.Now()
	broken := newTestVerifier(Options{Timeout: 5 * time.Second}).Verify(ctx, records(server.URL+"/1", server.URL+"/2"))

	assert.Less(t, time.Since(started), time.Second)
	require.Len(t, broken, 2)
	assert.Equal(t, models.StatusError(), broken[0].Status)
}

func TestVerifyRateLimit(t *testing.T) {
	server := statusServer(t)
	links := records(server.URL+"/status/200", server.URL+"/status/200", server.URL+"/status/200")

	started := time.Now()
	broken := newTestVerifier(Options{RequestsPerSecond: 10}).Verify(context.Background(), links)

	assert.Empty(t, broken)
	// burst of 10 covers all three probes
	assert.Less(t, time.Since(started), time.Second)
}

func TestVerifyNoLinks(t *testing.T) {
	broken := newTestVerifier(Options{}).Verify(context.Background(), nil)
	assert.NotNil(t, broken)
	assert.Empty(t, broken)
}
