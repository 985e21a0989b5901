package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/amosWeiskopf/pagesmith/internal/config"
	"github.com/amosWeiskopf/pagesmith/internal/models"
	"github.com/amosWeiskopf/pagesmith/pkg/analyzer"
	"github.com/amosWeiskopf/pagesmith/pkg/fetcher"
	"github.com/amosWeiskopf/pagesmith/pkg/store"
	"github.com/amosWeiskopf/pagesmith/pkg/utils"
)

const maxRequestBytes = 1 << 20

// PageAnalyzer runs a single page analysis.
type PageAnalyzer interface {
	Analyze(ctx context.Context, pageURL string) (*models.PageReport, error)
}

// ResultStore persists completed analyses.
type ResultStore interface {
	Save(ctx context.Context, report *models.PageReport) (models.Result, error)
	List(ctx context.Context) ([]models.Result, error)
	Get(ctx context.Context, id int64) (models.Result, error)
}

// Server exposes the analyzer and stored results over HTTP.
type Server struct {
	cfg      config.ServerConfig
	analyzer PageAnalyzer
	store    ResultStore
	logger   zerolog.Logger
}

type analyzeRequest struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// New creates a Server. A nil store disables persistence.
func New(cfg config.ServerConfig, a PageAnalyzer, s ResultStore, logger zerolog.Logger) *Server {
	return &Server{cfg: cfg, analyzer: a, store: s, logger: logger}
}

// Handler returns the routed handler wrapped with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /results", s.handleListResults)
	mux.HandleFunc("GET /results/{id}", s.handleGetResult)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.withLogging(s.withCORS(mux))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("Server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if !utils.IsValidURL(req.URL) {
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("%v: %q is not an absolute http(s) URL", analyzer.ErrInvalidURL, req.URL))
		return
	}

	report, err := s.analyzer.Analyze(r.Context(), req.URL)
	if err != nil {
		s.writeAnalyzeError(w, req.URL, err)
		return
	}

	if s.store != nil {
		if _, err := s.store.Save(r.Context(), report); err != nil {
			s.logger.Error().Err(err).Str("url", req.URL).Msg("Failed to persist result")
			s.writeError(w, http.StatusInternalServerError, "failed to persist result")
			return
		}
	}

	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) writeAnalyzeError(w http.ResponseWriter, pageURL string, err error) {
	var fetchErr *fetcher.FetchError
	switch {
	case errors.Is(err, analyzer.ErrInvalidURL):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &fetchErr):
		s.writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error().Err(err).Str("url", pageURL).Msg("Analysis failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, []models.Result{})
		return
	}
	results, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list results")
		s.writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid result id")
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "result not found")
		return
	}

	result, err := s.store.Get(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "result not found")
	case err != nil:
		s.logger.Error().Err(err).Int64("id", id).Msg("Failed to load result")
		s.writeError(w, http.StatusInternalServerError, "failed to load result")
	default:
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	return slices.ContainsFunc(s.cfg.AllowedOrigins, func(allowed string) bool {
		return allowed == "*" || strings.EqualFold(allowed, origin)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("elapsed", time.Since(started)).
			Msg("Request handled")
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, errorResponse{Detail: detail})
}
