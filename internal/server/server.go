// Package server exposes the country search service as a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/smileynet/countrylookup/internal/cache"
	"github.com/smileynet/countrylookup/internal/country"
)

// Searcher is the service surface the API serves.
type Searcher interface {
	SearchCapital(ctx context.Context, term string) []country.Country
	SearchCountry(ctx context.Context, term string) []country.Country
	SearchRegion(ctx context.Context, region country.Region) []country.Country
	SearchCountryByAlphaCode(ctx context.Context, code string) (country.Country, bool)
	Store() cache.CacheStore
}

const shutdownTimeout = 5 * time.Second

// Handler serves the JSON API for a Searcher.
type Handler struct {
	searcher Searcher
	metrics  http.Handler
	log      zerolog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Handler) { s.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Handler) { s.log = l }
}

// New creates a Handler serving s.
func New(s Searcher, opts ...Option) *Handler {
	h := &Handler{searcher: s, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router builds the chi router for all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", h.HandleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/cache", h.HandleCache)
		r.Get("/capital/{term}", h.HandleCapital)
		r.Get("/name/{term}", h.HandleName)
		r.Get("/region/{region}", h.HandleRegion)
		r.Get("/alpha/{code}", h.HandleAlpha)
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	return r
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCache returns the current CacheStore without searching.
func (h *Handler) HandleCache(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.searcher.Store())
}

// HandleCapital searches by capital.
func (h *Handler) HandleCapital(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.searcher.SearchCapital(r.Context(), chi.URLParam(r, "term")))
}

// HandleName searches by partial country name.
func (h *Handler) HandleName(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.searcher.SearchCountry(r.Context(), chi.URLParam(r, "term")))
}

// HandleRegion lists a region's countries. Regions outside the closed set are rejected.
func (h *Handler) HandleRegion(w http.ResponseWriter, r *http.Request) {
	region, err := country.ParseRegion(chi.URLParam(r, "region"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.searcher.SearchRegion(r.Context(), region))
}

// HandleAlpha looks up one country by alpha code.
func (h *Handler) HandleAlpha(w http.ResponseWriter, r *http.Request) {
	c, ok := h.searcher.SearchCountryByAlphaCode(r.Context(), chi.URLParam(r, "code"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve runs an HTTP server for handler on addr until ctx is cancelled,
// then shuts it down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
