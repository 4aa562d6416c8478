// Package api exposes the HTTP interface for the inventory crawler:
// health probes, Prometheus metrics, crawl triggering, and read-only
// queries against the in-memory cache.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/libertymp-tools/invcrawler/internal/cache"
	"github.com/libertymp-tools/invcrawler/internal/metrics"
	"github.com/libertymp-tools/invcrawler/internal/scraper"
)

// Server wires HTTP handlers to the cache and the crawl coordinator.
type Server struct {
	router      chi.Router
	cache       *cache.Cache
	coordinator *scraper.Coordinator
	logger      *zap.Logger
	baseCtx     context.Context

	crawling atomic.Bool
}

// NewServer constructs a Server with middleware and routes. Background
// crawls triggered over HTTP are bound to baseCtx, so cancelling it on
// shutdown drains any crawl still in flight.
func NewServer(baseCtx context.Context, c *cache.Cache, coordinator *scraper.Coordinator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	s := &Server{
		cache:       c,
		coordinator: coordinator,
		logger:      logger,
		baseCtx:     baseCtx,
	}

	r := chi.NewRouter()
	r.Use(requestLoggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scrape", s.triggerScrape)
		r.Get("/players/{name}", s.getPlayer)
		r.Get("/items/{name}/players", s.findItemOwners)
		r.Get("/vehicles/{name}/players", s.findVehicleOwners)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// triggerScrape starts a crawl in the background, bound to the server
// lifecycle context rather than the request. Only one crawl runs at a
// time; a second request while one is active gets 409.
func (s *Server) triggerScrape(w http.ResponseWriter, _ *http.Request) {
	if !s.crawling.CompareAndSwap(false, true) {
		s.writeError(w, http.StatusConflict, "a crawl is already running")
		return
	}
	go func() {
		defer s.crawling.Store(false)
		summary, err := s.coordinator.ScrapeAll(s.baseCtx)
		if err != nil {
			s.logger.Error("background crawl failed", zap.String("crawl_id", summary.CrawlID), zap.Error(err))
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) getPlayer(w http.ResponseWriter, r *http.Request) {
	name := pathName(r)
	record, ok := s.cache.GetPlayer(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "player not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"name": name, "record": record})
}

func (s *Server) findItemOwners(w http.ResponseWriter, r *http.Request) {
	name := pathName(r)
	owners := s.cache.FindPlayersWithItem(name)
	s.writeJSON(w, http.StatusOK, map[string]any{"item": name, "owners": owners})
}

func (s *Server) findVehicleOwners(w http.ResponseWriter, r *http.Request) {
	name := pathName(r)
	owners := s.cache.FindPlayersWithVehicle(name)
	s.writeJSON(w, http.StatusOK, map[string]any{"vehicle": name, "owners": owners})
}

// pathName extracts and decodes the {name} route parameter. Player and
// item names may contain spaces or symbols, so percent-encoding is
// expected from clients.
func pathName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func requestLoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, logger, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, routePattern, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	writeJSON(w, s.logger, status, payload)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeError(w, s.logger, status, msg)
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, map[string]string{"error": msg})
}
