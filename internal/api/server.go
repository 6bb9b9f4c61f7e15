package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-engine/internal/config"
	"github.com/JakeFAU/scrape-engine/internal/crawler"
	"github.com/JakeFAU/scrape-engine/internal/logging"
	"github.com/JakeFAU/scrape-engine/internal/metrics"
	"github.com/JakeFAU/scrape-engine/internal/storage/postgres"
)

const requestTimeout = 120 * time.Second

// JobManager creates and tracks crawl jobs.
type JobManager interface {
	Create(ctx context.Context, spec crawler.CrawlSpec) (string, error)
	Status(ctx context.Context, id string) (crawler.Job, error)
	Dispose(ctx context.Context, id string) error
}

// PageScraper scrapes a single page, possibly from cache.
type PageScraper interface {
	Scrape(ctx context.Context, request crawler.ScrapeRequest) (crawler.Page, error)
}

// HistoryReader lists previously scraped pages.
type HistoryReader interface {
	ListHistory(ctx context.Context, url string, limit, offset int) ([]postgres.HistoryEntry, error)
}

// KeyValidator checks API keys.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, key string) (bool, error)
}

// Dependencies wires the server's collaborators. History, Keys and Ready may be nil.
type Dependencies struct {
	Jobs    JobManager
	Scraper PageScraper
	History HistoryReader
	Keys    KeyValidator
	// Ready reports whether downstream stores are reachable.
	Ready  func(ctx context.Context) error
	Logger *zap.Logger
}

// Server wires HTTP handlers to the job manager and scrape service.
type Server struct {
	router  chi.Router
	jobs    JobManager
	scraper PageScraper
	history HistoryReader
	ready   func(ctx context.Context) error
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Dependencies, cfg config.Config) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		jobs:    deps.Jobs,
		scraper: deps.Scraper,
		history: deps.History,
		ready:   deps.Ready,
		cfg:     cfg,
		logger:  deps.Logger,
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(authValidator(cfg.Auth.APIKey, deps.Keys), deps.Logger))
		}
		r.Use(middleware.Timeout(requestTimeout))

		r.Post("/scrape", s.scrape)
		r.Route("/crawl", func(r chi.Router) {
			r.Post("/", s.createCrawl)
			r.Get("/{job_id}", s.getCrawl)
			r.Delete("/{job_id}", s.deleteCrawl)
		})
		r.Get("/history", s.listHistory)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeMarkdown(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		zap.L().Error("write markdown failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
