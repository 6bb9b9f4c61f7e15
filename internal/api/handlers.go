package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
	"github.com/JakeFAU/scrape-engine/internal/format"
	"github.com/JakeFAU/scrape-engine/internal/jobs"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	historyTimeout      = 3 * time.Second
)

type scrapeRequest struct {
	URL          string               `json:"url"`
	RenderJS     bool                 `json:"render_js"`
	Selectors    map[string]string    `json:"selectors"`
	OutputFormat crawler.OutputFormat `json:"output_format"`
}

type crawlRequest struct {
	StartURL        string               `json:"start_url"`
	MaxPages        *int                 `json:"max_pages"`
	AllowedDomains  []string             `json:"allowed_domains"`
	ExcludePatterns []string             `json:"exclude_patterns"`
	RenderJS        bool                 `json:"render_js"`
	OutputFormat    crawler.OutputFormat `json:"output_format"`
	Selectors       map[string]string    `json:"selectors"`
	FollowLinks     *bool                `json:"follow_links"`
}

type jobResponse struct {
	JobID        string            `json:"job_id"`
	Status       crawler.JobStatus `json:"status"`
	TotalPages   int               `json:"total_pages"`
	PagesScraped int               `json:"pages_scraped"`
	Results      any               `json:"results"`
	Error        string            `json:"error,omitempty"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

func (s *Server) scrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := crawler.ValidateAbsoluteURL(req.URL); err != nil {
		writeError(w, http.StatusBadRequest, "url: "+err.Error())
		return
	}
	outputFormat, err := outputFormatOrDefault(req.OutputFormat)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := s.scraper.Scrape(r.Context(), crawler.ScrapeRequest{
		URL:       req.URL,
		RenderJS:  req.RenderJS,
		Selectors: req.Selectors,
	})
	if err != nil {
		var fetchErr *crawler.FetchError
		if errors.As(err, &fetchErr) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.logger.Error("scrape failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if outputFormat == crawler.OutputMarkdown {
		writeMarkdown(w, http.StatusOK, format.PageMarkdown(page))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) createCrawl(w http.ResponseWriter, r *http.Request) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	spec := crawler.CrawlSpec{
		StartURL:        req.StartURL,
		MaxPages:        valueOrDefault(req.MaxPages, s.cfg.Crawler.MaxPagesDefault),
		AllowedDomains:  req.AllowedDomains,
		ExcludePatterns: req.ExcludePatterns,
		RenderJS:        req.RenderJS,
		OutputFormat:    req.OutputFormat,
		Selectors:       req.Selectors,
		FollowLinks:     valueOrDefault(req.FollowLinks, s.cfg.Crawler.FollowLinks),
	}
	if req.MaxPages != nil && *req.MaxPages < 1 {
		writeError(w, http.StatusBadRequest, "max_pages must be >= 1")
		return
	}

	jobID, err := s.jobs.Create(r.Context(), spec)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	case errors.Is(err, jobs.ErrInvalidSpec):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		s.logger.Error("create crawl failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create crawl job")
	}
}

// getCrawl returns the job snapshot. Once the job is terminal its results are rendered
// in the requested output format and the job is disposed after the response is written.
func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.Status(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, crawler.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("job status failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	results, err := format.Render(job.Results, job.Spec.OutputFormat)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobResponse{
		JobID:        job.ID,
		Status:       job.Status,
		TotalPages:   job.TotalPages,
		PagesScraped: job.PagesScraped,
		Results:      results,
		Error:        job.Error,
		SubmittedAt:  job.Submitted,
		StartedAt:    job.Started,
		FinishedAt:   job.Finished,
	})

	if job.Status.Terminal() {
		if err := s.jobs.Dispose(context.WithoutCancel(r.Context()), jobID); err != nil &&
			!errors.Is(err, crawler.ErrJobNotFound) {
			s.logger.Warn("dispose job failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}
}

func (s *Server) deleteCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if err := s.jobs.Dispose(r.Context(), jobID); err != nil {
		if errors.Is(err, crawler.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("dispose job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to dispose job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listHistory handles GET /v1/history?url=&limit=&offset=. It returns 503 when no
// history database is configured.
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history store unavailable")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), historyTimeout)
	defer cancel()

	url := strings.TrimSpace(r.URL.Query().Get("url"))
	entries, err := s.history.ListHistory(ctx, url, limit, offset)
	if err != nil {
		s.logger.Error("list history failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func outputFormatOrDefault(f crawler.OutputFormat) (crawler.OutputFormat, error) {
	if f == "" {
		return crawler.OutputJSON, nil
	}
	if !f.Valid() {
		return "", fmt.Errorf("unknown output_format %q", f)
	}
	return f, nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = min(val, maxLimit)
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
