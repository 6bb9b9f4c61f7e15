// Package memory provides in-process implementations of the job registry and page cache.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/scrape-engine/internal/crawler"
)

// JobStore is a lock-protected job registry. Readers always receive deep copies, so a
// status poll never observes a half-appended result list.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*crawler.Job
	now  func() time.Time
}

// NewJobStore constructs a JobStore. clock may be nil.
func NewJobStore(clock crawler.Clock) *JobStore {
	now := func() time.Time { return time.Now().UTC() }
	if clock != nil {
		now = clock.Now
	}
	return &JobStore{
		jobs: make(map[string]*crawler.Job),
		now:  now,
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("create job %s: %w", job.ID, crawler.ErrJobExists)
	}
	cp := job.Clone()
	if cp.Results == nil {
		cp.Results = []crawler.Page{}
	}
	s.jobs[job.ID] = &cp
	return nil
}

// UpdateJobStatus moves a job forward and stamps its start/finish times. Backward or
// repeated transitions fail with crawler.ErrInvalidTransition.
func (s *JobStore) UpdateJobStatus(_ context.Context, jobID string, status crawler.JobStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("update job %s: %w", jobID, crawler.ErrJobNotFound)
	}
	if !job.Status.CanTransition(status) {
		return fmt.Errorf("update job %s from %s to %s: %w", jobID, job.Status, status, crawler.ErrInvalidTransition)
	}
	job.Status = status
	job.Error = errText
	now := s.now()
	if status == crawler.JobStatusRunning && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.Terminal() {
		job.Finished = pointerTime(now)
	}
	return nil
}

// RecordPage appends a page and bumps the counter in one critical section.
func (s *JobStore) RecordPage(_ context.Context, jobID string, page crawler.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("record page for job %s: %w", jobID, crawler.ErrJobNotFound)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("record page for %s job %s: %w", job.Status, jobID, crawler.ErrInvalidTransition)
	}
	job.Results = append(job.Results, page.Clone())
	job.PagesScraped = len(job.Results)
	return nil
}

// GetJob fetches a snapshot of a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, crawler.ErrJobNotFound)
	}
	return job.Clone(), nil
}

// DeleteJob removes a job.
func (s *JobStore) DeleteJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return fmt.Errorf("delete job %s: %w", jobID, crawler.ErrJobNotFound)
	}
	delete(s.jobs, jobID)
	return nil
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
