package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrJobNotFound is returned when a job ID is unknown to the store.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobExists is returned when a job ID is reused.
	ErrJobExists = errors.New("job already exists")
	// ErrInvalidTransition is returned when a status change would move a job backwards.
	ErrInvalidTransition = errors.New("invalid job status transition")
	// ErrCacheMiss is returned by Cache.Get when no value is stored for the key.
	ErrCacheMiss = errors.New("cache miss")
)

// FetchErrorKind classifies a per-page failure.
type FetchErrorKind string

// Per-page failure kinds.
const (
	FetchErrorTransport FetchErrorKind = "transport"
	FetchErrorTimeout   FetchErrorKind = "timeout"
	FetchErrorRender    FetchErrorKind = "render"
	FetchErrorExtract   FetchErrorKind = "extract"
)

// FetchError is the failure variant of a page fetch. The crawl loop records it and moves on.
type FetchError struct {
	URL  string
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s fetch %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err, classifying deadline and net timeouts as FetchErrorTimeout.
func NewFetchError(url string, kind FetchErrorKind, err error) *FetchError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = FetchErrorTimeout
	}
	return &FetchError{URL: url, Kind: kind, Err: err}
}
