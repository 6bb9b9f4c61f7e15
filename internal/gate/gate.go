// Package gate bounds the number of fetches in flight across every job sharing one
// engine.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultMax is the permit count used when none is configured.
const DefaultMax = 10

// Observer is notified whenever the number of held permits changes.
type Observer func(inFlight int64)

// Gate is a counting permit pool.
type Gate struct {
	sem      *semaphore.Weighted
	max      int64
	inFlight atomic.Int64
	observe  Observer
}

// New creates a Gate with size permits (DefaultMax when size <= 0).
func New(size int, observe Observer) *Gate {
	if size <= 0 {
		size = DefaultMax
	}
	return &Gate{
		sem:     semaphore.NewWeighted(int64(size)),
		max:     int64(size),
		observe: observe,
	}
}

// Do runs fn while holding one permit. The permit is released on every exit path,
// including a panic in fn. Acquisition blocks until a permit frees up or ctx ends.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire fetch permit: %w", err)
	}
	g.report(g.inFlight.Add(1))
	defer func() {
		g.report(g.inFlight.Add(-1))
		g.sem.Release(1)
	}()
	return fn(ctx)
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int64 {
	return g.inFlight.Load()
}

// Max returns the pool size.
func (g *Gate) Max() int64 {
	return g.max
}

func (g *Gate) report(n int64) {
	if g.observe != nil {
		g.observe(n)
	}
}
