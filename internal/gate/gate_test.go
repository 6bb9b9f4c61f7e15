package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_NeverExceedsMax(t *testing.T) {
	t.Parallel()

	const (
		limit = 3
		jobs  = 20
	)
	var peak atomic.Int64
	g := New(limit, func(n int64) {
		for {
			cur := peak.Load()
			if n <= cur || peak.CompareAndSwap(cur, n) {
				return
			}
		}
	})

	var (
		wg      sync.WaitGroup
		current atomic.Int64
		over    atomic.Bool
	)
	for i := 0; i < jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Do(context.Background(), func(context.Context) error {
				if current.Add(1) > limit {
					over.Store(true)
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.False(t, over.Load())
	require.LessOrEqual(t, peak.Load(), int64(limit))
	require.Equal(t, int64(0), g.InFlight())
}

func TestGate_ReleasesOnErrorAndPanic(t *testing.T) {
	t.Parallel()

	g := New(1, nil)
	boom := errors.New("boom")

	err := g.Do(context.Background(), func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, int64(0), g.InFlight())

	require.Panics(t, func() {
		_ = g.Do(context.Background(), func(context.Context) error { panic("kaboom") })
	})
	require.Equal(t, int64(0), g.InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Do(ctx, func(context.Context) error { return nil }))
}

func TestGate_AcquireHonorsContext(t *testing.T) {
	t.Parallel()

	g := New(1, nil)
	hold := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = g.Do(context.Background(), func(context.Context) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	called := false
	err := g.Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, called)
	close(hold)
}

func TestGate_DefaultMax(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(DefaultMax), New(0, nil).Max())
	require.Equal(t, int64(4), New(4, nil).Max())
}
