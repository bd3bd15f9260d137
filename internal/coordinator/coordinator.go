package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/Checker-Finance/market-intel/internal/metrics"
)

var (
	ErrClosed = errors.New("coordinator closed")
	ErrPanic  = errors.New("coordinated call panicked")
)

// Config bounds coordinated work.
type Config struct {
	MaxConcurrent int
	CallTimeout   time.Duration
}

// Coordinator de-duplicates in-flight calls by key and admits at most
// MaxConcurrent of them at a time, in arrival order.
type Coordinator struct {
	logger      *zap.Logger
	group       singleflight.Group
	sem         *semaphore.Weighted
	limit       int
	callTimeout time.Duration
	tracker     *Tracker

	active  atomic.Int64
	pending atomic.Int64
	peak    atomic.Int64
	closed  atomic.Bool

	mu      sync.Mutex
	callers map[string]int
}

// New creates a Coordinator. A nil tracker disables status publishing.
func New(logger *zap.Logger, cfg Config, tracker *Tracker) *Coordinator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if tracker == nil {
		tracker = NewTracker(nil)
	}
	return &Coordinator{
		logger:      logger,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		limit:       cfg.MaxConcurrent,
		callTimeout: cfg.CallTimeout,
		tracker:     tracker,
		callers:     make(map[string]int),
	}
}

// Tracker returns the status tracker.
func (c *Coordinator) Tracker() *Tracker { return c.tracker }

// Limit returns the admission limit.
func (c *Coordinator) Limit() int { return c.limit }

// Active returns the number of calls holding an admission slot.
func (c *Coordinator) Active() int { return int(c.active.Load()) }

// Pending returns the number of calls waiting for admission.
func (c *Coordinator) Pending() int { return int(c.pending.Load()) }

// Peak returns the highest Active value observed.
func (c *Coordinator) Peak() int { return int(c.peak.Load()) }

// Callers returns how many callers are waiting on kind/key.
func (c *Coordinator) Callers(kind, key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callers[flightKey(kind, key)]
}

// Close rejects new calls. Running calls finish normally.
func (c *Coordinator) Close() { c.closed.Store(true) }

func flightKey(kind, key string) string { return kind + ":" + key }

// Run executes fn once per in-flight kind/key. Concurrent callers with the
// same kind/key share the single execution and its result. The shared call
// runs detached from the first caller's cancellation, bounded by CallTimeout;
// a caller whose ctx ends returns ctx.Err() while the call continues.
//
// The value is returned alongside a non-nil error so callers can use
// partial results.
func Run[T any](ctx context.Context, c *Coordinator, kind, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if c.closed.Load() {
		return zero, ErrClosed
	}

	fk := flightKey(kind, key)
	c.mu.Lock()
	c.callers[fk]++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.callers[fk]--; c.callers[fk] <= 0 {
			delete(c.callers, fk)
		}
		c.mu.Unlock()
	}()

	var leader atomic.Bool
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(fk, func() (any, error) {
		leader.Store(true)
		return c.execute(detached, kind, key, func(ctx context.Context) (any, error) {
			return fn(ctx)
		})
	})

	select {
	case res := <-ch:
		if !leader.Load() {
			metrics.IncDedup(kind)
			c.logger.Debug("coordinator.dedup_hit",
				zap.String("kind", kind),
				zap.String("key", key))
		}
		v, _ := res.Val.(T)
		return v, res.Err
	case <-ctx.Done():
		c.logger.Debug("coordinator.caller_gone",
			zap.String("kind", kind),
			zap.String("key", key),
			zap.Error(ctx.Err()))
		return zero, ctx.Err()
	}
}

func (c *Coordinator) execute(parent context.Context, kind, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(parent, c.callTimeout)
	defer cancel()

	c.pending.Add(1)
	start := time.Now()
	err := c.sem.Acquire(ctx, 1)
	c.pending.Add(-1)
	metrics.ObserveDuration(metrics.CoordinatorQueueWait, start, kind)
	if err != nil {
		err = fmt.Errorf("admission for %s: %w", kind, err)
		c.tracker.Error(kind, key, err)
		return nil, err
	}
	defer c.sem.Release(1)

	n := c.active.Add(1)
	defer c.active.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	metrics.CoordinatorInflight.WithLabelValues(kind).Inc()
	defer metrics.CoordinatorInflight.WithLabelValues(kind).Dec()

	c.tracker.Loading(kind, key)
	v, err := safeCall(ctx, fn)
	if err != nil {
		c.logger.Warn("coordinator.call_failed",
			zap.String("kind", kind),
			zap.String("key", key),
			zap.Error(err))
		c.tracker.Error(kind, key, err)
	} else {
		c.tracker.Success(kind, key)
	}
	return v, err
}

func safeCall(ctx context.Context, fn func(ctx context.Context) (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn(ctx)
}
