// Package snapshot keeps an immutable, shared view of the member set and the
// kinship index built from it. Readers never see a partially built index: a
// reload builds a fresh Snapshot and swaps the pointer.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/heritagehub/heritage/engine/kinship"
	"github.com/heritagehub/heritage/pkg/fn"
	"github.com/heritagehub/heritage/pkg/metrics"
	"github.com/heritagehub/heritage/pkg/natsutil"
	"github.com/heritagehub/heritage/pkg/resilience"
)

const tracerName = "engine/snapshot"

// DefaultLoadTimeout bounds one load, independent of the callers waiting on it.
const DefaultLoadTimeout = 30 * time.Second

// Loader lists every stored member. *graph.MemberStore satisfies it.
type Loader interface {
	ListMembers(ctx context.Context) ([]domain.Member, error)
}

// Snapshot is one immutable view of the member set.
type Snapshot struct {
	Members  []domain.Member
	Index    *kinship.Index
	Version  uint64
	LoadedAt time.Time
}

// Options configures a Cache.
type Options struct {
	TTL         time.Duration // zero keeps a snapshot until invalidated
	LoadTimeout time.Duration
	Retry       fn.RetryOpts
	Breaker     *resilience.Breaker
	Metrics     *metrics.Registry
	Logger      *slog.Logger
}

// Cache lazily loads snapshots and shares one load among concurrent callers.
type Cache struct {
	loader  Loader
	opts    Options
	breaker *resilience.Breaker
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	cur      *Snapshot
	stale    bool
	epoch    uint64 // bumped by Invalidate
	version  uint64
	inflight *load
}

type load struct {
	done chan struct{}
	snap *Snapshot
	err  error
}

// New creates a Cache over loader.
func New(loader Loader, opts Options) *Cache {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = fn.DefaultRetry
	}
	breaker := opts.Breaker
	if breaker == nil {
		breaker = resilience.NewBreaker(resilience.DefaultBreakerOpts)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{loader: loader, opts: opts, breaker: breaker, logger: logger, now: time.Now}
}

// Current returns the current snapshot, loading one if none is cached, the
// cached one was invalidated, or it outlived the TTL. When a reload fails and
// an older snapshot exists, the older snapshot is served.
func (c *Cache) Current(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	if c.cur != nil && c.fresh() {
		s := c.cur
		c.mu.Unlock()
		return s, nil
	}
	l := c.inflight
	if l == nil {
		l = &load{done: make(chan struct{})}
		c.inflight = l
		go c.run(context.WithoutCancel(ctx), l, c.epoch)
	}
	c.mu.Unlock()

	select {
	case <-l.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.snap, nil
}

// fresh must hold mu.
func (c *Cache) fresh() bool {
	if c.stale {
		return false
	}
	return c.opts.TTL <= 0 || c.now().Sub(c.cur.LoadedAt) < c.opts.TTL
}

// Invalidate marks the cached snapshot stale; the next Current reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.epoch++
	c.mu.Unlock()
}

// Peek returns the cached snapshot without loading, or nil.
func (c *Cache) Peek() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *Cache) run(ctx context.Context, l *load, epoch uint64) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.LoadTimeout)
	defer cancel()

	members, err := c.fetch(ctx)

	c.mu.Lock()
	c.inflight = nil
	if err == nil {
		c.version++
		l.snap = &Snapshot{
			Members:  members,
			Index:    kinship.NewIndex(members),
			Version:  c.version,
			LoadedAt: c.now(),
		}
		c.cur = l.snap
		c.stale = c.epoch != epoch
	} else if c.cur != nil {
		l.snap = c.cur
		c.logger.Warn("snapshot reload failed, serving previous", "version", c.cur.Version, "err", err)
	} else {
		l.err = err
	}
	c.mu.Unlock()
	close(l.done)

	c.observe(l, err)
}

func (c *Cache) fetch(ctx context.Context) ([]domain.Member, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "snapshot.load")
	defer span.End()
	start := time.Now()

	res := fn.Retry(ctx, c.opts.Retry, func(ctx context.Context) fn.Result[[]domain.Member] {
		r := resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[[]domain.Member] {
			return fn.FromPair(c.loader.ListMembers(ctx))
		})
		if _, err := r.Unwrap(); r.IsErr() && errors.Is(err, resilience.ErrCircuitOpen) {
			return fn.Err[[]domain.Member](fn.Permanent(err))
		}
		return r
	})
	members, err := res.Unwrap()
	if c.opts.Metrics != nil {
		c.opts.Metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	}
	if res.IsErr() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("snapshot: load members: %w", err)
	}
	span.SetAttributes(attribute.Int("members", len(members)))
	return members, nil
}

func (c *Cache) observe(l *load, err error) {
	result := "ok"
	switch {
	case err != nil && l.err == nil:
		result = "stale"
	case err != nil:
		result = "error"
		c.logger.Error("snapshot load failed", "err", err)
	default:
		c.logger.Info("snapshot loaded", "version", l.snap.Version, "members", len(l.snap.Members))
	}
	if c.opts.Metrics == nil {
		return
	}
	c.opts.Metrics.SnapshotLoads.WithLabelValues(result).Inc()
	if l.snap != nil {
		c.opts.Metrics.SnapshotMembers.Set(float64(len(l.snap.Members)))
	}
}

// Watch invalidates the cache whenever members change.
func (c *Cache) Watch(sub natsutil.Subscriber) (*nats.Subscription, error) {
	s, err := natsutil.Subscribe(sub, domain.SubjectMembersChanged, func(_ context.Context, ev domain.MembersChanged) {
		c.logger.Debug("members changed, invalidating snapshot", "event_id", ev.EventID, "members", len(ev.IDs))
		c.Invalidate()
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: watch %s: %w", domain.SubjectMembersChanged, err)
	}
	return s, nil
}
