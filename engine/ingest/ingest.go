// Package ingest provides the member upsert pipeline: raw records are
// normalized, validated, written to the graph store, indexed for name search
// and announced on NATS so snapshot caches reload.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/heritagehub/heritage/pkg/fn"
	"github.com/heritagehub/heritage/pkg/metrics"
	"github.com/heritagehub/heritage/pkg/natsutil"
	"github.com/heritagehub/heritage/pkg/resilience"
)

// DefaultStoreRetry governs in-process retries of the graph write before the
// request is handed back to the queue.
var DefaultStoreRetry = fn.RetryOpts{
	MaxAttempts: 2,
	InitialWait: 200 * time.Millisecond,
	MaxWait:     time.Second,
	Jitter:      true,
}

// Deps holds the external dependencies for the ingestion pipeline.
type Deps struct {
	Store      MemberWriter
	Indexer    NameIndexer        // optional
	Publisher  natsutil.Publisher // optional; announces MembersChanged
	Metrics    *metrics.Registry  // optional
	Logger     *slog.Logger
	StoreRetry fn.RetryOpts
	// StoreBreaker, when set, trips after repeated store failures so requests
	// go back to the queue without touching the graph.
	StoreBreaker *resilience.Breaker
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// --- Pipeline Stages ---

// Normalize maps raw records onto members, dropping records without an
// identifier. Later duplicates of an identifier replace earlier ones.
var Normalize = fn.MapStage(normalizeBatch)

func normalizeBatch(req domain.UpsertRequest) Batch {
	b := Batch{RequestID: req.RequestID}
	pos := make(map[string]int)
	for _, m := range domain.NormalizeRecords(req.Records) {
		if !m.HasID() {
			b.Skipped++
			continue
		}
		if i, ok := pos[m.ID]; ok {
			b.Members[i] = m
			continue
		}
		pos[m.ID] = len(b.Members)
		b.Members = append(b.Members, m)
	}
	return b
}

// Validate rejects the whole batch when any member is invalid. Rejections are
// permanent: retrying cannot fix the data.
var Validate fn.Stage[Batch, Batch] = func(_ context.Context, b Batch) fn.Result[Batch] {
	if len(b.Members) == 0 {
		return fn.Err[Batch](fn.Permanent(ErrEmptyBatch))
	}
	if err := domain.ValidateMembers(b.Members); err != nil {
		return fn.Err[Batch](fn.Permanent(fmt.Errorf("ingest: %w", err)))
	}
	return fn.Ok(b)
}

// NewStore creates a Store stage that writes the batch in one transaction.
func NewStore(w MemberWriter, opts fn.RetryOpts) fn.Stage[Batch, Batch] {
	return fn.RetryStage(opts, func(ctx context.Context, b Batch) fn.Result[Batch] {
		if err := w.SaveBatch(ctx, b.Members); err != nil {
			return fn.Errf[Batch]("ingest: store: %w", err)
		}
		return fn.Ok(b)
	})
}

// NewIndex creates a stage that refreshes the name search index. The index
// is derived data, so failures are logged and the batch continues.
func NewIndex(ix NameIndexer, log *slog.Logger) fn.Stage[Batch, Batch] {
	return func(ctx context.Context, b Batch) fn.Result[Batch] {
		if ix == nil {
			return fn.Ok(b)
		}
		if err := ix.Index(ctx, b.Members); err != nil {
			log.Warn("ingest: name index failed", "request_id", b.RequestID, "members", len(b.Members), "err", err)
		}
		return fn.Ok(b)
	}
}

// NewAnnounce creates the final stage, publishing MembersChanged.
func NewAnnounce(pub natsutil.Publisher, now func() time.Time) fn.Stage[Batch, domain.MembersChanged] {
	return func(ctx context.Context, b Batch) fn.Result[domain.MembersChanged] {
		ev := domain.MembersChanged{
			EventID: uuid.NewString(),
			IDs:     b.IDs(),
			At:      now().UTC(),
		}
		if pub == nil {
			return fn.Ok(ev)
		}
		if err := natsutil.Publish(ctx, pub, domain.SubjectMembersChanged, ev); err != nil {
			return fn.Errf[domain.MembersChanged]("ingest: announce: %w", err)
		}
		return fn.Ok(ev)
	}
}

// timed wraps a stage in a span and records its duration.
func timed[In, Out any](name string, m *metrics.Registry, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	traced := fn.TracedStage("ingest."+name, stage)
	if m == nil {
		return traced
	}
	return func(ctx context.Context, in In) fn.Result[Out] {
		defer m.ObserveStage(name, time.Now())
		return traced(ctx, in)
	}
}

// NewPipeline constructs the full upsert pipeline with all stages wired:
// Normalize → Validate → Store → Index → Announce.
func NewPipeline(deps Deps) fn.Stage[domain.UpsertRequest, domain.MembersChanged] {
	log := deps.logger()
	retry := deps.StoreRetry
	if retry.MaxAttempts <= 0 {
		retry = DefaultStoreRetry
	}
	m := deps.Metrics

	normalized := timed("normalize", m, Normalize)
	validated := fn.Then(normalized, timed("validate", m, Validate))
	store := NewStore(deps.Store, retry)
	if deps.StoreBreaker != nil {
		store = resilience.BreakerStage(deps.StoreBreaker, store)
	}
	stored := fn.Then(validated, timed("store", m, store))
	indexed := fn.Then(stored, timed("index", m, NewIndex(deps.Indexer, log)))
	return fn.Then(indexed, timed("announce", m, NewAnnounce(deps.Publisher, time.Now)))
}
