package semantic

import (
	"context"
	"fmt"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/heritagehub/heritage/pkg/fn"
)

// Embedder turns text into vectors. *ollama.EmbedClient satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Finder indexes and searches members by name.
type Finder struct {
	store    *VectorStore
	embedder Embedder
}

// NewFinder pairs a vector store with an embedder.
func NewFinder(store *VectorStore, embedder Embedder) *Finder {
	return &Finder{store: store, embedder: embedder}
}

// Index embeds the names of members and upserts them. Members without an
// identifier are skipped.
func (f *Finder) Index(ctx context.Context, members []domain.Member) error {
	keep := fn.Filter(members, domain.Member.HasID)
	texts := fn.Map(keep, NameText)
	if len(keep) == 0 {
		return nil
	}

	vecs, err := f.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("semantic: embed %d names: %w", len(texts), err)
	}
	if len(vecs) != len(keep) {
		return fmt.Errorf("semantic: embedder returned %d vectors for %d names", len(vecs), len(keep))
	}

	records := make([]VectorRecord, len(keep))
	for i, m := range keep {
		records[i] = RecordFor(m, vecs[i])
	}
	return f.store.Upsert(ctx, records)
}

// Remove drops a member from the index.
func (f *Finder) Remove(ctx context.Context, memberID string) error {
	return f.store.DeleteByMemberID(ctx, memberID)
}

// Find returns the members whose names are closest to query.
func (f *Finder) Find(ctx context.Context, query string, topK int, filters map[string]string) ([]SearchResult, error) {
	vec, err := f.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("semantic: embed query: %w", err)
	}
	return f.store.Search(ctx, vec, topK, filters)
}
