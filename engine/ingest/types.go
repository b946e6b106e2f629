package ingest

import (
	"context"
	"errors"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/heritagehub/heritage/pkg/natsutil"
)

// ErrEmptyBatch is returned when a request holds no record with an identifier.
var ErrEmptyBatch = errors.New("ingest: no member records with an id")

// Batch is a request's records after normalization.
type Batch struct {
	RequestID string
	Members   []domain.Member
	Skipped   int // records dropped for lack of an identifier
}

// IDs returns the member identifiers of the batch in order.
func (b Batch) IDs() []string {
	ids := make([]string, len(b.Members))
	for i, m := range b.Members {
		ids[i] = m.ID
	}
	return ids
}

// MemberWriter persists members. *graph.MemberStore satisfies it.
type MemberWriter interface {
	SaveBatch(ctx context.Context, members []domain.Member) error
}

// NameIndexer keeps the member name search index current.
// *semantic.Finder satisfies it.
type NameIndexer interface {
	Index(ctx context.Context, members []domain.Member) error
}

// Conn is the part of *nats.Conn the consumer needs.
type Conn interface {
	natsutil.Publisher
	natsutil.Subscriber
}

// dlqMessage is published to the DLQ on repeated or permanent failure.
type dlqMessage struct {
	Request domain.UpsertRequest `json:"request"`
	Error   string               `json:"error"`
	Retries int                  `json:"retries"`
}
