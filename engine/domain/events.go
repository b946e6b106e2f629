package domain

import "time"

// NATS subjects shared by the API, the ingest worker and snapshot watchers.
const (
	SubjectMembersUpsert    = "genealogy.members.upsert"
	SubjectMembersUpsertDLQ = "genealogy.members.upsert.dlq"
	SubjectMembersChanged   = "genealogy.members.changed"
)

// UpsertRequest carries raw member records in any of the accepted field
// spellings. Records are normalized by the ingest worker.
type UpsertRequest struct {
	RequestID string           `json:"request_id,omitempty"`
	Records   []map[string]any `json:"records"`
}

// MembersChanged announces that members were written to the repository.
type MembersChanged struct {
	EventID string    `json:"event_id"`
	IDs     []string  `json:"ids"`
	At      time.Time `json:"at"`
}
