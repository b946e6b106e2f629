package semantic

import (
	"github.com/google/uuid"

	"github.com/heritagehub/heritage/engine/domain"
)

// Payload keys stored alongside each member vector.
const (
	KeyMemberID   = "member_id"
	KeyName       = "name"
	KeyFamilyName = "family_name"
	KeyGender     = "gender"
	KeyGeneration = "generation"
)

// SearchResult represents a single member search hit.
type SearchResult struct {
	MemberID   string            `json:"member_id"`
	Name       string            `json:"name"`
	Score      float32           `json:"score"`
	Generation *int              `json:"generation,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// VectorRecord represents a single vector to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // member_id, name, family_name, gender, generation
}

// PointID returns the deterministic point UUID for a member, so re-indexing
// a member overwrites its previous vector.
func PointID(memberID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("member:"+memberID)).String()
}

// NameText is the text embedded for a member.
func NameText(m domain.Member) string {
	return m.DisplayName()
}

// RecordFor builds the vector record of a member.
func RecordFor(m domain.Member, embedding []float32) VectorRecord {
	payload := map[string]any{
		KeyMemberID: m.ID,
		KeyName:     m.DisplayName(),
	}
	if m.Name.Family != "" {
		payload[KeyFamilyName] = m.Name.Family
	}
	if m.Gender != domain.GenderUnknown {
		payload[KeyGender] = string(m.Gender)
	}
	if m.Generation != nil {
		payload[KeyGeneration] = *m.Generation
	}
	return VectorRecord{ID: PointID(m.ID), Embedding: embedding, Payload: payload}
}
