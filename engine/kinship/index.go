package kinship

import "github.com/heritagehub/heritage/engine/domain"

// Index provides O(1) lookups over one snapshot of members.
type Index struct {
	byID     map[string]domain.Member
	order    []string            // distinct ids, first-occurrence order
	children map[string][]string // father id -> child ids, input order
	spouseOf map[string]string   // reverse spouse links, first claimant wins
}

// NewIndex builds an Index from members. Records without an ID are skipped.
// For duplicated IDs the last record wins but keeps the first position.
func NewIndex(members []domain.Member) *Index {
	idx := &Index{
		byID:     make(map[string]domain.Member, len(members)),
		children: make(map[string][]string),
		spouseOf: make(map[string]string),
	}
	seenChild := make(map[string]map[string]bool)
	for _, m := range members {
		if !m.HasID() {
			continue
		}
		if _, dup := idx.byID[m.ID]; !dup {
			idx.order = append(idx.order, m.ID)
		}
		idx.byID[m.ID] = m

		if m.FatherID != "" {
			set := seenChild[m.FatherID]
			if set == nil {
				set = make(map[string]bool)
				seenChild[m.FatherID] = set
			}
			if !set[m.ID] {
				set[m.ID] = true
				idx.children[m.FatherID] = append(idx.children[m.FatherID], m.ID)
			}
		}
		if m.SpouseID != "" && m.SpouseID != m.ID {
			if _, ok := idx.spouseOf[m.SpouseID]; !ok {
				idx.spouseOf[m.SpouseID] = m.ID
			}
		}
	}
	return idx
}

// Len returns the number of distinct members.
func (idx *Index) Len() int { return len(idx.order) }

// Member looks up a member by id.
func (idx *Index) Member(id string) (domain.Member, bool) {
	if id == "" {
		return domain.Member{}, false
	}
	m, ok := idx.byID[id]
	return m, ok
}

// Members returns the indexed members in input order.
func (idx *Index) Members() []domain.Member {
	out := make([]domain.Member, len(idx.order))
	for i, id := range idx.order {
		out[i] = idx.byID[id]
	}
	return out
}

// ChildrenOf returns the members whose FatherID is fatherID, in input order.
func (idx *Index) ChildrenOf(fatherID string) []domain.Member {
	ids := idx.children[fatherID]
	if len(ids) == 0 {
		return nil
	}
	out := make([]domain.Member, 0, len(ids))
	for _, id := range ids {
		if m, ok := idx.byID[id]; ok && m.FatherID == fatherID {
			out = append(out, m)
		}
	}
	return out
}

// Father resolves m's father. A dangling FatherID resolves to nothing.
func (idx *Index) Father(m domain.Member) (domain.Member, bool) {
	if m.FatherID == "" || m.FatherID == m.ID {
		return domain.Member{}, false
	}
	return idx.Member(m.FatherID)
}

// Spouse resolves m's spouse, following m.SpouseID first and otherwise the
// first member whose SpouseID points back at m.
func (idx *Index) Spouse(m domain.Member) (domain.Member, bool) {
	if m.SpouseID != "" && m.SpouseID != m.ID {
		if s, ok := idx.Member(m.SpouseID); ok {
			return s, true
		}
	}
	if id, ok := idx.spouseOf[m.ID]; ok && id != m.ID {
		return idx.Member(id)
	}
	return domain.Member{}, false
}
