package kinship

import "github.com/heritagehub/heritage/engine/domain"

// Kind is what one member is to another.
type Kind int

const (
	None Kind = iota
	Spouse
	Parent
	Child
	Sibling
	Grandparent
	Grandchild
	UncleAunt
	NephewNiece
	Cousin
)

var kindNames = [...]string{
	None:        "none",
	Spouse:      "spouse",
	Parent:      "parent",
	Child:       "child",
	Sibling:     "sibling",
	Grandparent: "grandparent",
	Grandchild:  "grandchild",
	UncleAunt:   "uncle_aunt",
	NephewNiece: "nephew_niece",
	Cousin:      "cousin",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// MarshalText renders the kind by name.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Inverse returns the converse relation: if a is k to b, b is k.Inverse() to a.
func (k Kind) Inverse() Kind {
	switch k {
	case Parent:
		return Child
	case Child:
		return Parent
	case Grandparent:
		return Grandchild
	case Grandchild:
		return Grandparent
	case UncleAunt:
		return NephewNiece
	case NephewNiece:
		return UncleAunt
	}
	return k
}

// Infer returns what a is to b. The first matching rule wins:
//
//  1. spouse link in either direction
//  2. father link in either direction
//  3. explicit children list in either direction
//  4. same father
//  5. father's father
//  6. a's father and b share a father (or the reverse)
//  7. fathers share a father
//
// Self pairs and members without an ID yield None. A directed rule that
// holds both ways (a father cycle, say) is contradictory and also yields None,
// so Infer(b, a) is always Infer(a, b).Inverse().
func Infer(idx *Index, a, b domain.Member) Kind {
	if !a.HasID() || !b.HasID() || a.ID == b.ID {
		return None
	}

	if a.SpouseID == b.ID || b.SpouseID == a.ID {
		return Spouse
	}

	if k, ok := oriented(a.FatherID == b.ID, b.FatherID == a.ID, Child); ok {
		return k
	}
	if k, ok := oriented(a.HasChild(b.ID), b.HasChild(a.ID), Parent); ok {
		return k
	}

	if a.FatherID != "" && a.FatherID == b.FatherID {
		return Sibling
	}

	fa, hasFA := idx.Father(a)
	fb, hasFB := idx.Father(b)

	if k, ok := oriented(hasFA && fa.FatherID == b.ID, hasFB && fb.FatherID == a.ID, Grandchild); ok {
		return k
	}

	nephew := hasFA && fa.ID != b.ID && fa.FatherID != "" && fa.FatherID == b.FatherID
	uncle := hasFB && fb.ID != a.ID && fb.FatherID != "" && fb.FatherID == a.FatherID
	if k, ok := oriented(nephew, uncle, NephewNiece); ok {
		return k
	}

	if hasFA && hasFB && fa.FatherID != "" && fa.FatherID == fb.FatherID {
		return Cousin
	}
	return None
}

// oriented resolves a directed rule checked from both ends: k when only the
// forward check holds, its inverse when only the backward one does.
func oriented(forward, backward bool, k Kind) (Kind, bool) {
	switch {
	case forward && backward:
		return None, true
	case forward:
		return k, true
	case backward:
		return k.Inverse(), true
	}
	return None, false
}

// InferByID resolves both ids through idx and infers their relation.
// Unknown ids yield None.
func InferByID(idx *Index, aID, bID string) Kind {
	a, okA := idx.Member(aID)
	b, okB := idx.Member(bID)
	if !okA || !okB {
		return None
	}
	return Infer(idx, a, b)
}

// Relative is a member related to some subject, with the relation seen from
// both sides.
type Relative struct {
	Member domain.Member `json:"member"`
	// Kind is what Member is to the subject.
	Kind Kind `json:"kind"`
}

// Relatives lists every member with an inferable relation to the member id,
// in index order. An unknown id yields nil.
func Relatives(idx *Index, id string) []Relative {
	subject, ok := idx.Member(id)
	if !ok {
		return nil
	}
	var out []Relative
	for _, m := range idx.Members() {
		if m.ID == subject.ID {
			continue
		}
		if k := Infer(idx, m, subject); k != None {
			out = append(out, Relative{Member: m, Kind: k})
		}
	}
	return out
}
