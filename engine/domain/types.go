// Package domain defines the canonical member record shared by the kinship
// engine, the repository and the ingest pipeline. Raw records enter through
// NormalizeRecord; nothing downstream looks at field-name variants.
package domain

// Gender is a display attribute used only to pick presentation labels.
type Gender string

const (
	GenderUnknown Gender = ""
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
)

// Name holds the name parts of a member.
type Name struct {
	Given   string `json:"given,omitempty"`
	Family  string `json:"family,omitempty"`
	Display string `json:"display,omitempty"`
}

// Member is one person in the genealogy graph.
//
// Identifiers are canonical strings: numeric identifiers are rendered in base
// 10 without leading zeros, an empty string means the link is absent.
type Member struct {
	ID          string            `json:"id"`
	FatherID    string            `json:"father_id,omitempty"`
	MotherID    string            `json:"mother_id,omitempty"`
	SpouseID    string            `json:"spouse_id,omitempty"`
	ChildrenIDs []string          `json:"children_ids,omitempty"`
	Generation  *int              `json:"generation,omitempty"`
	Gender      Gender            `json:"gender,omitempty"`
	Name        Name              `json:"name"`
	BirthDate   string            `json:"birth_date,omitempty"`
	DeathDate   string            `json:"death_date,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// HasID reports whether the member can take part in graph operations.
func (m Member) HasID() bool { return m.ID != "" }

// DisplayName returns the best available presentation name, falling back to
// the identifier.
func (m Member) DisplayName() string {
	switch {
	case m.Name.Display != "":
		return m.Name.Display
	case m.Name.Family != "" && m.Name.Given != "":
		return m.Name.Family + " " + m.Name.Given
	case m.Name.Given != "":
		return m.Name.Given
	case m.Name.Family != "":
		return m.Name.Family
	}
	return m.ID
}

// HasChild reports whether id is listed in the explicit children list.
func (m Member) HasChild(id string) bool {
	if id == "" {
		return false
	}
	for _, c := range m.ChildrenIDs {
		if c == id {
			return true
		}
	}
	return false
}

// Gen returns a pointer to g, for building members in code.
func Gen(g int) *int { return &g }
