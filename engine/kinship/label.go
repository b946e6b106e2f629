package kinship

import "github.com/heritagehub/heritage/engine/domain"

// labels holds the English presentation labels per kind: male, female, neutral.
var labels = map[Kind][3]string{
	Spouse:      {"Husband", "Wife", "Spouse"},
	Parent:      {"Father", "Mother", "Parent"},
	Child:       {"Son", "Daughter", "Child"},
	Sibling:     {"Brother", "Sister", "Sibling"},
	Grandparent: {"Grandfather", "Grandmother", "Grandparent"},
	Grandchild:  {"Grandson", "Granddaughter", "Grandchild"},
	UncleAunt:   {"Uncle", "Aunt", "Uncle/Aunt"},
	NephewNiece: {"Nephew", "Niece", "Nephew/Niece"},
	Cousin:      {"Cousin", "Cousin", "Cousin"},
}

// Label returns the presentation label for a member of the given gender
// standing in relation k. None yields "No relationship found".
func Label(k Kind, g domain.Gender) string {
	l, ok := labels[k]
	if !ok {
		return "No relationship found"
	}
	switch g {
	case domain.GenderMale:
		return l[0]
	case domain.GenderFemale:
		return l[1]
	}
	return l[2]
}

// Description is the presentation of one inferred relation between a and b.
type Description struct {
	Kind         Kind   `json:"kind"`
	Inverse      Kind   `json:"inverse"`
	Label        string `json:"label"`
	InverseLabel string `json:"inverse_label"`
}

// DescribePair infers the relation between a and b and labels both sides:
// Label names a relative to b, InverseLabel names b relative to a.
func DescribePair(idx *Index, a, b domain.Member) Description {
	k := Infer(idx, a, b)
	return Description{
		Kind:         k,
		Inverse:      k.Inverse(),
		Label:        Label(k, a.Gender),
		InverseLabel: Label(k.Inverse(), b.Gender),
	}
}
