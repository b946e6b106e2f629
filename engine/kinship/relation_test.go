package kinship

import (
	"testing"

	"github.com/heritagehub/heritage/engine/domain"
)

func TestInferScenario(t *testing.T) {
	idx := NewIndex([]domain.Member{
		{ID: "1"},
		{ID: "2", FatherID: "1"},
		{ID: "3", FatherID: "1"},
		{ID: "4", SpouseID: "2"},
	})
	tests := []struct {
		a, b string
		want Kind
	}{
		{"2", "3", Sibling},
		{"1", "2", Parent},
		{"2", "1", Child},
		{"2", "4", Spouse},
		{"4", "2", Spouse},
	}
	for _, tt := range tests {
		if got := InferByID(idx, tt.a, tt.b); got != tt.want {
			t.Errorf("InferByID(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestInferRules(t *testing.T) {
	idx := NewIndex(family())
	tests := []struct {
		a, b string
		want Kind
	}{
		{"1", "2", Parent},
		{"5", "2", Child},
		{"8", "9", Parent},
		{"9", "8", Child},
		{"5", "7", Sibling},
		{"5", "1", Grandchild},
		{"1", "10", None},
		{"1", "5", Grandparent},
		{"5", "3", NephewNiece},
		{"3", "5", UncleAunt},
		{"5", "6", Cousin},
		{"6", "7", Cousin},
		{"4", "5", None},
		{"8", "1", None},
		{"10", "7", NephewNiece},
	}
	for _, tt := range tests {
		if got := InferByID(idx, tt.a, tt.b); got != tt.want {
			t.Errorf("InferByID(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestInferSymmetry(t *testing.T) {
	members := family()
	idx := NewIndex(members)
	for _, a := range members {
		for _, b := range members {
			if a.ID == b.ID {
				continue
			}
			ab := Infer(idx, a, b)
			ba := Infer(idx, b, a)
			if ba != ab.Inverse() {
				t.Errorf("Infer(%s,%s)=%v but Infer(%s,%s)=%v", a.ID, b.ID, ab, b.ID, a.ID, ba)
			}
		}
	}
}

func TestInferContradictoryLinksStaySymmetric(t *testing.T) {
	tests := []struct {
		name    string
		members []domain.Member
	}{
		{"father cycle", []domain.Member{
			{ID: "a", FatherID: "b"},
			{ID: "b", FatherID: "a"},
		}},
		{"children cycle", []domain.Member{
			{ID: "a", ChildrenIDs: []string{"b"}},
			{ID: "b", ChildrenIDs: []string{"a"}},
		}},
		{"grandfather cycle", []domain.Member{
			{ID: "a", FatherID: "x"},
			{ID: "x", FatherID: "b"},
			{ID: "b", FatherID: "y"},
			{ID: "y", FatherID: "a"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := NewIndex(tt.members)
			if got := InferByID(idx, "a", "b"); got != None {
				t.Errorf("Infer(a,b) = %v, want None", got)
			}
			for _, x := range tt.members {
				for _, y := range tt.members {
					if x.ID == y.ID {
						continue
					}
					if xy, yx := Infer(idx, x, y), Infer(idx, y, x); yx != xy.Inverse() {
						t.Errorf("Infer(%s,%s)=%v but Infer(%s,%s)=%v", x.ID, y.ID, xy, y.ID, x.ID, yx)
					}
				}
			}
		})
	}
}

func TestInferSelfPair(t *testing.T) {
	idx := NewIndex(family())
	if got := InferByID(idx, "2", "2"); got != None {
		t.Fatalf("self pair must be None, got %v", got)
	}
	if got := Infer(idx, domain.Member{}, domain.Member{}); got != None {
		t.Fatalf("members without id must be None, got %v", got)
	}
}

func TestInferNoStepParent(t *testing.T) {
	idx := NewIndex([]domain.Member{
		{ID: "A", FatherID: "B"},
		{ID: "B", SpouseID: "C"},
		{ID: "C"},
	})
	if got := InferByID(idx, "A", "C"); got != None {
		t.Fatalf("Infer(A, C) = %v, want none", got)
	}
	if got := InferByID(idx, "C", "A"); got != None {
		t.Fatalf("Infer(C, A) = %v, want none", got)
	}
	if got := InferByID(idx, "B", "A"); got != Parent {
		t.Fatalf("Infer(B, A) = %v, want parent", got)
	}
}

func TestInferSpouseBeatsParent(t *testing.T) {
	idx := NewIndex([]domain.Member{{ID: "1", SpouseID: "2", FatherID: "2"}, {ID: "2"}})
	if got := InferByID(idx, "1", "2"); got != Spouse {
		t.Fatalf("expected spouse precedence, got %v", got)
	}
}

func TestInferExplicitChildrenWithoutFatherLink(t *testing.T) {
	idx := NewIndex([]domain.Member{{ID: "1", ChildrenIDs: []string{"2"}}, {ID: "2"}, {ID: "3", FatherID: "2"}})
	if got := InferByID(idx, "1", "2"); got != Parent {
		t.Fatalf("explicit list: got %v", got)
	}
	// Grandparent walks father links only.
	if got := InferByID(idx, "3", "1"); got != None {
		t.Fatalf("expected none through explicit list, got %v", got)
	}
}

func TestInferDanglingLinks(t *testing.T) {
	idx := NewIndex([]domain.Member{
		{ID: "1", FatherID: "99"},
		{ID: "2", FatherID: "99"},
		{ID: "3", FatherID: "98"},
	})
	if got := InferByID(idx, "1", "2"); got != Sibling {
		t.Fatalf("shared dangling father still makes siblings, got %v", got)
	}
	if got := InferByID(idx, "1", "3"); got != None {
		t.Fatalf("expected none, got %v", got)
	}
}

func TestInferEmptyIndex(t *testing.T) {
	if got := InferByID(NewIndex(nil), "1", "2"); got != None {
		t.Fatalf("expected none, got %v", got)
	}
}

func TestKindStringAndInverse(t *testing.T) {
	pairs := map[Kind]Kind{
		None: None, Spouse: Spouse, Sibling: Sibling, Cousin: Cousin,
		Parent: Child, Grandparent: Grandchild, UncleAunt: NephewNiece,
	}
	for k, inv := range pairs {
		if k.Inverse() != inv || inv.Inverse() != k {
			t.Errorf("inverse of %v: got %v", k, k.Inverse())
		}
	}
	if UncleAunt.String() != "uncle_aunt" || Kind(42).String() != "unknown" {
		t.Errorf("unexpected names %q %q", UncleAunt, Kind(42))
	}
	b, _ := Cousin.MarshalText()
	if string(b) != "cousin" {
		t.Errorf("unexpected text %q", b)
	}
}

func TestLabels(t *testing.T) {
	tests := []struct {
		k    Kind
		g    domain.Gender
		want string
	}{
		{Parent, domain.GenderMale, "Father"},
		{Parent, domain.GenderFemale, "Mother"},
		{Child, domain.GenderUnknown, "Child"},
		{Spouse, domain.GenderFemale, "Wife"},
		{UncleAunt, domain.GenderFemale, "Aunt"},
		{None, domain.GenderMale, "No relationship found"},
	}
	for _, tt := range tests {
		if got := Label(tt.k, tt.g); got != tt.want {
			t.Errorf("Label(%v, %q) = %q, want %q", tt.k, tt.g, got, tt.want)
		}
	}
}

func TestDescribePair(t *testing.T) {
	idx := NewIndex(family())
	one, _ := idx.Member("1")
	three, _ := idx.Member("3")
	d := DescribePair(idx, one, three)
	if d.Kind != Parent || d.Inverse != Child {
		t.Fatalf("unexpected kinds %+v", d)
	}
	if d.Label != "Father" || d.InverseLabel != "Daughter" {
		t.Fatalf("unexpected labels %+v", d)
	}
}

func TestRelatives(t *testing.T) {
	idx := NewIndex(family())
	got := Relatives(idx, "2")
	want := []struct {
		id   string
		kind Kind
	}{
		{"1", Parent}, {"3", Sibling}, {"4", Spouse}, {"5", Child},
		{"6", NephewNiece}, {"7", Child}, {"10", Grandchild},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d relatives, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Member.ID != w.id || got[i].Kind != w.kind {
			t.Errorf("relative %d = %s/%v, want %s/%v", i, got[i].Member.ID, got[i].Kind, w.id, w.kind)
		}
	}
	if Relatives(idx, "404") != nil {
		t.Error("expected nil for unknown member")
	}
}
