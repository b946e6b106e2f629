package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/heritagehub/heritage/engine/domain"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeSaver struct {
	batches [][]string
	failAt  int
}

func (f *fakeSaver) SaveBatch(_ context.Context, ms []domain.Member) error {
	if f.failAt > 0 && len(f.batches)+1 == f.failAt {
		return errors.New("neo4j down")
	}
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	f.batches = append(f.batches, ids)
	return nil
}

type fakeIndexer struct {
	calls int
	err   error
}

func (f *fakeIndexer) Index(context.Context, []domain.Member) error {
	f.calls++
	return f.err
}

func members(ids ...string) []domain.Member {
	out := make([]domain.Member, len(ids))
	for i, id := range ids {
		out[i] = domain.Member{ID: id}
	}
	return out
}

func TestDanglingLinks(t *testing.T) {
	ms := []domain.Member{
		{ID: "2", SpouseID: "1", ChildrenIDs: []string{"3", "7"}},
		{ID: "1", SpouseID: "2"},
		{ID: "3", FatherID: "1", MotherID: "9"},
	}
	got := danglingLinks(ms)
	want := []Link{
		{From: "2", Field: "children", To: "7"},
		{From: "3", Field: "mother_id", To: "9"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if got := danglingLinks(ms[1:2]); len(got) != 1 || got[0].To != "2" {
		t.Fatalf("expected spouse link to be dangling, got %+v", got)
	}
}

func TestMissingMembers(t *testing.T) {
	links := []Link{
		{From: "2", Field: "children", To: "7"},
		{From: "3", Field: "mother_id", To: "9"},
		{From: "4", Field: "father_id", To: "7"},
	}
	if got := missingMembers(links); !reflect.DeepEqual(got, []string{"7", "9"}) {
		t.Fatalf("got %v", got)
	}
	if got := missingMembers(nil); len(got) != 0 {
		t.Fatalf("got %v for no links", got)
	}
}

func TestRebuildChunks(t *testing.T) {
	w := &fakeSaver{}
	ix := &fakeIndexer{}
	saved, indexed, err := rebuild(context.Background(), w, ix, members("1", "2", "3", "4", "5"), 2, discard)
	if err != nil {
		t.Fatal(err)
	}
	if saved != 5 || indexed != 5 {
		t.Fatalf("saved=%d indexed=%d, want 5 and 5", saved, indexed)
	}
	want := [][]string{{"1", "2"}, {"3", "4"}, {"5"}}
	if !reflect.DeepEqual(w.batches, want) {
		t.Fatalf("batches = %v, want %v", w.batches, want)
	}
	if ix.calls != 3 {
		t.Fatalf("index calls = %d, want 3", ix.calls)
	}
}

func TestRebuildWithoutIndexer(t *testing.T) {
	w := &fakeSaver{}
	saved, indexed, err := rebuild(context.Background(), w, nil, members("1", "2", "3"), 10, discard)
	if err != nil || saved != 3 || indexed != 0 {
		t.Fatalf("saved=%d indexed=%d err=%v", saved, indexed, err)
	}
}

func TestRebuildIndexFailureContinues(t *testing.T) {
	w := &fakeSaver{}
	ix := &fakeIndexer{err: errors.New("qdrant down")}
	saved, indexed, err := rebuild(context.Background(), w, ix, members("1", "2", "3"), 2, discard)
	if err != nil {
		t.Fatal(err)
	}
	if saved != 3 || indexed != 0 || ix.calls != 2 {
		t.Fatalf("saved=%d indexed=%d calls=%d", saved, indexed, ix.calls)
	}
}

func TestRebuildSaveFailureStops(t *testing.T) {
	w := &fakeSaver{failAt: 2}
	saved, _, err := rebuild(context.Background(), w, nil, members("1", "2", "3", "4", "5"), 2, discard)
	if err == nil {
		t.Fatal("expected error")
	}
	if saved != 2 {
		t.Fatalf("saved = %d, want 2", saved)
	}
}

func TestRebuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := &fakeSaver{}
	if _, _, err := rebuild(ctx, w, nil, members("1"), 1, discard); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(w.batches) != 0 {
		t.Fatal("nothing should be saved after cancel")
	}
}
