//go:build integration

package graph

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func testDriver(t *testing.T) neo4j.DriverWithContext {
	t.Helper()
	url := envOr("NEO4J_URL", "neo4j://localhost:7687")
	driver, err := neo4j.NewDriverWithContext(url, neo4j.NoAuth())
	if err != nil {
		t.Fatalf("neo4j connect: %v", err)
	}
	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		t.Fatalf("neo4j verify: %v", err)
	}
	t.Cleanup(func() {
		sess := driver.NewSession(ctx, neo4j.SessionConfig{})
		sess.Run(ctx, "MATCH (n:Member) DETACH DELETE n", nil)
		sess.Close(ctx)
		driver.Close(ctx)
	})
	return driver
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestNeo4j_SaveAndGetMember(t *testing.T) {
	store := New(testDriver(t))
	ctx := context.Background()

	m := domain.Member{
		ID:         "2",
		FatherID:   "1",
		Generation: domain.Gen(2),
		Name:       domain.Name{Given: "Ming", Family: "Zhang"},
		Attributes: map[string]string{"branch": "north"},
	}
	if err := store.SaveMember(ctx, m); err != nil {
		t.Fatalf("SaveMember: %v", err)
	}
	got, err := store.GetMember(ctx, "2")
	if err != nil {
		t.Fatalf("GetMember: %v", err)
	}
	if got.FatherID != "1" || *got.Generation != 2 || got.Attributes["branch"] != "north" {
		t.Fatalf("mismatch: got %+v", got)
	}

	m.FatherID = ""
	if err := store.SaveMember(ctx, m); err != nil {
		t.Fatalf("SaveMember update: %v", err)
	}
	got, _ = store.GetMember(ctx, "2")
	if got.FatherID != "" {
		t.Fatalf("expected father cleared, got %q", got.FatherID)
	}

	m.Attributes = nil
	if err := store.SaveMember(ctx, m); err != nil {
		t.Fatalf("SaveMember drop attributes: %v", err)
	}
	got, _ = store.GetMember(ctx, "2")
	if _, ok := got.Attributes["branch"]; ok {
		t.Fatalf("expected removed attribute to stay removed, got %+v", got.Attributes)
	}
}

func TestNeo4j_ListKeepsInsertionOrder(t *testing.T) {
	store := New(testDriver(t))
	ctx := context.Background()

	batch := []domain.Member{{ID: "10"}, {ID: "2"}, {ID: "33"}}
	if err := store.SaveBatch(ctx, batch); err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	// Updating an existing member must not move it.
	if err := store.SaveMember(ctx, domain.Member{ID: "10", Gender: domain.GenderMale}); err != nil {
		t.Fatalf("SaveMember: %v", err)
	}
	got, err := store.ListMembers(ctx)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(got) != 3 || got[0].ID != "10" || got[1].ID != "2" || got[2].ID != "33" {
		t.Fatalf("unexpected order %+v", got)
	}
}

func TestNeo4j_LineagePathAndStats(t *testing.T) {
	store := New(testDriver(t))
	ctx := context.Background()

	err := store.SaveBatch(ctx, []domain.Member{
		{ID: "1"},
		{ID: "2", FatherID: "1"},
		{ID: "3", FatherID: "1"},
		{ID: "4", SpouseID: "2"},
		{ID: "6", FatherID: "3"},
		{ID: "99"},
	})
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}

	path, err := store.LineagePath(ctx, "4", "6")
	if err != nil {
		t.Fatalf("LineagePath: %v", err)
	}
	if len(path) != 5 || path[0].ID != "4" || path[4].ID != "6" {
		t.Fatalf("unexpected path %+v", path)
	}
	if _, err := store.LineagePath(ctx, "1", "99"); !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected no path, got %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Members != 6 || stats.Edges[RelFatherOf] != 3 || stats.Edges[RelSpouseOf] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	if err := store.DeleteMember(ctx, "99"); err != nil {
		t.Fatalf("DeleteMember: %v", err)
	}
	if err := store.DeleteMember(ctx, "99"); !errors.Is(err, domain.ErrMemberNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
