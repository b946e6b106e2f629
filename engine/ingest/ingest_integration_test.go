//go:build integration

package ingest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/heritagehub/heritage/engine/graph"
	"github.com/heritagehub/heritage/pkg/natsutil"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestIntegration_ConsumerStoresAndAnnounces(t *testing.T) {
	ctx := context.Background()

	driver, err := neo4j.NewDriverWithContext(envOr("NEO4J_URL", "neo4j://localhost:7687"), neo4j.NoAuth())
	if err != nil {
		t.Fatalf("neo4j connect: %v", err)
	}
	t.Cleanup(func() {
		sess := driver.NewSession(ctx, neo4j.SessionConfig{})
		sess.Run(ctx, "MATCH (n:Member) DETACH DELETE n", nil)
		sess.Close(ctx)
		driver.Close(ctx)
	})

	nc, err := nats.Connect(envOr("NATS_URL", nats.DefaultURL))
	if err != nil {
		t.Fatalf("nats connect: %v", err)
	}
	defer nc.Close()

	changed := make(chan domain.MembersChanged, 1)
	if _, err := natsutil.Subscribe(nc, domain.SubjectMembersChanged, func(_ context.Context, ev domain.MembersChanged) {
		changed <- ev
	}); err != nil {
		t.Fatal(err)
	}

	store := graph.New(driver)
	if _, err := StartConsumer(nc, Deps{Store: store}, "ingest-test", 3); err != nil {
		t.Fatal(err)
	}

	req := domain.UpsertRequest{Records: []map[string]any{
		{"serNo": 1, "name": "Zhang San"},
		{"serNo": 2, "fatherSerNo": 1, "name": "Zhang Si"},
	}}
	if err := natsutil.Publish(ctx, nc, domain.SubjectMembersUpsert, req); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-changed:
		if len(ev.IDs) != 2 {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for members changed")
	}

	m, err := store.GetMember(ctx, "2")
	if err != nil || m.FatherID != "1" {
		t.Fatalf("GetMember: %+v %v", m, err)
	}
}
