package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/heritagehub/heritage/engine/graph"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestComputeDelta(t *testing.T) {
	prev := Sample{Stats: graph.Stats{Members: 10, Edges: map[string]int64{"FATHER_OF": 4, "MOTHER_OF": 2}}}
	cur := Sample{Timestamp: time.Unix(100, 0), Stats: graph.Stats{Members: 13, Edges: map[string]int64{"FATHER_OF": 6, "SPOUSE_OF": 2}}}

	d := computeDelta(prev, cur, 5*time.Minute)
	if d.NewMembers != 3 {
		t.Errorf("NewMembers = %d, want 3", d.NewMembers)
	}
	if d.Period != "5m0s" {
		t.Errorf("Period = %q", d.Period)
	}
	want := map[string]int64{"FATHER_OF": 2, "SPOUSE_OF": 2, "MOTHER_OF": -2}
	for k, v := range want {
		if d.NewEdges[k] != v {
			t.Errorf("NewEdges[%s] = %d, want %d", k, d.NewEdges[k], v)
		}
	}
}

func TestAppendHistory(t *testing.T) {
	var h []Delta
	for i := 0; i < 5; i++ {
		h = appendHistory(h, Delta{NewMembers: int64(i)}, 3)
	}
	if len(h) != 3 || h[0].NewMembers != 2 || h[2].NewMembers != 4 {
		t.Fatalf("history = %+v", h)
	}
}

func statsServer(t *testing.T, members *int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/stats" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(graph.Stats{Members: *members, Edges: map[string]int64{"SPOUSE_OF": *members / 2}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCollectTwice(t *testing.T) {
	members := int64(4)
	srv := statsServer(t, &members)
	dir := filepath.Join(t.TempDir(), "data")

	if err := collect(context.Background(), srv.Client(), srv.URL, dir, time.Minute, time.Unix(0, 0).UTC(), discard); err != nil {
		t.Fatal(err)
	}
	members = 10
	if err := collect(context.Background(), srv.Client(), srv.URL, dir, time.Minute, time.Unix(60, 0).UTC(), discard); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "stats-history.json"))
	if err != nil {
		t.Fatal(err)
	}
	var history []Delta
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history has %d entries, want 2", len(history))
	}
	if history[0].NewMembers != 4 || history[1].NewMembers != 6 {
		t.Fatalf("deltas = %+v", history)
	}
	if history[1].NewEdges["SPOUSE_OF"] != 3 {
		t.Fatalf("spouse delta = %d, want 3", history[1].NewEdges["SPOUSE_OF"])
	}

	var latest Sample
	data, _ = os.ReadFile(filepath.Join(dir, "stats-latest.json"))
	if err := json.Unmarshal(data, &latest); err != nil || latest.Members != 10 {
		t.Fatalf("latest = %+v, err %v", latest, err)
	}
}

func TestFetchStatsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	if _, err := fetchStats(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Fatal("expected error for 503")
	}
}
