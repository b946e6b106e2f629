// Command stats-collector fetches graph stats from the API, computes deltas
// against the previous run, and writes JSON files for a static dashboard.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/heritagehub/heritage/engine/graph"
)

// Sample is one stats reading.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	graph.Stats
}

// Delta represents changes between two consecutive samples.
type Delta struct {
	Timestamp  time.Time        `json:"timestamp"`
	Period     string           `json:"period"`
	NewMembers int64            `json:"new_members"`
	NewEdges   map[string]int64 `json:"new_edges"`
}

const maxHistory = 288

func main() {
	apiURL := flag.String("api", "http://localhost:8080", "API base URL")
	docsDir := flag.String("docs-dir", "docs", "docs directory for output")
	period := flag.Duration("period", 5*time.Minute, "collection interval recorded on each delta")
	push := flag.Bool("push", false, "git commit and push after update")
	flag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := collect(ctx, http.DefaultClient, *apiURL, filepath.Join(*docsDir, "data"), *period, time.Now().UTC(), log); err != nil {
		log.Error("collect stats", "err", err)
		os.Exit(1)
	}
	if *push {
		gitCommitPush(*docsDir, log)
	}
}

func collect(ctx context.Context, client *http.Client, apiURL, dataDir string, period time.Duration, now time.Time, log *slog.Logger) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	latestPath := filepath.Join(dataDir, "stats-latest.json")
	historyPath := filepath.Join(dataDir, "stats-history.json")
	prevPath := filepath.Join(dataDir, ".stats-prev.json")

	stats, err := fetchStats(ctx, client, apiURL)
	if err != nil {
		return err
	}
	current := Sample{Timestamp: now, Stats: stats}

	var prev Sample
	if data, err := os.ReadFile(prevPath); err == nil {
		if err := json.Unmarshal(data, &prev); err != nil {
			log.Warn("ignoring unreadable previous sample", "path", prevPath, "err", err)
			prev = Sample{}
		}
	}
	delta := computeDelta(prev, current, period)

	var history []Delta
	if data, err := os.ReadFile(historyPath); err == nil {
		if err := json.Unmarshal(data, &history); err != nil {
			log.Warn("resetting unreadable history", "path", historyPath, "err", err)
			history = nil
		}
	}
	history = appendHistory(history, delta, maxHistory)

	if err := writeJSONFile(latestPath, current); err != nil {
		return fmt.Errorf("write latest: %w", err)
	}
	if err := writeJSONFile(historyPath, history); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := writeJSONFile(prevPath, current); err != nil {
		return fmt.Errorf("write prev: %w", err)
	}

	log.Info("stats collected", "members", current.Members, "new_members", delta.NewMembers, "new_edges", delta.NewEdges)
	return nil
}

func fetchStats(ctx context.Context, client *http.Client, apiURL string) (graph.Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/stats", nil)
	if err != nil {
		return graph.Stats{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return graph.Stats{}, fmt.Errorf("fetch stats: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return graph.Stats{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return graph.Stats{}, fmt.Errorf("API returned %d: %s", resp.StatusCode, body)
	}
	var stats graph.Stats
	if err := json.Unmarshal(body, &stats); err != nil {
		return graph.Stats{}, fmt.Errorf("parse stats: %w", err)
	}
	return stats, nil
}

// computeDelta reports growth since prev. Edge types missing from either
// side count as zero.
func computeDelta(prev, cur Sample, period time.Duration) Delta {
	d := Delta{
		Timestamp:  cur.Timestamp,
		Period:     period.String(),
		NewMembers: cur.Members - prev.Members,
		NewEdges:   make(map[string]int64),
	}
	for k, v := range cur.Edges {
		d.NewEdges[k] = v - prev.Edges[k]
	}
	for k, v := range prev.Edges {
		if _, ok := cur.Edges[k]; !ok {
			d.NewEdges[k] = -v
		}
	}
	return d
}

func appendHistory(history []Delta, d Delta, max int) []Delta {
	history = append(history, d)
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func gitCommitPush(docsDir string, log *slog.Logger) {
	cmds := [][]string{
		{"git", "add", filepath.Join(docsDir, "data/")},
		{"git", "commit", "-m", fmt.Sprintf("stats: sample %s", time.Now().UTC().Format("2006-01-02T15:04"))},
		{"git", "push"},
	}
	for _, args := range cmds {
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			log.Warn("git command failed", "args", args, "err", err)
		}
	}
}
