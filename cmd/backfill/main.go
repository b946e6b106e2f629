// Command backfill rebuilds derived data for stored members. Edges are
// only written when both ends exist, so records imported before their
// relatives are missing links until they are saved again; backfill re-saves
// every member and optionally re-indexes names for search.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/heritagehub/heritage/engine/graph"
	"github.com/heritagehub/heritage/engine/semantic"
	"github.com/heritagehub/heritage/pkg/config"
	"github.com/heritagehub/heritage/pkg/fn"
	"github.com/heritagehub/heritage/pkg/ollama"
	"github.com/heritagehub/heritage/pkg/repo"
)

// Link is a reference from one member to an id that is not stored.
type Link struct {
	From  string
	Field string
	To    string
}

type memberSaver interface {
	SaveBatch(ctx context.Context, members []domain.Member) error
}

type nameIndexer interface {
	Index(ctx context.Context, members []domain.Member) error
}

func main() {
	var (
		configPath = flag.String("config", os.Getenv("HERITAGE_CONFIG"), "optional YAML config file")
		batchSize  = flag.Int("batch", 200, "members per write transaction")
		reindex    = flag.Bool("reindex", true, "re-index names in Qdrant when configured")
		dryRun     = flag.Bool("dry-run", false, "report dangling links without writing")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
	if err != nil {
		logger.Error("neo4j connect", "err", err)
		os.Exit(1)
	}
	defer driver.Close(context.Background())

	gs := graph.NewWithOpener(repo.DriverOpener(driver, cfg.Neo4j.Database))
	members, err := gs.ListMembers(ctx)
	if err != nil {
		logger.Error("list members", "err", err)
		os.Exit(1)
	}

	dangling := danglingLinks(members)
	for _, l := range dangling {
		logger.Warn("dangling link", "member", l.From, "field", l.Field, "target", l.To)
	}
	logger.Info("members loaded", "members", len(members), "dangling", len(dangling), "missing_members", len(missingMembers(dangling)))
	if *dryRun {
		return
	}

	var ix nameIndexer
	if *reindex && cfg.Qdrant.URL != "" {
		vs, err := semantic.New(cfg.Qdrant.URL, cfg.Qdrant.Collection)
		if err != nil {
			logger.Error("qdrant connect", "err", err)
			os.Exit(1)
		}
		defer vs.Close()
		if err := vs.EnsureCollection(ctx, int(cfg.Qdrant.VectorSize)); err != nil {
			logger.Error("qdrant ensure collection", "err", err)
			os.Exit(1)
		}
		ix = semantic.NewFinder(vs, ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.Model))
	}

	saved, indexed, err := rebuild(ctx, gs, ix, members, *batchSize, logger)
	logger.Info("backfill done", "saved", saved, "indexed", indexed)
	if err != nil {
		logger.Error("backfill stopped", "err", err)
		os.Exit(1)
	}
}

// rebuild re-saves members in chunks and, when ix is set, re-indexes them.
// Index failures are logged and do not stop the run.
func rebuild(ctx context.Context, w memberSaver, ix nameIndexer, members []domain.Member, size int, log *slog.Logger) (saved, indexed int, err error) {
	for i, chunk := range fn.Chunk(members, size) {
		if err := ctx.Err(); err != nil {
			return saved, indexed, err
		}
		if err := w.SaveBatch(ctx, chunk); err != nil {
			return saved, indexed, fmt.Errorf("save chunk %d: %w", i, err)
		}
		saved += len(chunk)
		if ix == nil {
			continue
		}
		if err := ix.Index(ctx, chunk); err != nil {
			log.Warn("index chunk failed", "chunk", i, "err", err)
			continue
		}
		indexed += len(chunk)
	}
	return saved, indexed, nil
}

// missingMembers lists the distinct ids that dangling links point at.
func missingMembers(links []Link) []string {
	return fn.Unique(fn.Map(links, func(l Link) string { return l.To }))
}

// danglingLinks lists references to ids that are not among members,
// ordered by member then field.
func danglingLinks(members []domain.Member) []Link {
	known := make(map[string]bool, len(members))
	for _, m := range members {
		known[m.ID] = true
	}
	var out []Link
	check := func(from, field, to string) {
		if to != "" && !known[to] {
			out = append(out, Link{From: from, Field: field, To: to})
		}
	}
	for _, m := range members {
		check(m.ID, "father_id", m.FatherID)
		check(m.ID, "mother_id", m.MotherID)
		check(m.ID, "spouse_id", m.SpouseID)
		for _, c := range m.ChildrenIDs {
			check(m.ID, "children", c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}
