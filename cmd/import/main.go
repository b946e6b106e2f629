// Command import loads a file of raw member records. Records are either
// published to the ingest worker over NATS (-publish) or run through the
// ingest pipeline in-process against Neo4j.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/heritagehub/heritage/engine/domain"
	"github.com/heritagehub/heritage/engine/graph"
	"github.com/heritagehub/heritage/engine/ingest"
	"github.com/heritagehub/heritage/engine/semantic"
	"github.com/heritagehub/heritage/pkg/config"
	"github.com/heritagehub/heritage/pkg/fn"
	"github.com/heritagehub/heritage/pkg/natsutil"
	"github.com/heritagehub/heritage/pkg/ollama"
	"github.com/heritagehub/heritage/pkg/repo"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("HERITAGE_CONFIG"), "optional YAML config file")
		file       = flag.String("file", "members.json", "JSON array or newline-delimited records")
		publish    = flag.Bool("publish", false, "publish to the ingest worker instead of writing directly")
		batchSize  = flag.Int("batch", 500, "records per upsert request")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, *file, *publish, *batchSize, logger); err != nil {
		logger.Error("import failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, path string, publish bool, batchSize int, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	records, err := readRecords(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	reqs := requests(records, batchSize)
	log.Info("records loaded", "file", path, "records", len(records), "requests", len(reqs))

	if publish {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("heritage-import"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()
		if err := publishAll(ctx, nc, reqs); err != nil {
			return err
		}
		if err := nc.Flush(); err != nil {
			return fmt.Errorf("nats flush: %w", err)
		}
		log.Info("published", "requests", len(reqs))
		return nil
	}

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(context.Background())

	deps := ingest.Deps{
		Store:  graph.NewWithOpener(repo.DriverOpener(driver, cfg.Neo4j.Database)),
		Logger: log,
	}
	if cfg.Qdrant.URL != "" {
		vs, err := semantic.New(cfg.Qdrant.URL, cfg.Qdrant.Collection)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer vs.Close()
		if err := vs.EnsureCollection(ctx, int(cfg.Qdrant.VectorSize)); err != nil {
			log.Warn("qdrant unavailable, names will not be indexed", "err", err)
		} else {
			deps.Indexer = semantic.NewFinder(vs, ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.Model))
		}
	}
	// Announce changes so running API servers reload; optional for imports.
	if nc, err := nats.Connect(cfg.NATS.URL, nats.Name("heritage-import")); err != nil {
		log.Warn("nats unavailable, running services will not be notified", "err", err)
	} else {
		defer nc.Close()
		deps.Publisher = nc
	}

	stored, failed := importAll(ctx, ingest.NewPipeline(deps), reqs, log)
	log.Info("import done", "stored", stored, "failed_requests", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(reqs))
	}
	return nil
}

// readRecords accepts a JSON array of records, a stream of records
// (newline-delimited or concatenated), or a mix of both.
func readRecords(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	dec.UseNumber()
	var out []map[string]any
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '[' {
			var batch []map[string]any
			if err := unmarshalNumbers(raw, &batch); err != nil {
				return nil, err
			}
			out = append(out, batch...)
			continue
		}
		var rec map[string]any
		if err := unmarshalNumbers(raw, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

func unmarshalNumbers(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}

// requests splits records into upsert requests of at most size records.
func requests(records []map[string]any, size int) []domain.UpsertRequest {
	chunks := fn.Chunk(records, size)
	return fn.Map(chunks, func(c []map[string]any) domain.UpsertRequest {
		return domain.UpsertRequest{RequestID: uuid.NewString(), Records: c}
	})
}

func memberCount(ev domain.MembersChanged) int { return len(ev.IDs) }

func publishAll(ctx context.Context, pub natsutil.Publisher, reqs []domain.UpsertRequest) error {
	for i, req := range reqs {
		if err := natsutil.Publish(ctx, pub, domain.SubjectMembersUpsert, req); err != nil {
			return fmt.Errorf("publish request %d: %w", i, err)
		}
	}
	return nil
}

func importAll(ctx context.Context, pipeline fn.Stage[domain.UpsertRequest, domain.MembersChanged], reqs []domain.UpsertRequest, log *slog.Logger) (stored, failed int) {
	for _, req := range reqs {
		if ctx.Err() != nil {
			break
		}
		n, err := fn.MapResult(pipeline(ctx, req), memberCount).Unwrap()
		if err != nil {
			log.Error("request failed", "request_id", req.RequestID, "records", len(req.Records), "err", err)
			failed++
			continue
		}
		stored += n
	}
	return stored, failed
}
