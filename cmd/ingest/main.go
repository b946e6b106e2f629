// Command ingest consumes member upsert requests from NATS and runs them
// through the ingest pipeline into Neo4j and, when configured, Qdrant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/heritagehub/heritage/engine/graph"
	"github.com/heritagehub/heritage/engine/ingest"
	"github.com/heritagehub/heritage/engine/semantic"
	"github.com/heritagehub/heritage/pkg/config"
	"github.com/heritagehub/heritage/pkg/metrics"
	"github.com/heritagehub/heritage/pkg/ollama"
	"github.com/heritagehub/heritage/pkg/repo"
	"github.com/heritagehub/heritage/pkg/resilience"
)

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("HERITAGE_CONFIG"), "optional YAML config file")
		metricsAddr = flag.String("metrics", ":9091", "address serving /metrics, empty to disable")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if err := run(cfg, *metricsAddr, logger); err != nil {
		logger.Error("ingest worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, metricsAddr string, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met := metrics.New()
	if metricsAddr != "" {
		msrv := &http.Server{Addr: metricsAddr, Handler: met.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "err", err)
			}
		}()
		defer msrv.Close()
	}

	// Connect Neo4j
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer driver.Close(context.Background())
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("neo4j verify: %w", err)
	}
	log.Info("connected to Neo4j")

	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: 5,
		Timeout:       30 * time.Second,
		OnStateChange: func(from, to resilience.State) {
			log.Warn("neo4j circuit breaker", "from", from.String(), "to", to.String())
		},
	})
	deps := ingest.Deps{
		Store:        graph.NewWithOpener(repo.DriverOpener(driver, cfg.Neo4j.Database)),
		Metrics:      met,
		Logger:       log,
		StoreBreaker: breaker,
	}

	// Connect Qdrant
	if cfg.Qdrant.URL != "" {
		vs, err := semantic.New(cfg.Qdrant.URL, cfg.Qdrant.Collection)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer vs.Close()
		if err := vs.EnsureCollection(ctx, int(cfg.Qdrant.VectorSize)); err != nil {
			return fmt.Errorf("qdrant ensure collection: %w", err)
		}
		deps.Indexer = semantic.NewFinder(vs, ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.Model))
		log.Info("connected to Qdrant", "collection", cfg.Qdrant.Collection, "dims", cfg.Qdrant.VectorSize)
	}

	// Connect NATS
	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("heritage-ingest"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := ingest.StartConsumer(nc, deps, cfg.Ingest.Queue, cfg.Ingest.MaxRetries)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Info("consuming member upserts", "queue", cfg.Ingest.Queue, "max_retries", cfg.Ingest.MaxRetries)

	<-ctx.Done()
	log.Info("shutting down")
	return sub.Drain()
}
