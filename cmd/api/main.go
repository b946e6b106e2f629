// Package main implements the genealogy API server.
package main

import (
	"context"
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
	"github.com/heritagehub/heritage/engine/semantic"
	"github.com/heritagehub/heritage/engine/snapshot"
	"github.com/heritagehub/heritage/pkg/config"
	"github.com/heritagehub/heritage/pkg/metrics"
	"github.com/heritagehub/heritage/pkg/mid"
	"github.com/heritagehub/heritage/pkg/ollama"
	"github.com/heritagehub/heritage/pkg/repo"
	"github.com/heritagehub/heritage/pkg/resilience"
)

func main() {
	configPath := flag.String("config", os.Getenv("HERITAGE_CONFIG"), "optional YAML config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met := metrics.New()

	// --- Connect to Neo4j ---
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
	if err != nil {
		return fmt.Errorf("neo4j driver: %w", err)
	}
	defer neo4jDriver.Close(context.Background())

	store := graph.NewWithOpener(repo.DriverOpener(neo4jDriver, cfg.Neo4j.Database))

	// --- Snapshot cache ---
	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: 5,
		Timeout:       15 * time.Second,
		OnStateChange: func(from, to resilience.State) {
			logger.Warn("neo4j circuit breaker", "from", from.String(), "to", to.String())
		},
	})
	snaps := snapshot.New(store, snapshot.Options{
		TTL:     cfg.Snapshot.TTL,
		Breaker: breaker,
		Metrics: met,
		Logger:  logger,
	})

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("heritage-api"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	if _, err := snaps.Watch(nc); err != nil {
		return err
	}

	srv := &server{
		snaps:   snaps,
		store:   store,
		pub:     nc,
		metrics: met,
		log:     logger,
	}

	// --- Member search (optional) ---
	if cfg.Qdrant.URL != "" {
		vs, err := semantic.New(cfg.Qdrant.URL, cfg.Qdrant.Collection)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer vs.Close()
		if err := vs.EnsureCollection(ctx, int(cfg.Qdrant.VectorSize)); err != nil {
			logger.Warn("qdrant unavailable, search disabled", "err", err)
		} else {
			srv.finder = semantic.NewFinder(vs, ollama.NewEmbedClient(cfg.Ollama.URL, cfg.Ollama.Model))
			logger.Info("member search enabled", "collection", cfg.Qdrant.Collection, "model", cfg.Ollama.Model)
		}
	}

	// --- Build HTTP server ---
	handler := mid.Chain(srv.routes(),
		mid.Recover(logger),
		mid.OTel("heritage-api"),
		mid.CORS(cfg.Server.CORSOrigin),
		mid.Logger(logger),
		mid.Metrics(met),
		mid.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}
