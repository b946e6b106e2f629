// Package config loads service configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the configuration shared by the genealogy binaries.
type Config struct {
	Server   Server   `yaml:"server"`
	Neo4j    Neo4j    `yaml:"neo4j"`
	NATS     NATS     `yaml:"nats"`
	Qdrant   Qdrant   `yaml:"qdrant"`
	Ollama   Ollama   `yaml:"ollama"`
	Snapshot Snapshot `yaml:"snapshot"`
	Ingest   Ingest   `yaml:"ingest"`
}

type Server struct {
	Port           string  `yaml:"port"`
	CORSOrigin     string  `yaml:"cors_origin"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

type Neo4j struct {
	URL      string `yaml:"url"`
	User     string `yaml:"user"`
	Pass     string `yaml:"pass"`
	Database string `yaml:"database"`
}

type NATS struct {
	URL string `yaml:"url"`
}

// Qdrant configures member name search. Search is off when URL is empty.
type Qdrant struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	VectorSize uint64 `yaml:"vector_size"`
}

type Ollama struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

type Snapshot struct {
	// TTL bounds snapshot age even without change events; 0 disables expiry.
	TTL time.Duration `yaml:"ttl"`
}

type Ingest struct {
	Queue      string `yaml:"queue"`
	MaxRetries int    `yaml:"max_retries"`
}

// Default returns a configuration usable for local development.
func Default() Config {
	return Config{
		Server: Server{
			Port:           "8080",
			CORSOrigin:     "*",
			RateLimitRPS:   50,
			RateLimitBurst: 100,
		},
		Neo4j: Neo4j{
			URL:  "neo4j://localhost:7687",
			User: "neo4j",
			Pass: "password",
		},
		NATS: NATS{URL: "nats://localhost:4222"},
		Qdrant: Qdrant{
			URL:        "localhost:6334",
			Collection: "members",
			VectorSize: 768,
		},
		Ollama: Ollama{
			URL:   "http://localhost:11434",
			Model: "nomic-embed-text",
		},
		Snapshot: Snapshot{TTL: 5 * time.Minute},
		Ingest: Ingest{
			Queue:      "ingest",
			MaxRetries: 3,
		},
	}
}

// Load returns Default overlaid with the YAML file at path (skipped when
// path is empty) and then with environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings no service can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	if c.Neo4j.URL == "" {
		errs = append(errs, errors.New("neo4j.url is required"))
	}
	if c.Snapshot.TTL < 0 {
		errs = append(errs, errors.New("snapshot.ttl must not be negative"))
	}
	if c.Ingest.MaxRetries < 1 {
		errs = append(errs, errors.New("ingest.max_retries must be at least 1"))
	}
	if c.Qdrant.URL != "" && c.Qdrant.VectorSize == 0 {
		errs = append(errs, errors.New("qdrant.vector_size is required when search is enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func applyEnv(c *Config) error {
	c.Server.Port = envOr("PORT", c.Server.Port)
	c.Server.CORSOrigin = envOr("CORS_ORIGIN", c.Server.CORSOrigin)
	c.Neo4j.URL = envOr("NEO4J_URL", c.Neo4j.URL)
	c.Neo4j.User = envOr("NEO4J_USER", c.Neo4j.User)
	c.Neo4j.Pass = envOr("NEO4J_PASS", c.Neo4j.Pass)
	c.Neo4j.Database = envOr("NEO4J_DATABASE", c.Neo4j.Database)
	c.NATS.URL = envOr("NATS_URL", c.NATS.URL)
	c.Qdrant.URL = envOr("QDRANT_URL", c.Qdrant.URL)
	c.Qdrant.Collection = envOr("QDRANT_COLLECTION", c.Qdrant.Collection)
	c.Ollama.URL = envOr("OLLAMA_URL", c.Ollama.URL)
	c.Ollama.Model = envOr("OLLAMA_MODEL", c.Ollama.Model)
	c.Ingest.Queue = envOr("INGEST_QUEUE", c.Ingest.Queue)

	var errs []error
	parse := func(key string, set func(string) error) {
		if v := os.Getenv(key); v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	}
	parse("RATE_LIMIT_RPS", func(v string) (err error) {
		c.Server.RateLimitRPS, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("RATE_LIMIT_BURST", func(v string) (err error) {
		c.Server.RateLimitBurst, err = strconv.Atoi(v)
		return err
	})
	parse("SNAPSHOT_TTL", func(v string) (err error) {
		c.Snapshot.TTL, err = time.ParseDuration(v)
		return err
	})
	parse("QDRANT_VECTOR_SIZE", func(v string) (err error) {
		c.Qdrant.VectorSize, err = strconv.ParseUint(v, 10, 64)
		return err
	})
	parse("INGEST_MAX_RETRIES", func(v string) (err error) {
		c.Ingest.MaxRetries, err = strconv.Atoi(v)
		return err
	})
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	return nil
}
