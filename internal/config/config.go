// Package config loads the engine configuration. Every knob has a default,
// an optional YAML file (CONFIG_FILE) overlays the defaults, and environment
// variables override both, so containers can run with nothing but env.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/venuepos/dispatch/internal/store"
)

// Store backends the engine can be wired to.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
)

// Config is the full engine configuration.
type Config struct {
	Service string `yaml:"service"`
	Env     string `yaml:"env"`

	HTTP struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`

	Store struct {
		// Backend selects the gateway implementation.
		Backend string `yaml:"backend"`
		// CollectionRoot is the top-level collection purchases and points
		// of sale live under. Historic deployments used PosEvents.
		CollectionRoot string `yaml:"collection_root"`
	} `yaml:"store"`

	Mongo struct {
		URI      string        `yaml:"uri"`
		Database string        `yaml:"database"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"mongo"`

	Kafka struct {
		// Brokers empty disables the notification relay.
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
}

// Default returns the configuration the engine runs with when nothing is set.
func Default() Config {
	var cfg Config
	cfg.Service = "dispatch"
	cfg.Env = "dev"
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.ShutdownTimeout = 10 * time.Second
	cfg.Store.Backend = BackendMemory
	cfg.Store.CollectionRoot = store.RootEvents
	cfg.Mongo.URI = "mongodb://localhost:27017"
	cfg.Mongo.Database = "dispatch"
	cfg.Mongo.CacheTTL = 30 * time.Second
	cfg.Kafka.Topic = "dispatch-notifications"
	return cfg
}

// Load builds the effective configuration from defaults, the optional
// CONFIG_FILE YAML overlay and environment overrides, then validates it.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.Service = getenvDefault("SERVICE_NAME", cfg.Service)
	cfg.Env = getenvDefault("ENV", cfg.Env)
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Store.Backend = getenvDefault("STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.CollectionRoot = getenvDefault("COLLECTION_ROOT", cfg.Store.CollectionRoot)
	cfg.Mongo.URI = getenvDefault("MONGO_URI", cfg.Mongo.URI)
	cfg.Mongo.Database = getenvDefault("MONGO_DATABASE", cfg.Mongo.Database)
	cfg.Kafka.Topic = getenvDefault("KAFKA_TOPIC", cfg.Kafka.Topic)
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.HTTP.ShutdownTimeout = d
	}
	if v := os.Getenv("MONGO_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: MONGO_CACHE_TTL: %w", err)
		}
		cfg.Mongo.CacheTTL = d
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendMongo:
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if _, err := store.NewPaths(c.Store.CollectionRoot); err != nil {
		return err
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("config: http addr is required")
	}
	return nil
}

// Paths returns the validated collection path builder.
func (c Config) Paths() store.Paths {
	p, err := store.NewPaths(c.Store.CollectionRoot)
	if err != nil {
		// validate() already rejected unknown roots.
		panic(err)
	}
	return p
}

// RelayEnabled reports whether the Kafka notification relay should run.
func (c Config) RelayEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
