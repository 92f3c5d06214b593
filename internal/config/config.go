package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	logpkg "github.com/rzbill/sift/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// Fsync is one of always|interval|never.
	Fsync           string        `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs int           `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
	Log             logpkg.Config `json:"log" yaml:"log"`
	Metrics         Metrics       `json:"metrics" yaml:"metrics"`
	Indexer         Indexer       `json:"indexer" yaml:"indexer"`
}

// Metrics controls the Prometheus endpoint.
type Metrics struct {
	// Addr is the listen address for /metrics. Empty disables the endpoint.
	Addr string `json:"addr" yaml:"addr"`
}

// Indexer holds writer limits.
type Indexer struct {
	MaxDocsPerSegment int `json:"maxDocsPerSegment" yaml:"maxDocsPerSegment"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:         DefaultDataDir(),
		Fsync:           "interval",
		FsyncIntervalMs: 5,
		Log:             logpkg.Config{Level: "info", Format: "text", Outputs: []string{"console"}},
		Indexer:         Indexer{MaxDocsPerSegment: 1000},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Fsync {
	case "", "always", "interval", "never":
	default:
		return fmt.Errorf("config: unknown fsync mode %q", c.Fsync)
	}
	if c.FsyncIntervalMs < 0 {
		return fmt.Errorf("config: fsyncIntervalMs must be >= 0")
	}
	if c.Indexer.MaxDocsPerSegment < 0 {
		return fmt.Errorf("config: indexer.maxDocsPerSegment must be >= 0")
	}
	return nil
}
