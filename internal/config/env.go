package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays SIFT_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("SIFT_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SIFT_FSYNC"); v != "" {
		cfg.Fsync = strings.ToLower(v)
	}
	if v := os.Getenv("SIFT_FSYNC_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FsyncIntervalMs = n
		}
	}
	if v := os.Getenv("SIFT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SIFT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("SIFT_LOG_OUTPUTS"); v != "" {
		cfg.Log.Outputs = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Log.Outputs = append(cfg.Log.Outputs, p)
			}
		}
	}
	if v := os.Getenv("SIFT_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("SIFT_MAX_DOCS_PER_SEGMENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.MaxDocsPerSegment = n
		}
	}
}
