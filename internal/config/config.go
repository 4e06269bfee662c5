// Package config holds runtime settings for the Ringside offline core and
// its CLI. Values are resolved in three stages: built-in defaults, then an
// optional JSON file, then command-line flags. Later stages win.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ringsideapp/ringside/internal/timex"
)

// Config holds runtime settings.
//
// Units: intervals and TTLs are time.Durations; the JSON file may specify
// them as strings like "30s" or "168h".
type Config struct {
	// BackendAddr is the base URL of the managed scoring API.
	BackendAddr string

	// PushAddr is the websocket URL of the realtime score channel.
	PushAddr string

	// DatabasePath is the SQLite file backing the durable store.
	DatabasePath string

	// SyncInterval is how often the pending-sync consumer runs.
	SyncInterval time.Duration

	// PreloadTTL is how long preloaded shows stay trusted.
	PreloadTTL time.Duration

	// PreloadBatchSize is the entry page size during preload.
	PreloadBatchSize int
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendAddr = "https://scores.ringside.app"
	c.PushAddr = "wss://scores.ringside.app/api/push"
	c.DatabasePath = "ringside.db"
	c.SyncInterval = 30 * time.Second
	c.PreloadTTL = 7 * 24 * time.Hour
	c.PreloadBatchSize = 50
}

// fileConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so the file can specify intervals either as strings like
// "30s" or as integer nanoseconds.
type fileConfig struct {
	BackendAddr      string         `json:"backend_addr"`
	PushAddr         string         `json:"push_addr"`
	DatabasePath     string         `json:"database_path"`
	SyncInterval     timex.Duration `json:"sync_interval"`
	PreloadTTL       timex.Duration `json:"preload_ttl"`
	PreloadBatchSize int            `json:"preload_batch_size"`
}

// ApplyFile overlays c with values from the JSON file at path. Fields absent
// from the file keep their current values.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.BackendAddr != "" {
		c.BackendAddr = fc.BackendAddr
	}
	if fc.PushAddr != "" {
		c.PushAddr = fc.PushAddr
	}
	if fc.DatabasePath != "" {
		c.DatabasePath = fc.DatabasePath
	}
	if fc.SyncInterval.Duration > 0 {
		c.SyncInterval = fc.SyncInterval.Duration
	}
	if fc.PreloadTTL.Duration > 0 {
		c.PreloadTTL = fc.PreloadTTL.Duration
	}
	if fc.PreloadBatchSize > 0 {
		c.PreloadBatchSize = fc.PreloadBatchSize
	}
	return nil
}

// Load constructs a Config from defaults plus an optional JSON file (path
// may be empty). Flag overlays happen at the CLI layer, which owns flag
// parsing.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path != "" {
		if err := cfg.ApplyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
