// Package config loads entitycore settings from defaults, a YAML file,
// ENTITYCORE_ environment variables and command line flags
package config

import (
	"fmt"
	"strings"
	"time"
)

// Defaults
const (
	DefaultProvider           = "memory"
	DefaultLogLevel           = "info"
	DefaultServerPort         = 7070
	DefaultMetricsPort        = 9090
	DefaultCheckpointInterval = 10 * time.Minute
	DefaultImportConcurrency  = 8
	EnvPrefix                 = "ENTITYCORE_"
)

// Config is the full configuration
type Config struct {
	Schema    string          `koanf:"schema"`
	Log       LogConfig       `koanf:"log"`
	Connector ConnectorConfig `koanf:"connector"`
	Server    ServerConfig    `koanf:"server"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Import    ImportConfig    `koanf:"import"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// ConnectorConfig selects the storage backend
type ConnectorConfig struct {
	Provider           string        `koanf:"provider"`
	URL                string        `koanf:"url"`
	WALPath            string        `koanf:"wal_path"`
	CheckpointInterval time.Duration `koanf:"checkpoint_interval"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

// MetricsConfig configures the observability HTTP server; port 0 disables it
type MetricsConfig struct {
	Port int `koanf:"port"`
}

type ImportConfig struct {
	Concurrency int `koanf:"concurrency"`
}

var (
	providers = []string{"memory", "kv", "sqlite", "postgres", "remote"}
	levels    = []string{"debug", "info", "warn", "error"}
)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Validate checks the loaded configuration
func (c *Config) Validate() error {
	if !contains(levels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of %s, got %q", strings.Join(levels, ", "), c.Log.Level)
	}
	p := strings.ToLower(c.Connector.Provider)
	if !contains(providers, p) {
		return fmt.Errorf("connector.provider must be one of %s, got %q", strings.Join(providers, ", "), c.Connector.Provider)
	}
	switch p {
	case "kv":
		if c.Connector.WALPath == "" {
			return fmt.Errorf("connector.wal_path is required for the kv provider")
		}
	case "sqlite", "postgres", "remote":
		if c.Connector.URL == "" {
			return fmt.Errorf("connector.url is required for the %s provider", p)
		}
	}
	if c.Connector.CheckpointInterval < 0 {
		return fmt.Errorf("connector.checkpoint_interval must not be negative")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port out of range: %d", c.Metrics.Port)
	}
	if c.Import.Concurrency <= 0 {
		return fmt.Errorf("import.concurrency must be positive")
	}
	return nil
}
