package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultFiles are tried in order when no config file is named
var DefaultFiles = []string{"entitycore.yaml", "entitycore.yml"}

// flagKeys maps command line flags onto config keys
var flagKeys = map[string]string{
	"schema":       "schema",
	"log-level":    "log.level",
	"log-pretty":   "log.pretty",
	"provider":     "connector.provider",
	"url":          "connector.url",
	"wal":          "connector.wal_path",
	"checkpoint":   "connector.checkpoint_interval",
	"port":         "server.port",
	"metrics-port": "metrics.port",
	"concurrency":  "import.concurrency",
}

func defaults() map[string]any {
	return map[string]any{
		"log.level":                     DefaultLogLevel,
		"log.pretty":                    false,
		"connector.provider":            DefaultProvider,
		"connector.checkpoint_interval": DefaultCheckpointInterval.String(),
		"server.port":                   DefaultServerPort,
		"metrics.port":                  DefaultMetricsPort,
		"import.concurrency":            DefaultImportConcurrency,
	}
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range DefaultFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// envKey turns ENTITYCORE_CONNECTOR__WAL_PATH into connector.wal_path
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Load builds the configuration. Precedence from highest to lowest:
// flags, environment, config file, defaults. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// 3. Environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only the ones explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Connector.Provider = strings.ToLower(cfg.Connector.Provider)
	return &cfg, nil
}
