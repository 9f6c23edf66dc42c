package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entitycore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("provider", "", "")
	fs.String("url", "", "")
	fs.Int("port", 0, "")
	fs.String("log-level", "", "")
	fs.Bool("verbose", false, "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultProvider, cfg.Connector.Provider)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultMetricsPort, cfg.Metrics.Port)
	assert.Equal(t, DefaultCheckpointInterval, cfg.Connector.CheckpointInterval)
	assert.Equal(t, DefaultImportConcurrency, cfg.Import.Concurrency)
	assert.NoError(t, cfg.Validate())
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
schema: models.yaml
log:
  level: debug
connector:
  provider: KV
  wal_path: data/entities.wal
  checkpoint_interval: 30s
server:
  port: 8000
`)
	t.Setenv("ENTITYCORE_SERVER__PORT", "8100")
	t.Setenv("ENTITYCORE_METRICS__PORT", "0")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--log-level", "warn", "--verbose"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "models.yaml", cfg.Schema)
	assert.Equal(t, "warn", cfg.Log.Level, "flag beats file")
	assert.Equal(t, "kv", cfg.Connector.Provider)
	assert.Equal(t, "data/entities.wal", cfg.Connector.WALPath)
	assert.Equal(t, 30*time.Second, cfg.Connector.CheckpointInterval)
	assert.Equal(t, 8100, cfg.Server.Port, "env beats file")
	assert.Equal(t, 0, cfg.Metrics.Port)
	assert.NoError(t, cfg.Validate())
}

func TestFlagsBeatEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENTITYCORE_CONNECTOR__PROVIDER", "sqlite")
	t.Setenv("ENTITYCORE_CONNECTOR__URL", "env.db")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--url", "flag.db", "--port", "7001"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Connector.Provider)
	assert.Equal(t, "flag.db", cfg.Connector.URL)
	assert.Equal(t, 7001, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Log:       LogConfig{Level: "info"},
			Connector: ConnectorConfig{Provider: "memory"},
			Server:    ServerConfig{Port: 7070},
			Import:    ImportConfig{Concurrency: 4},
		}
	}
	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad provider", func(c *Config) { c.Connector.Provider = "mongo" }, "connector.provider"},
		{"kv without path", func(c *Config) { c.Connector.Provider = "kv" }, "wal_path"},
		{"postgres without url", func(c *Config) { c.Connector.Provider = "postgres" }, "connector.url"},
		{"negative interval", func(c *Config) { c.Connector.CheckpointInterval = -time.Second }, "checkpoint_interval"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"metrics port", func(c *Config) { c.Metrics.Port = 70000 }, "metrics.port"},
		{"concurrency", func(c *Config) { c.Import.Concurrency = 0 }, "import.concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errSubstr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}
