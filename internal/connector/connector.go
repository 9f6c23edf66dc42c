// Package connector selects and instruments the storage backend entities
// are persisted to
package connector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nainya/entitycore/internal/connector/kv"
	"github.com/nainya/entitycore/internal/connector/memory"
	"github.com/nainya/entitycore/internal/connector/remote"
	"github.com/nainya/entitycore/internal/connector/sqlstore"
	"github.com/nainya/entitycore/internal/logger"
	"github.com/nainya/entitycore/internal/metrics"
	"github.com/nainya/entitycore/pkg/model"
	"github.com/nainya/entitycore/pkg/object"
)

// Providers accepted by Open
const (
	ProviderMemory   = "memory"
	ProviderKV       = "kv"
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
	ProviderRemote   = "remote"
)

// Backend is a connector that can also look records up and be closed
type Backend interface {
	object.Connector
	object.Finder
	Close() error
}

// Pinger is implemented by backends that can check their connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config selects and addresses a backend
type Config struct {
	Provider string
	// URL is the DSN for sql providers and the target for remote
	URL string
	// WALPath is the journal base path for kv
	WALPath            string
	CheckpointInterval time.Duration
	// Models get their tables created on sql providers
	Models []*model.Model
}

// Open connects the configured backend and wraps it with Instrument
func Open(ctx context.Context, cfg Config, log *logger.Logger, m *metrics.Metrics) (Backend, error) {
	if log == nil {
		log = logger.Nop()
	}
	provider := strings.ToLower(cfg.Provider)
	clog := log.ConnectorLogger(provider)

	var (
		backend Backend
		err     error
	)
	switch provider {
	case ProviderMemory:
		backend = memory.New(m.SetKVRecords)
	case ProviderKV:
		backend, err = kv.Open(kv.Options{
			Path:               cfg.WALPath,
			CheckpointInterval: cfg.CheckpointInterval,
			Logger:             clog,
			OnCount:            m.SetKVRecords,
		})
	case ProviderSQLite, ProviderPostgres:
		backend, err = openSQL(ctx, provider, cfg)
	case ProviderRemote:
		backend, err = remote.Dial(cfg.URL)
	default:
		return nil, fmt.Errorf("unknown connector provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	clog.Info("connector opened").Int("models", len(cfg.Models)).Send()
	return Instrument(backend, provider, clog, m), nil
}

func openSQL(ctx context.Context, provider string, cfg Config) (Backend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%s: empty url", provider)
	}
	store, err := sqlstore.Open(ctx, provider, cfg.URL)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx, cfg.Models...); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
