package store

import (
	"context"
	"fmt"
	"log/slog"
)

// Store is a string key-value store partitioned by datastore name.
type Store interface {
	// Get returns the value under (datastore, key). ok is false when the
	// key is absent.
	Get(ctx context.Context, datastore, key string) (value string, ok bool, err error)
	// Set writes value under (datastore, key), replacing any previous value.
	Set(ctx context.Context, datastore, key, value string) error
	// Delete removes (datastore, key). Deleting a missing key is not an error.
	Delete(ctx context.Context, datastore, key string) error
	// List returns every entry of datastore in write order.
	List(ctx context.Context, datastore string) ([]Entry, error)
	Close() error
}

// Entry is one stored value.
type Entry struct {
	Datastore string
	Key       string
	Value     string
	Seq       int64
}

// Backend selects a Store implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
	BackendMemory Backend = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend Backend
	// Path is the SQLite database file or the BadgerDB directory.
	// Ignored by BackendMemory.
	Path string
	// Logger receives BadgerDB's internal log output. Nil disables it.
	Logger *slog.Logger
}

// Open opens the backend named by cfg.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("open store: sqlite backend requires a path")
		}
		return OpenSQLite(cfg.Path)
	case BackendBadger:
		bcfg := DefaultBadgerConfig()
		bcfg.Path = cfg.Path
		bcfg.Logger = cfg.Logger
		return OpenBadger(bcfg)
	case BackendMemory:
		bcfg := InMemoryBadgerConfig()
		bcfg.Logger = cfg.Logger
		return OpenBadger(bcfg)
	default:
		return nil, fmt.Errorf("open store: unknown backend %q", cfg.Backend)
	}
}
