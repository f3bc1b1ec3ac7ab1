package core

import (
	"context"
	"fmt"
	"io"

	"faultcore/internal/config"
	"faultcore/internal/infra/persistence/memory"
	"faultcore/internal/infra/persistence/postgres"
	"faultcore/internal/infra/persistence/sqlite"
	"faultcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = config.StorageMemory   // in-memory only
	StorageSQLite   StorageDriver = config.StorageSQLite   // embedded sqlite file
	StoragePostgres StorageDriver = config.StoragePostgres // PostgreSQL server
)

// SnapshotStore is a PersistentStore whose whole model can be exported and
// replaced, as needed by the MEF and analysis boundaries.
type SnapshotStore interface {
	domain.PersistentStore
	ExportState() memory.Snapshot
	Restore(ctx context.Context, snapshot memory.Snapshot) error
}

var (
	_ SnapshotStore = (*memory.Store)(nil)
	_ SnapshotStore = (*sqlite.Store)(nil)
	_ SnapshotStore = (*postgres.Store)(nil)
)

// OpenPersistentStore selects a backend from cfg. An empty driver selects the
// in-memory store.
func OpenPersistentStore(ctx context.Context, cfg config.StorageConfig, engine *domain.RulesEngine) (SnapshotStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = string(StorageMemory)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// CloseStore releases the resources held by durable backends.
func CloseStore(store domain.PersistentStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
