package core

import (
	"context"
	"fmt"
	"os"

	"wellcore/internal/persistence/memory"
	"wellcore/internal/persistence/postgres"
	"wellcore/internal/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenStore selects a backend using environment variables. Defaults to
// sqlite when unset.
//
//	WELLCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	WELLCORE_SQLITE_PATH: path to sqlite file (default ./wellcore.db)
//	WELLCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenStore(ctx context.Context) (Store, error) {
	driver := os.Getenv("WELLCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		path := os.Getenv("WELLCORE_SQLITE_PATH")
		return sqlite.NewStore(path)
	case StoragePostgres:
		dsn := os.Getenv("WELLCORE_POSTGRES_DSN")
		return postgres.NewStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
