package menu

import (
	"context"
	"errors"
	"fmt"

	"github.com/zombor/menu-scan/internal/config"
)

const tableName = "menu"

// ErrStoreWrite wraps any failure of InsertAll. The batch it refers to was
// rolled back as a whole.
var ErrStoreWrite = errors.New("store write failed")

// Store is the durable home of menu records
type Store interface {
	// EnsureSchema creates the menu table (or bucket) if it is missing.
	// It is idempotent and safe to call concurrently.
	EnsureSchema(ctx context.Context) error

	// WithSession acquires one connection, runs fn with it and releases
	// it again on every exit path.
	WithSession(ctx context.Context, fn func(Session) error) error

	// Close releases the underlying database
	Close() error
}

// Session is a single acquired connection to a Store
type Session interface {
	// InsertAll appends the records in one transaction and returns them
	// with their assigned IDs. Either every record is stored or none is.
	InsertAll(ctx context.Context, records []Record) ([]Record, error)

	// ListAll returns every stored record, oldest first
	ListAll(ctx context.Context) ([]Record, error)
}

// OpenStore opens the backend selected by cfg.Driver and ensures its schema
func OpenStore(ctx context.Context, cfg config.Store) (Store, error) {
	if err := config.CheckDriver(cfg.Driver); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case config.DriverBolt:
		store, err = NewBoltStore(cfg.Path)
	case config.DriverSQLite:
		store, err = NewSQLiteStore(cfg.Path)
	case config.DriverPostgres:
		store, err = NewPostgresStore(ctx, postgresDSN(cfg), int32(cfg.MaxConns))
	case config.DriverMySQL:
		store, err = NewMySQLStore(mysqlDSN(cfg), cfg.MaxConns)
	}
	if err != nil {
		return nil, err
	}

	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return store, nil
}

func storeWriteError(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreWrite, err)
}
