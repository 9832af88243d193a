package database

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrVersionNotFound must be returned by [Store.GetMigration] when a migration version is not
	// found.
	ErrVersionNotFound = errors.New("version not found")
)

// Store records applied migrations in a history table.
type Store interface {
	// Tablename is the history table. Must not be empty.
	Tablename() string

	// CreateVersionTable creates the history table if it does not exist.
	CreateVersionTable(ctx context.Context, db DBTxConn) error

	// TableExists reports whether the history table exists.
	TableExists(ctx context.Context, db DBTxConn) (bool, error)

	// Insert records an applied migration.
	Insert(ctx context.Context, db DBTxConn, req InsertRequest) error

	// Delete removes the record of a migration version.
	Delete(ctx context.Context, db DBTxConn, version int64) error

	// GetMigration retrieves a single migration by version. If the query succeeds, but the version
	// is not found, this method must return [ErrVersionNotFound].
	GetMigration(ctx context.Context, db DBTxConn, version int64) (*HistoryEntry, error)

	// ListMigrations retrieves all recorded migrations in the order they were applied. If there
	// are none, it returns an empty slice and no error.
	ListMigrations(ctx context.Context, db DBTxConn) ([]*HistoryEntry, error)
}

type InsertRequest struct {
	Version int64
	// Source is the migration file, or empty for Go migrations.
	Source string
}

// HistoryEntry is one row of the history table.
type HistoryEntry struct {
	ID        int64
	Version   int64
	Source    string
	AppliedAt time.Time
}
