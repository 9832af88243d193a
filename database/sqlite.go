package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NewStore returns a [Store] backed by a SQLite history table.
func NewStore(tablename string) (Store, error) {
	if strings.TrimSpace(tablename) == "" {
		return nil, errors.New("tablename must not be empty")
	}
	return &store{tablename: tablename}, nil
}

type store struct {
	tablename string
}

var _ Store = (*store)(nil)

func (s *store) Tablename() string {
	return s.tablename
}

func (s *store) quoted() string {
	return `"` + strings.ReplaceAll(s.tablename, `"`, `""`) + `"`
}

const createTable = `
CREATE TABLE IF NOT EXISTS %s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id INTEGER NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	applied_at INTEGER NOT NULL
)
`

func (s *store) CreateVersionTable(ctx context.Context, db DBTxConn) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf(createTable, s.quoted())); err != nil {
		return fmt.Errorf("failed to create history table %q: %w", s.tablename, err)
	}
	return nil
}

func (s *store) TableExists(ctx context.Context, db DBTxConn) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, s.tablename,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check history table %q: %w", s.tablename, err)
	}
	return n > 0, nil
}

func (s *store) Insert(ctx context.Context, db DBTxConn, req InsertRequest) error {
	q := fmt.Sprintf(`INSERT INTO %s (version_id, source, applied_at) VALUES (?, ?, ?)`, s.quoted())
	if _, err := db.ExecContext(ctx, q, req.Version, req.Source, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to insert version %d: %w", req.Version, err)
	}
	return nil
}

func (s *store) Delete(ctx context.Context, db DBTxConn, version int64) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE version_id = ?`, s.quoted())
	if _, err := db.ExecContext(ctx, q, version); err != nil {
		return fmt.Errorf("failed to delete version %d: %w", version, err)
	}
	return nil
}

func (s *store) GetMigration(ctx context.Context, db DBTxConn, version int64) (*HistoryEntry, error) {
	q := fmt.Sprintf(`SELECT id, version_id, source, applied_at FROM %s WHERE version_id = ? ORDER BY id DESC LIMIT 1`, s.quoted())
	entry, err := scanEntry(db.QueryRowContext(ctx, q, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
		}
		return nil, fmt.Errorf("failed to get migration %d: %w", version, err)
	}
	return entry, nil
}

func (s *store) ListMigrations(ctx context.Context, db DBTxConn) ([]*HistoryEntry, error) {
	q := fmt.Sprintf(`SELECT id, version_id, source, applied_at FROM %s ORDER BY id ASC`, s.quoted())
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer rows.Close()

	migrations := make([]*HistoryEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan list migrations result: %w", err)
		}
		migrations = append(migrations, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return migrations, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*HistoryEntry, error) {
	var (
		entry     HistoryEntry
		appliedAt int64
	)
	if err := row.Scan(&entry.ID, &entry.Version, &entry.Source, &appliedAt); err != nil {
		return nil, err
	}
	entry.AppliedAt = time.UnixMilli(appliedAt)
	return &entry, nil
}
