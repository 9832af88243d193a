package sqlitemgmt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ferneyholguin/sqlitemgmt/internal/schema"
	"github.com/ferneyholguin/sqlitemgmt/internal/sqlbuild"
)

// Table is the table of entity type T.
type Table[T any] struct {
	m      *Manager
	entity *schema.Entity
	ddl    string
	repo   *Repository[T]
}

// NewTable parses the metadata of T and creates its table if it does not exist.
func NewTable[T any](ctx context.Context, m *Manager) (*Table[T], error) {
	repo, err := NewRepository[T](m)
	if err != nil {
		return nil, err
	}
	ddl, err := repo.entity.CreateTableSQL()
	if err != nil {
		return nil, err
	}
	err = m.observe(ctx, repo.entity.Table, "create_table", func(ctx context.Context) error {
		return m.withRetry(ctx, func(ctx context.Context) error {
			_, err := m.exec(ctx, m.db, ddl)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", repo.entity.Table, err)
	}
	m.logger.DebugContext(ctx, "table ready", slog.String("table", repo.entity.Table))
	return &Table[T]{
		m:      m,
		entity: repo.entity,
		ddl:    ddl,
		repo:   repo,
	}, nil
}

// Name returns the table name.
func (t *Table[T]) Name() string { return t.entity.Table }

// Schema returns the CREATE TABLE statement of the table.
func (t *Table[T]) Schema() string { return t.ddl }

// Manager returns the manager the table was created with.
func (t *Table[T]) Manager() *Manager { return t.m }

// Repository returns the repository of the table.
func (t *Table[T]) Repository() *Repository[T] { return t.repo }

// Drop drops the table if it exists.
func (t *Table[T]) Drop(ctx context.Context) error {
	return t.m.observe(ctx, t.entity.Table, "drop_table", func(ctx context.Context) error {
		return t.m.withRetry(ctx, func(ctx context.Context) error {
			_, err := t.m.exec(ctx, t.m.db, sqlbuild.DropTable(t.entity.Table))
			return err
		})
	})
}
