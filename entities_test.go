package sqlitemgmt_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ferneyholguin/sqlitemgmt"
)

type Line struct {
	ID   int64  `db:"id,pk,autoincrement"`
	Name string `db:"name,notnull,unique"`
}

func (Line) TableName() string { return "lines" }

type Product struct {
	ID           int64     `db:"id,pk,autoincrement"`
	Name         string    `db:"name,notnull,unique"`
	Price        float64   `db:"price,default=0"`
	Active       bool      `db:"active,default=true"`
	DateCreation time.Time `db:"date_creation"`
	Notes        *string   `db:"notes"`
	Line         *Line     `join:"target=line_id,source=id"`
}

func (Product) TableName() string { return "products" }

// Part declares its join column.
type Part struct {
	ID     int64  `db:"id,pk,autoincrement"`
	Code   string `db:"code,notnull"`
	LineID *int64 `db:"line_id"`
	Line   *Line  `join:"target=line_id,source=id,nullable"`
}

func (Part) TableName() string { return "parts" }

// Item falls back to line 1 when it has no line.
type Item struct {
	ID   int64  `db:"id,pk,autoincrement"`
	Name string `db:"name"`
	Line *Line  `join:"target=line_id,source=id,default=1"`
}

func (Item) TableName() string { return "items" }

// Badge allows one badge per line.
type Badge struct {
	ID    int64  `db:"id,pk,autoincrement"`
	Label string `db:"label,notnull,unique"`
	Line  *Line  `join:"target=line_id,source=id,unique"`
}

func (Badge) TableName() string { return "badges" }

// Gadget references a line column that does not exist.
type Gadget struct {
	ID   int64 `db:"id,pk,autoincrement"`
	Line *Line `join:"target=line_id,source=code"`
}

func (Gadget) TableName() string { return "gadgets" }

type Tag struct {
	ID    int64   `db:"id,pk,autoincrement"`
	Label *string `db:"label,notnull"`
	Slug  *string `db:"slug,notnull,default=none"`
	Color string  `db:"color,unique"`
}

func (Tag) TableName() string { return "tags" }

func newManager(t *testing.T, opts ...sqlitemgmt.Option) *sqlitemgmt.Manager {
	t.Helper()
	m, err := sqlitemgmt.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, m.Close())
	})
	return m
}

func newTable[T any](t *testing.T, m *sqlitemgmt.Manager) *sqlitemgmt.Repository[T] {
	t.Helper()
	table, err := sqlitemgmt.NewTable[T](context.Background(), m)
	require.NoError(t, err)
	return table.Repository()
}

func ptr[T any](v T) *T {
	return &v
}
