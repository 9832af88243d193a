package migrate

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestNumericComponent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    int64
		wantErr bool
	}{
		{name: "00001_create_lines.sql", want: 1},
		{name: "dir/20240102_add.sql", want: 20240102},
		{name: "00001_create_lines.go", wantErr: true},
		{name: "create_lines.sql", wantErr: true},
		{name: "nounderscore.sql", wantErr: true},
		{name: "0_zero.sql", wantErr: true},
		{name: "-1_negative.sql", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NumericComponent(tt.name)
		if tt.wantErr {
			require.Error(t, err, tt.name)
			continue
		}
		require.NoError(t, err, tt.name)
		require.Equal(t, tt.want, got)
	}
}

func TestCollect(t *testing.T) {
	t.Parallel()

	t.Run("merge and sort", func(t *testing.T) {
		fsys := fstest.MapFS{
			"00003_lines.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE lines (id INTEGER);\n-- +migrate Down\nDROP TABLE lines;\n")},
			"00001_init.sql":  {Data: []byte("-- +migrate Up\n")},
			"README.md":       {Data: []byte("docs")},
			"helpers.sql":     {Data: []byte("not a migration")},
		}
		migrations, err := Collect(fsys, []GoMigration{{Version: 2}}, nil)
		require.NoError(t, err)
		require.Len(t, migrations, 3)
		require.Equal(t, int64(1), migrations[0].Version)
		require.Equal(t, TypeSQL, migrations[0].Type)
		require.True(t, migrations[0].IsEmpty(true))
		require.Equal(t, int64(2), migrations[1].Version)
		require.Equal(t, TypeGo, migrations[1].Type)
		require.True(t, migrations[1].IsEmpty(false))
		require.Equal(t, []string{"CREATE TABLE lines (id INTEGER);"}, migrations[2].UpStatements)
		require.Equal(t, []string{"DROP TABLE lines;"}, migrations[2].DownStatements)
		require.Equal(t, int64(3), MaxVersion(migrations))
	})
	t.Run("nil fs", func(t *testing.T) {
		migrations, err := Collect(nil, nil, nil)
		require.NoError(t, err)
		require.Empty(t, migrations)
		require.Equal(t, int64(0), MaxVersion(migrations))
	})
	t.Run("duplicate file and go", func(t *testing.T) {
		fsys := fstest.MapFS{
			"00001_init.sql": {Data: []byte("-- +migrate Up\n")},
		}
		_, err := Collect(fsys, []GoMigration{{Version: 1}}, nil)
		require.ErrorContains(t, err, "found duplicate migration version 1")
	})
	t.Run("duplicate files", func(t *testing.T) {
		fsys := fstest.MapFS{
			"00001_a.sql": {Data: []byte("-- +migrate Up\n")},
			"01_b.sql":    {Data: []byte("-- +migrate Up\n")},
		}
		_, err := Collect(fsys, nil, nil)
		require.ErrorContains(t, err, "found duplicate migration version 1")
	})
	t.Run("duplicate go", func(t *testing.T) {
		_, err := Collect(nil, []GoMigration{{Version: 4}, {Version: 4}}, nil)
		require.ErrorContains(t, err, "found duplicate migration version 4")
	})
	t.Run("invalid go version", func(t *testing.T) {
		_, err := Collect(nil, []GoMigration{{Version: 0}}, nil)
		require.Error(t, err)
	})
	t.Run("parse error", func(t *testing.T) {
		fsys := fstest.MapFS{
			"00001_bad.sql": {Data: []byte("CREATE TABLE x (id INTEGER);\n")},
		}
		_, err := Collect(fsys, nil, nil)
		require.ErrorContains(t, err, "00001_bad.sql")
	})
}

func TestPlan(t *testing.T) {
	t.Parallel()

	migrations := []*Migration{{Version: 1}, {Version: 2}, {Version: 4}, {Version: 7}}
	versions := func(steps []*Migration) []int64 {
		var out []int64
		for _, m := range steps {
			out = append(out, m.Version)
		}
		return out
	}

	steps, up := Plan(migrations, 0, 4)
	require.True(t, up)
	require.Equal(t, []int64{1, 2, 4}, versions(steps))

	steps, up = Plan(migrations, 2, 10)
	require.True(t, up)
	require.Equal(t, []int64{4, 7}, versions(steps))

	steps, up = Plan(migrations, 7, 1)
	require.False(t, up)
	require.Equal(t, []int64{7, 4, 2}, versions(steps))

	steps, _ = Plan(migrations, 3, 3)
	require.Empty(t, steps)
}

func TestRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fsys := fstest.MapFS{
		"00001_lines.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE lines (id INTEGER);\nINSERT INTO lines (id) VALUES (1);\n-- +migrate Down\nDROP TABLE lines;\n")},
	}
	boom := errors.New("boom")
	migrations, err := Collect(fsys, []GoMigration{{
		Version: 2,
		Up: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO lines (id) VALUES (2)")
			return err
		},
		Down: func(context.Context, *sql.Tx) error { return boom },
	}}, nil)
	require.NoError(t, err)
	logger := slog.New(slog.DiscardHandler)

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	for _, m := range migrations {
		require.NoError(t, m.Run(ctx, tx, true, logger))
	}
	require.NoError(t, tx.Commit())

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lines").Scan(&n))
	require.Equal(t, 2, n)

	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.ErrorIs(t, migrations[1].Run(ctx, tx, false, logger), boom)
	require.NoError(t, migrations[0].Run(ctx, tx, false, logger))
	require.NoError(t, tx.Commit())
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lines").Scan(&n)
	require.ErrorContains(t, err, "no such table")
}
