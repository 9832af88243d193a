package database_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"

	"github.com/ferneyholguin/sqlitemgmt/database"
)

// These tests verify the Store against a real SQLite database using all three connection types.

func TestNewStore(t *testing.T) {
	t.Parallel()
	_, err := database.NewStore("")
	require.Error(t, err)
	_, err = database.NewStore("  ")
	require.Error(t, err)
	store, err := database.NewStore("history")
	require.NoError(t, err)
	require.Equal(t, "history", store.Tablename())
}

func TestStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := database.NewStore("test_history")
	require.NoError(t, err)

	exists, err := store.TableExists(ctx, db)
	require.NoError(t, err)
	require.False(t, exists)

	// Create the history table twice; the second call is a no-op.
	for i := 0; i < 2; i++ {
		err = runTx(ctx, db, func(tx *sql.Tx) error {
			return store.CreateVersionTable(ctx, tx)
		})
		require.NoError(t, err)
	}
	exists, err = store.TableExists(ctx, db)
	require.NoError(t, err)
	require.True(t, exists)

	err = runConn(ctx, db, func(conn *sql.Conn) error {
		res, err := store.ListMigrations(ctx, conn)
		require.NoError(t, err)
		require.Empty(t, res)
		return nil
	})
	require.NoError(t, err)

	for _, version := range []int64{1, 3, 2} {
		err = runConn(ctx, db, func(conn *sql.Conn) error {
			return store.Insert(ctx, conn, database.InsertRequest{Version: version, Source: "file.sql"})
		})
		require.NoError(t, err)
	}

	res, err := store.ListMigrations(ctx, db)
	require.NoError(t, err)
	require.Len(t, res, 3)
	// Application order, not version order.
	require.EqualValues(t, 1, res[0].Version)
	require.EqualValues(t, 3, res[1].Version)
	require.EqualValues(t, 2, res[2].Version)
	require.Equal(t, "file.sql", res[0].Source)
	require.False(t, res[0].AppliedAt.IsZero())

	err = runTx(ctx, db, func(tx *sql.Tx) error {
		entry, err := store.GetMigration(ctx, tx, 3)
		require.NoError(t, err)
		require.EqualValues(t, 3, entry.Version)
		return store.Delete(ctx, tx, 3)
	})
	require.NoError(t, err)

	_, err = store.GetMigration(ctx, db, 3)
	require.ErrorIs(t, err, database.ErrVersionNotFound)

	res, err = store.ListMigrations(ctx, db)
	require.NoError(t, err)
	require.Len(t, res, 2)
}

func runTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) (retErr error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			retErr = multierr.Append(retErr, tx.Rollback())
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func runConn(ctx context.Context, db *sql.DB, fn func(*sql.Conn) error) (retErr error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			retErr = multierr.Append(retErr, conn.Close())
		}
	}()
	if err := fn(conn); err != nil {
		return err
	}
	return conn.Close()
}
