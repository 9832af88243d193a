package sqlitemgmt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/ferneyholguin/sqlitemgmt/database"
	"github.com/ferneyholguin/sqlitemgmt/internal/metrics"
	"github.com/ferneyholguin/sqlitemgmt/internal/migrate"
)

// Manager owns a SQLite database handle and its schema version.
//
// Unless otherwise specified, all methods on Manager are safe for concurrent use.
type Manager struct {
	db         *sql.DB
	cfg        *config
	logger     *slog.Logger
	store      database.Store
	migrations []*migrate.Migration
	metrics    *metrics.Metrics
	tracer     tracer
}

// Open opens the SQLite database at dsn and brings its schema to the configured version.
//
// The DSN is decorated with the foreign_keys and busy_timeout pragmas unless it already sets
// them. In-memory databases are pinned to a single connection so every statement sees the same
// database.
func Open(ctx context.Context, dsn string, opts ...Option) (*Manager, error) {
	if dsn == "" {
		return nil, errors.New("dsn must not be empty")
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driverName, decorateDSN(dsn, *cfg.foreignKeys, *cfg.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if isMemory(dsn) {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to ping database: %w", err), db.Close())
	}
	m, err := newManager(ctx, db, cfg)
	if err != nil {
		return nil, multierr.Append(err, db.Close())
	}
	return m, nil
}

// New brings the schema of an already opened database to the configured version. Connection
// pragmas are left as the caller configured them. Close closes db.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Manager, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return newManager(ctx, db, cfg)
}

func newManager(ctx context.Context, db *sql.DB, cfg *config) (*Manager, error) {
	store, err := database.NewStore(cfg.historyTable)
	if err != nil {
		return nil, err
	}
	logger := cfg.logger
	if logger == nil {
		if cfg.verbose {
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		} else {
			logger = slog.New(slog.DiscardHandler)
		}
	}
	goMigrations := make([]migrate.GoMigration, 0, len(cfg.goMigrations))
	for _, g := range cfg.goMigrations {
		goMigrations = append(goMigrations, migrate.GoMigration{
			Version: g.Version,
			Up:      g.Up,
			Down:    g.Down,
		})
	}
	// SQL files are parsed eagerly so a broken file fails here, before anything runs.
	migrations, err := migrate.Collect(cfg.fsys, goMigrations, logger)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		db:         db,
		cfg:        cfg,
		logger:     logger,
		store:      store,
		migrations: migrations,
		tracer:     newTracer(cfg.tracerProvider),
	}
	if cfg.registerer != nil {
		m.metrics, err = registerMetrics(cfg.registerer)
		if err != nil {
			return nil, err
		}
	}
	if cfg.skipLifecycle {
		return m, nil
	}
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func decorateDSN(dsn string, foreignKeys bool, busyTimeout time.Duration) string {
	_, query, hasQuery := strings.Cut(dsn, "?")
	var params []string
	for _, p := range dsnPragmas(foreignKeys, busyTimeout) {
		if strings.Contains(query, pragmaName(p)) {
			continue
		}
		params = append(params, p)
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if hasQuery {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// pragmaName returns the pragma a DSN parameter sets, for example "foreign_keys" for both
// "_pragma=foreign_keys(1)" and "_foreign_keys=1".
func pragmaName(param string) string {
	param = strings.TrimPrefix(param, "_pragma=")
	param = strings.TrimPrefix(param, "_")
	if i := strings.IndexAny(param, "(="); i >= 0 {
		param = param[:i]
	}
	return param
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" ||
		strings.HasPrefix(dsn, ":memory:?") ||
		strings.HasPrefix(dsn, "file::memory:") ||
		strings.Contains(dsn, "mode=memory")
}

// DB returns the underlying database handle.
func (m *Manager) DB() *sql.DB {
	return m.db
}

// Ping verifies the database is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close closes the database handle.
func (m *Manager) Close() error {
	return m.db.Close()
}

// Version returns the schema version stored in PRAGMA user_version.
func (m *Manager) Version(ctx context.Context) (int64, error) {
	return userVersion(ctx, m.db)
}

// Tables returns the names of the user tables, sorted.
func (m *Manager) Tables(ctx context.Context) ([]string, error) {
	rows, err := m.query(ctx, m.db, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// Exec runs a raw statement, retrying while the database is busy.
func (m *Manager) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := m.observe(ctx, "", "exec", func(ctx context.Context) error {
		return m.withRetry(ctx, func(ctx context.Context) error {
			var err error
			res, err = m.exec(ctx, m.db, query, args...)
			return err
		})
	})
	return res, err
}

func (m *Manager) exec(ctx context.Context, db database.DBTxConn, query string, args ...any) (sql.Result, error) {
	m.logSQL(ctx, query, args)
	return db.ExecContext(ctx, query, args...)
}

func (m *Manager) query(ctx context.Context, db database.DBTxConn, query string, args ...any) (*sql.Rows, error) {
	m.logSQL(ctx, query, args)
	return db.QueryContext(ctx, query, args...)
}

func (m *Manager) queryRow(ctx context.Context, db database.DBTxConn, query string, args ...any) *sql.Row {
	m.logSQL(ctx, query, args)
	return db.QueryRowContext(ctx, query, args...)
}

func (m *Manager) logSQL(ctx context.Context, query string, args []any) {
	if m.cfg.verbose {
		m.logger.DebugContext(ctx, "exec", slog.String("sql", query), slog.Any("args", args))
	}
}

// beginTx runs fn in a transaction, rolling back when fn or the commit fails.
func (m *Manager) beginTx(ctx context.Context, fn func(*sql.Tx) error) (retErr error) {
	tx, err := m.db.BeginTx(ctx, nil)
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

func userVersion(ctx context.Context, db database.DBTxConn) (int64, error) {
	var version int64
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read user_version: %w", err)
	}
	return version, nil
}
