package sqlitemgmt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ferneyholguin/sqlitemgmt/database"
	"github.com/ferneyholguin/sqlitemgmt/internal/migrate"
	"github.com/ferneyholguin/sqlitemgmt/internal/sqlparser"
)

// targetVersion is the version requested with WithVersion, else the highest migration version,
// else 1.
func (m *Manager) targetVersion() int64 {
	if m.cfg.versionSet {
		return m.cfg.version
	}
	if v := migrate.MaxVersion(m.migrations); v > 0 {
		return v
	}
	return 1
}

// initialize runs the configure, create/upgrade/downgrade and open steps. Versioning happens in a
// single transaction; nothing from it is kept when any step fails.
func (m *Manager) initialize(ctx context.Context) error {
	cb := m.cfg.callbacks
	if cb.OnConfigure != nil {
		if err := cb.OnConfigure(ctx, m.db); err != nil {
			return fmt.Errorf("configure: %w", err)
		}
	}
	target := m.targetVersion()
	err := m.observe(ctx, "", "initialize", func(ctx context.Context) error {
		return m.withRetry(ctx, func(ctx context.Context) error {
			return m.beginTx(ctx, func(tx *sql.Tx) error {
				return m.migrateTx(ctx, tx, target)
			})
		})
	})
	if err != nil {
		return err
	}
	if cb.OnOpen != nil {
		if err := cb.OnOpen(ctx, m.db); err != nil {
			return fmt.Errorf("open: %w", err)
		}
	}
	return nil
}

func (m *Manager) migrateTx(ctx context.Context, tx *sql.Tx, target int64) error {
	if err := m.store.CreateVersionTable(ctx, tx); err != nil {
		return err
	}
	current, err := userVersion(ctx, tx)
	if err != nil {
		return err
	}
	if current == target {
		m.logger.DebugContext(ctx, "database is up to date", slog.Int64("version", current))
		return nil
	}
	cb := m.cfg.callbacks
	steps, up := migrate.Plan(m.migrations, current, target)
	direction := sqlparser.FromBool(up).String()
	failed := func(version int64, err error) error {
		return &MigrationError{Version: version, Direction: direction, Err: err}
	}

	switch {
	case current == 0:
		if cb.OnCreate != nil {
			if err := cb.OnCreate(ctx, tx); err != nil {
				return failed(target, fmt.Errorf("create: %w", err))
			}
		}
	case current < target:
		if cb.OnUpgrade != nil {
			if err := cb.OnUpgrade(ctx, tx, current, target); err != nil {
				return failed(target, fmt.Errorf("upgrade: %w", err))
			}
		}
	default:
		if !m.cfg.allowDowngrade && cb.OnDowngrade == nil {
			return failed(current, fmt.Errorf("%w: database version %d is newer than %d", ErrDowngrade, current, target))
		}
	}

	for _, step := range steps {
		start := time.Now()
		if step.IsEmpty(up) {
			m.logger.DebugContext(ctx, "empty migration, recording version only",
				slog.Int64("version", step.Version),
				slog.String("direction", direction),
			)
		} else if err := step.Run(ctx, tx, up, m.logger); err != nil {
			return failed(step.Version, err)
		}
		if up {
			err = m.store.Insert(ctx, tx, database.InsertRequest{Version: step.Version, Source: step.Source})
		} else {
			err = m.unrecord(ctx, tx, step.Version)
		}
		if err != nil {
			return failed(step.Version, err)
		}
		m.logger.InfoContext(ctx, "migration applied",
			slog.Int64("version", step.Version),
			slog.String("direction", direction),
			slog.String("source", step.String()),
			slog.Duration("duration", time.Since(start)),
		)
	}

	if !up && cb.OnDowngrade != nil {
		if err := cb.OnDowngrade(ctx, tx, current, target); err != nil {
			return failed(target, fmt.Errorf("downgrade: %w", err))
		}
	}
	// PRAGMA does not accept bound parameters.
	if _, err := m.exec(ctx, tx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
		return failed(target, fmt.Errorf("failed to set user_version: %w", err))
	}
	m.logger.InfoContext(ctx, "database version set",
		slog.Int64("from", current),
		slog.Int64("to", target),
	)
	return nil
}

// unrecord removes the history row of a reverted migration. A version missing from the history
// table, for example one applied before the table existed, is logged and skipped.
func (m *Manager) unrecord(ctx context.Context, tx *sql.Tx, version int64) error {
	if _, err := m.store.GetMigration(ctx, tx, version); err != nil {
		if errors.Is(err, database.ErrVersionNotFound) {
			m.logger.WarnContext(ctx, "reverted migration was not recorded",
				slog.Int64("version", version),
				slog.String("table", m.store.Tablename()),
			)
			return nil
		}
		return err
	}
	return m.store.Delete(ctx, tx, version)
}
