package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Run runs the migration in the given direction inside tx.
func (m *Migration) Run(ctx context.Context, tx *sql.Tx, up bool, logger *slog.Logger) error {
	switch m.Type {
	case TypeSQL:
		statements := m.DownStatements
		if up {
			statements = m.UpStatements
		}
		for _, stmt := range statements {
			logger.DebugContext(ctx, "exec migration statement", slog.Int64("version", m.Version), slog.String("sql", stmt))
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%s: %w", m.Source, err)
			}
		}
		return nil
	case TypeGo:
		fn := m.DownFn
		if up {
			fn = m.UpFn
		}
		if fn == nil {
			return nil
		}
		return fn(ctx, tx)
	}
	return fmt.Errorf("migration %d: unknown type %s", m.Version, m.Type)
}

// Plan returns the migrations to run to move from current to target, in execution order, and
// whether they run up. Versions without a migration are skipped.
func Plan(migrations []*Migration, current, target int64) ([]*Migration, bool) {
	var steps []*Migration
	switch {
	case current < target:
		for _, m := range migrations {
			if m.Version > current && m.Version <= target {
				steps = append(steps, m)
			}
		}
		return steps, true
	case current > target:
		for i := len(migrations) - 1; i >= 0; i-- {
			m := migrations[i]
			if m.Version > target && m.Version <= current {
				steps = append(steps, m)
			}
		}
		return steps, false
	}
	return nil, true
}

// MaxVersion returns the highest migration version, or 0.
func MaxVersion(migrations []*Migration) int64 {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
