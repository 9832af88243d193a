package sqlitemgmt

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ferneyholguin/sqlitemgmt/database"
)

// History returns the recorded migrations in the order they were applied.
func (m *Manager) History(ctx context.Context) ([]*database.HistoryEntry, error) {
	exists, err := m.store.TableExists(ctx, m.db)
	if err != nil {
		return nil, fmt.Errorf("history table %s: %w", m.store.Tablename(), err)
	}
	if !exists {
		return []*database.HistoryEntry{}, nil
	}
	history, err := m.store.ListMigrations(ctx, m.db)
	if err != nil {
		return nil, fmt.Errorf("history table %s: %w", m.store.Tablename(), err)
	}
	return history, nil
}

// State represents the state of a migration.
type State string

const (
	// StateUntracked represents a migration recorded in the database but no longer known.
	StateUntracked State = "untracked"
	// StatePending represents a known migration that has not been applied.
	StatePending State = "pending"
	// StateApplied represents a known migration that has been applied.
	StateApplied State = "applied"
)

// MigrationStatus represents the status of a single migration.
type MigrationStatus struct {
	Version int64
	State   State
	// Source is the migration file, empty for Go and untracked migrations.
	Source string
	// AppliedAt is only set if state is [StateApplied] or [StateUntracked].
	AppliedAt time.Time
}

// Status merges the known migrations with the history table. The returned items are ordered by
// version, in ascending order.
func (m *Manager) Status(ctx context.Context) ([]*MigrationStatus, error) {
	history, err := m.History(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[int64]*database.HistoryEntry, len(history))
	for _, h := range history {
		applied[h.Version] = h
	}
	status := make([]*MigrationStatus, 0, len(m.migrations))
	for _, mig := range m.migrations {
		s := &MigrationStatus{
			Version: mig.Version,
			State:   StatePending,
			Source:  mig.Source,
		}
		if h, ok := applied[mig.Version]; ok {
			s.State = StateApplied
			s.AppliedAt = h.AppliedAt
			delete(applied, mig.Version)
		}
		status = append(status, s)
	}
	for _, h := range applied {
		status = append(status, &MigrationStatus{
			Version:   h.Version,
			State:     StateUntracked,
			AppliedAt: h.AppliedAt,
		})
	}
	sort.Slice(status, func(i, j int) bool {
		return status[i].Version < status[j].Version
	})
	return status, nil
}
