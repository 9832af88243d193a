package migrate

import (
	"context"
	"database/sql"
	"fmt"
)

// Type is the kind of a migration.
type Type int

const (
	TypeGo Type = iota + 1
	TypeSQL
)

func (t Type) String() string {
	switch t {
	case TypeGo:
		return "go"
	case TypeSQL:
		return "sql"
	default:
		return "unknown"
	}
}

// GoFunc is a migration step written in Go.
type GoFunc func(ctx context.Context, tx *sql.Tx) error

// GoMigration is a registered Go migration. Either function may be nil.
type GoMigration struct {
	Version  int64
	Up, Down GoFunc
}

// Migration is a single versioned step, either Go or SQL but never both.
type Migration struct {
	Version int64
	Type    Type
	// Source is the file path of a SQL migration, empty for Go migrations.
	Source string

	UpFn, DownFn GoFunc

	UpStatements, DownStatements []string
}

func (m *Migration) String() string {
	if m.Source != "" {
		return fmt.Sprintf("%d (%s)", m.Version, m.Source)
	}
	return fmt.Sprintf("%d (%s)", m.Version, m.Type)
}

// IsEmpty reports whether the migration does nothing in the given direction.
func (m *Migration) IsEmpty(up bool) bool {
	switch m.Type {
	case TypeGo:
		if up {
			return m.UpFn == nil
		}
		return m.DownFn == nil
	case TypeSQL:
		if up {
			return len(m.UpStatements) == 0
		}
		return len(m.DownStatements) == 0
	}
	return true
}
