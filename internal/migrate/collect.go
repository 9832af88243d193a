package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ferneyholguin/sqlitemgmt/internal/sqlparser"
)

// NumericComponent returns the version prefix of a migration filename such as
// "00002_add_lines.sql".
func NumericComponent(filename string) (int64, error) {
	base := filepath.Base(filename)
	if ext := filepath.Ext(base); ext != ".sql" {
		return 0, errors.New("migration file does not have .sql file extension")
	}
	idx := strings.Index(base, "_")
	if idx < 0 {
		return 0, errors.New("no filename separator '_' found")
	}
	n, err := strconv.ParseInt(base[:idx], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse version: %w", err)
	}
	if n < 1 {
		return 0, errors.New("migration version must be greater than zero")
	}
	return n, nil
}

// Collect gathers SQL migrations from the root of fsys and merges the Go migrations. fsys may be
// nil. Files that do not look like NUMBER_name.sql are ignored. The result is sorted by version.
func Collect(fsys fs.FS, goMigrations []GoMigration, logger *slog.Logger) ([]*Migration, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var migrations []*Migration
	lookup := make(map[int64]*Migration)
	if fsys != nil {
		files, err := fs.Glob(fsys, "*.sql")
		if err != nil {
			return nil, fmt.Errorf("failed to glob pattern %q: %w", "*.sql", err)
		}
		for _, fullpath := range files {
			version, err := NumericComponent(fullpath)
			if err != nil {
				logger.Debug("skip migration file", slog.String("file", fullpath), slog.String("reason", err.Error()))
				continue
			}
			if existing, ok := lookup[version]; ok {
				return nil, duplicateError(version, existing, fullpath)
			}
			parsed, err := sqlparser.ParseAllFromFS(fsys, fullpath, logger)
			if err != nil {
				return nil, err
			}
			m := &Migration{
				Version:        version,
				Type:           TypeSQL,
				Source:         fullpath,
				UpStatements:   parsed.Up,
				DownStatements: parsed.Down,
			}
			migrations = append(migrations, m)
			lookup[version] = m
		}
	}
	for _, g := range goMigrations {
		if g.Version < 1 {
			return nil, fmt.Errorf("go migration version must be greater than zero: %d", g.Version)
		}
		if existing, ok := lookup[g.Version]; ok {
			return nil, duplicateError(g.Version, existing, "go migration")
		}
		m := &Migration{
			Version: g.Version,
			Type:    TypeGo,
			UpFn:    g.Up,
			DownFn:  g.Down,
		}
		migrations = append(migrations, m)
		lookup[g.Version] = m
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func duplicateError(version int64, existing *Migration, current string) error {
	return fmt.Errorf("found duplicate migration version %d:\n\texisting:%v\n\tcurrent:%v",
		version,
		existing,
		current,
	)
}
