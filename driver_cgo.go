//go:build cgo_sqlite

package sqlitemgmt

import (
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// CGO SQLite driver, used when the cgo_sqlite build tag is set.
//
// Build with: go build -tags cgo_sqlite
// Requires: CGO_ENABLED=1
const (
	driverName = "sqlite3"
	driverType = "cgo"
)

func dsnPragmas(foreignKeys bool, busyTimeout time.Duration) []string {
	fk := 0
	if foreignKeys {
		fk = 1
	}
	return []string{
		fmt.Sprintf("_foreign_keys=%d", fk),
		fmt.Sprintf("_busy_timeout=%d", busyTimeout.Milliseconds()),
	}
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
