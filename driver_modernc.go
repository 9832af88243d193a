//go:build !cgo_sqlite

package sqlitemgmt

import (
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Pure Go SQLite driver, used unless the cgo_sqlite build tag is set.
const (
	driverName = "sqlite"
	driverType = "purego"
)

func dsnPragmas(foreignKeys bool, busyTimeout time.Duration) []string {
	fk := 0
	if foreignKeys {
		fk = 1
	}
	return []string{
		fmt.Sprintf("_pragma=foreign_keys(%d)", fk),
		fmt.Sprintf("_pragma=busy_timeout(%d)", busyTimeout.Milliseconds()),
	}
}

func isBusy(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
