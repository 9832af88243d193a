// Package migrate collects versioned schema migrations from SQL files and Go functions and plans
// the steps between two schema versions.
//
// SQL files are parsed eagerly when collected, so a malformed file fails before any statement
// runs. All migrations run inside the caller's transaction.
package migrate
