// Package testdata holds migration files shared by tests.
package testdata

import "embed"

// EmbedMigrations holds a small catalog schema: lines, products and seed rows.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
