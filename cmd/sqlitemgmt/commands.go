package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/multierr"

	"github.com/ferneyholguin/sqlitemgmt"
)

// VersionCmd prints the versions.
type VersionCmd struct{}

func (c *VersionCmd) Run(ctx context.Context, g *Globals) (retErr error) {
	fmt.Fprintf(g.Stdout, "sqlitemgmt version: %s (%s driver)\n", sqlitemgmt.LibraryVersion, sqlitemgmt.DriverType())
	if g.Config.DB == "" {
		return nil
	}
	m, err := g.open(ctx, sqlitemgmt.WithoutLifecycle())
	if err != nil {
		return err
	}
	defer func() { retErr = multierr.Append(retErr, m.Close()) }()
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.Stdout, "database version: %d\n", version)
	return nil
}

// MigrateCmd brings the database to the latest or a given version.
type MigrateCmd struct {
	To             int64 `help:"Target version. Defaults to the latest migration." placeholder:"VERSION"`
	AllowDowngrade bool  `name:"allow-downgrade" help:"Run Down migrations when the database is newer than the target."`
}

func (c *MigrateCmd) Run(ctx context.Context, g *Globals) (retErr error) {
	var opts []sqlitemgmt.Option
	if c.To != 0 {
		opts = append(opts, sqlitemgmt.WithVersion(c.To))
	}
	if c.AllowDowngrade {
		opts = append(opts, sqlitemgmt.WithAllowDowngrade())
	}
	start := time.Now()
	m, err := g.open(ctx, opts...)
	if err != nil {
		return err
	}
	defer func() { retErr = multierr.Append(retErr, m.Close()) }()
	version, err := m.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(g.Stdout, "database at version %d (%s)\n", version, time.Since(start).Round(time.Millisecond))
	return nil
}

// StatusCmd lists migrations.
type StatusCmd struct{}

func (c *StatusCmd) Run(ctx context.Context, g *Globals) (retErr error) {
	m, err := g.open(ctx, sqlitemgmt.WithoutLifecycle())
	if err != nil {
		return err
	}
	defer func() { retErr = multierr.Append(retErr, m.Close()) }()
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(g.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED AT\tSOURCE")
	for _, s := range status {
		applied := "-"
		if !s.AppliedAt.IsZero() {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		source := s.Source
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.Version, s.State, applied, source)
	}
	return w.Flush()
}

// TablesCmd lists user tables.
type TablesCmd struct{}

func (c *TablesCmd) Run(ctx context.Context, g *Globals) (retErr error) {
	m, err := g.open(ctx, sqlitemgmt.WithoutLifecycle())
	if err != nil {
		return err
	}
	defer func() { retErr = multierr.Append(retErr, m.Close()) }()
	tables, err := m.Tables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		fmt.Fprintln(g.Stdout, t)
	}
	return nil
}

// ExecCmd runs one statement.
type ExecCmd struct {
	SQL []string `arg:"" help:"Statement to run. Multiple arguments are joined with spaces."`
}

func (c *ExecCmd) Run(ctx context.Context, g *Globals) (retErr error) {
	m, err := g.open(ctx, sqlitemgmt.WithoutLifecycle())
	if err != nil {
		return err
	}
	defer func() { retErr = multierr.Append(retErr, m.Close()) }()
	res, err := m.Exec(ctx, strings.Join(c.SQL, " "))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	fmt.Fprintf(g.Stdout, "%d rows affected\n", n)
	return nil
}

// EnvCmd prints the settings.
type EnvCmd struct{}

func (c *EnvCmd) Run(g *Globals) error {
	for _, v := range g.Config.List() {
		fmt.Fprintf(g.Stdout, "%s=%q\n", v.Name, v.Value)
	}
	return nil
}
