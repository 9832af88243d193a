// Command sqlitemgmt migrates and inspects SQLite databases managed by the sqlitemgmt package.
//
// Settings may come from flags, from SQLITEMGMT_* environment variables or from a .env file.
// Flags win over the environment.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/ferneyholguin/sqlitemgmt"
	"github.com/ferneyholguin/sqlitemgmt/internal/cfg"
)

// CLI is the command line definition.
type CLI struct {
	DB      string `help:"Database file or DSN (env SQLITEMGMT_DB)." placeholder:"PATH"`
	Dir     string `help:"Directory with migration files (env SQLITEMGMT_DIR)." type:"path" placeholder:"DIR"`
	EnvFile string `name:"env-file" help:"Load environment variables from this file." default:".env" type:"path"`
	Verbose bool   `short:"v" help:"Log every statement (env SQLITEMGMT_VERBOSE)."`

	Version VersionCmd `cmd:"" help:"Print the database and library versions."`
	Migrate MigrateCmd `cmd:"" help:"Apply migrations up to the latest or a given version."`
	Status  StatusCmd  `cmd:"" help:"List migrations and whether they are applied."`
	Tables  TablesCmd  `cmd:"" help:"List user tables."`
	Exec    ExecCmd    `cmd:"" help:"Run a SQL statement."`
	Env     EnvCmd     `cmd:"" help:"Print the effective environment settings."`
}

// Globals is bound to every command's Run method.
type Globals struct {
	Config *cfg.Config
	Logger *slog.Logger
	Stdout io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "sqlitemgmt: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	var exited bool
	parser, err := kong.New(&cli,
		kong.Name("sqlitemgmt"),
		kong.Description("Migrate and inspect SQLite databases."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) { exited = true }),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if exited {
		// --help
		return nil
	}
	if err != nil {
		return err
	}
	conf, err := cfg.Load(cli.EnvFile)
	if err != nil {
		return err
	}
	// Flags override the environment.
	if cli.DB != "" {
		conf.DB = cli.DB
	}
	if cli.Dir != "" {
		conf.Dir = cli.Dir
	}
	conf.Verbose = conf.Verbose || cli.Verbose

	level := slog.LevelInfo
	if conf.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return kctx.Run(&Globals{
		Config: conf,
		Logger: logger,
		Stdout: stdout,
	})
}

// open opens the configured database. Extra options come after the common ones.
func (g *Globals) open(ctx context.Context, opts ...sqlitemgmt.Option) (*sqlitemgmt.Manager, error) {
	if g.Config.DB == "" {
		return nil, errors.New("no database: use --db or set SQLITEMGMT_DB")
	}
	common := []sqlitemgmt.Option{sqlitemgmt.WithLogger(g.Logger)}
	if g.Config.Verbose {
		common = append(common, sqlitemgmt.WithVerbose())
	}
	if g.Config.Dir != "" {
		if _, err := os.Stat(g.Config.Dir); err == nil {
			common = append(common, sqlitemgmt.WithMigrations(os.DirFS(g.Config.Dir)))
		} else if g.Config.Dir != cfg.DefaultMigrationDir {
			return nil, fmt.Errorf("migrations directory: %w", err)
		}
	}
	return sqlitemgmt.Open(ctx, g.Config.DB, append(common, opts...)...)
}
