package sqlitemgmt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultHistoryTable = "sqlitemgmt_history"
	defaultBusyTimeout  = 5 * time.Second
	defaultBusyRetries  = 5
	defaultBusyBase     = 10 * time.Millisecond
	defaultBusyMax      = time.Second
)

// Option is a configuration option for a Manager.
type Option interface {
	apply(*config) error
}

// Callbacks are invoked during the Manager lifecycle. Any of them may be nil.
type Callbacks struct {
	// OnConfigure runs before any versioning work.
	OnConfigure func(ctx context.Context, db *sql.DB) error
	// OnCreate runs inside the version transaction when the database has version 0.
	OnCreate func(ctx context.Context, tx *sql.Tx) error
	// OnUpgrade runs inside the version transaction before Up migrations.
	OnUpgrade func(ctx context.Context, tx *sql.Tx, oldVersion, newVersion int64) error
	// OnDowngrade runs inside the version transaction after Down migrations. Setting it allows
	// downgrades.
	OnDowngrade func(ctx context.Context, tx *sql.Tx, oldVersion, newVersion int64) error
	// OnOpen runs after the version transaction commits.
	OnOpen func(ctx context.Context, db *sql.DB) error
}

// Migration is a schema migration step written in Go. Either function may be nil.
type Migration struct {
	Version int64
	Up      func(ctx context.Context, tx *sql.Tx) error
	Down    func(ctx context.Context, tx *sql.Tx) error
}

// WithVersion sets the schema version the database is brought to.
//
// If WithVersion is not called, the highest known migration version is used, or 1 when there are
// no migrations.
func WithVersion(version int64) Option {
	return configFunc(func(c *config) error {
		if c.versionSet {
			return fmt.Errorf("version already set to %d", c.version)
		}
		if version < 1 {
			return fmt.Errorf("%w: %d", ErrInvalidVersion, version)
		}
		c.version = version
		c.versionSet = true
		return nil
	})
}

// WithCallbacks sets the lifecycle callbacks.
func WithCallbacks(callbacks Callbacks) Option {
	return configFunc(func(c *config) error {
		if c.callbacksSet {
			return errors.New("callbacks already set")
		}
		c.callbacks = callbacks
		c.callbacksSet = true
		return nil
	})
}

// WithMigrations reads NUMBER_description.sql migration files from the root of fsys. Use
// os.DirFS, embed.FS or fs.Sub to point it at a directory.
func WithMigrations(fsys fs.FS) Option {
	return configFunc(func(c *config) error {
		if c.fsys != nil {
			return errors.New("migrations filesystem already set")
		}
		if fsys == nil {
			return errors.New("migrations filesystem must not be nil")
		}
		c.fsys = fsys
		return nil
	})
}

// WithGoMigrations registers migrations written in Go. It may be called more than once.
func WithGoMigrations(migrations ...Migration) Option {
	return configFunc(func(c *config) error {
		for _, m := range migrations {
			if m.Version < 1 {
				return fmt.Errorf("go migration: %w: %d", ErrInvalidVersion, m.Version)
			}
		}
		c.goMigrations = append(c.goMigrations, migrations...)
		return nil
	})
}

// WithAllowDowngrade allows opening a database whose version is newer than the requested one by
// running Down migrations.
func WithAllowDowngrade() Option {
	return configFunc(func(c *config) error {
		c.allowDowngrade = true
		return nil
	})
}

// WithHistoryTable sets the name of the table used to record applied migrations.
//
// If WithHistoryTable is not called, the default value is "sqlitemgmt_history".
func WithHistoryTable(name string) Option {
	return configFunc(func(c *config) error {
		if c.historyTable != "" {
			return fmt.Errorf("history table already set to %q", c.historyTable)
		}
		if name == "" {
			return errors.New("history table must not be empty")
		}
		if strings.HasPrefix(strings.ToLower(name), "sqlite_") {
			return fmt.Errorf("history table %q: names starting with sqlite_ are reserved", name)
		}
		c.historyTable = name
		return nil
	})
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return configFunc(func(c *config) error {
		if c.logger != nil {
			return errors.New("logger already set")
		}
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger
		return nil
	})
}

// WithVerbose logs every statement at debug level. Without WithLogger, output goes to stderr.
func WithVerbose() Option {
	return configFunc(func(c *config) error {
		c.verbose = true
		return nil
	})
}

// WithBusyRetry configures how statements failing with SQLITE_BUSY or SQLITE_LOCKED are retried:
// up to maxRetries times with exponential backoff from base, each wait capped at maxWait. A
// maxRetries of zero disables retries.
func WithBusyRetry(maxRetries uint64, base, maxWait time.Duration) Option {
	return configFunc(func(c *config) error {
		if c.busyRetrySet {
			return errors.New("busy retry already set")
		}
		if maxRetries > 0 && (base <= 0 || maxWait < base) {
			return fmt.Errorf("invalid busy retry backoff: base %s, max %s", base, maxWait)
		}
		c.busyRetries = maxRetries
		c.busyBase = base
		c.busyMax = maxWait
		c.busyRetrySet = true
		return nil
	})
}

// WithBusyTimeout sets the busy_timeout pragma added to the DSN by Open.
//
// If WithBusyTimeout is not called, the default value is 5s.
func WithBusyTimeout(d time.Duration) Option {
	return configFunc(func(c *config) error {
		if c.busyTimeout != nil {
			return errors.New("busy timeout already set")
		}
		if d < 0 {
			return errors.New("busy timeout must not be negative")
		}
		c.busyTimeout = &d
		return nil
	})
}

// WithForeignKeys sets the foreign_keys pragma added to the DSN by Open. It is enabled by default.
func WithForeignKeys(enabled bool) Option {
	return configFunc(func(c *config) error {
		if c.foreignKeys != nil {
			return errors.New("foreign keys already set")
		}
		c.foreignKeys = &enabled
		return nil
	})
}

// WithoutLifecycle skips the version transaction and the callbacks. Migrations are still collected
// so Status can compare them with the history table. Use it to inspect a database without
// changing it.
func WithoutLifecycle() Option {
	return configFunc(func(c *config) error {
		c.skipLifecycle = true
		return nil
	})
}

// WithMetrics registers operation metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return configFunc(func(c *config) error {
		if c.registerer != nil {
			return errors.New("metrics registerer already set")
		}
		if reg == nil {
			return errors.New("metrics registerer must not be nil")
		}
		c.registerer = reg
		return nil
	})
}

// WithTracerProvider sets the OpenTelemetry tracer provider. By default spans are not recorded.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return configFunc(func(c *config) error {
		if c.tracerProvider != nil {
			return errors.New("tracer provider already set")
		}
		if tp == nil {
			return errors.New("tracer provider must not be nil")
		}
		c.tracerProvider = tp
		return nil
	})
}

type config struct {
	version    int64
	versionSet bool

	callbacks    Callbacks
	callbacksSet bool

	fsys           fs.FS
	goMigrations   []Migration
	allowDowngrade bool
	historyTable   string
	skipLifecycle  bool

	logger  *slog.Logger
	verbose bool

	busyRetries  uint64
	busyBase     time.Duration
	busyMax      time.Duration
	busyRetrySet bool
	busyTimeout  *time.Duration
	foreignKeys  *bool

	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
}

type configFunc func(*config) error

func (f configFunc) apply(cfg *config) error {
	return f(cfg)
}

func newConfig(opts []Option) (*config, error) {
	var cfg config
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}
	// Set defaults after applying user-supplied options so option funcs can check for empty values.
	if cfg.historyTable == "" {
		cfg.historyTable = defaultHistoryTable
	}
	if !cfg.busyRetrySet {
		cfg.busyRetries = defaultBusyRetries
		cfg.busyBase = defaultBusyBase
		cfg.busyMax = defaultBusyMax
	}
	if cfg.busyTimeout == nil {
		d := defaultBusyTimeout
		cfg.busyTimeout = &d
	}
	if cfg.foreignKeys == nil {
		enabled := true
		cfg.foreignKeys = &enabled
	}
	return &cfg, nil
}
