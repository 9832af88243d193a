// Package cfg loads the command line tool's settings from the environment.
package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const DefaultMigrationDir = "."

// Config holds settings read from SQLITEMGMT_* variables.
type Config struct {
	DB      string `env:"SQLITEMGMT_DB"`
	Dir     string `env:"SQLITEMGMT_DIR" envDefault:"."`
	Verbose bool   `env:"SQLITEMGMT_VERBOSE"`
}

// Load reads envFile into the process environment, without overriding variables that are
// already set, and then parses the configuration. A missing envFile is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %q: %w", envFile, err)
		}
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &c, nil
}

// An EnvVar is an environment variable Name=Value.
type EnvVar struct {
	Name  string
	Value string
}

// List returns the effective settings as environment variables.
func (c *Config) List() []EnvVar {
	return []EnvVar{
		{Name: "SQLITEMGMT_DB", Value: c.DB},
		{Name: "SQLITEMGMT_DIR", Value: c.Dir},
		{Name: "SQLITEMGMT_VERBOSE", Value: strconv.FormatBool(c.Verbose)},
	}
}
