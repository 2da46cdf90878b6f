// Package config loads the settings of a repository overlay process from
// YAML.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-repository-overlay/cache"
	"github.com/goliatone/go-repository-overlay/internal/dbinfra"
	"github.com/goliatone/go-repository-overlay/translation"
)

// Config is the root of the configuration file.
type Config struct {
	// Connection names the database connection in cache fingerprints.
	Connection string              `yaml:"connection"`
	Database   DatabaseConfig      `yaml:"database"`
	Locales    translation.Locales `yaml:"locales"`
	Cache      cache.Config        `yaml:"cache"`
	Cascade    CascadeConfig       `yaml:"cascade"`
	Log        LogConfig           `yaml:"log"`
}

// DatabaseConfig mirrors the connection options of the database layer.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LogQueries      bool          `yaml:"log_queries"`
}

type CascadeConfig struct {
	// MaxDepth bounds relation hops in one cascade. Zero is unbounded.
	MaxDepth int `yaml:"max_depth"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns a configuration that runs against an in-memory sqlite
// database with the in-process cache.
func Default() Config {
	return Config{
		Connection: "default",
		Database:   databaseFromInternal(dbinfra.DefaultConfig()),
		Locales:    translation.Locales{Current: "en", Default: "en"},
		Cache:      cache.DefaultConfig(),
		Cascade:    CascadeConfig{MaxDepth: 16},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over Default. ${VAR} references are expanded from the
// environment before parsing.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "config: read "+path)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "config: parse yaml")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Connection, validation.Required),
		validation.Field(&c.Database),
		validation.Field(&c.Locales, validation.By(validLocales)),
		validation.Field(&c.Cache),
		validation.Field(&c.Cascade),
		validation.Field(&c.Log),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "config: invalid")
	}
	return nil
}

func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(
			dbinfra.DriverSQLite, dbinfra.DriverPostgres, dbinfra.DriverPgx, dbinfra.DriverMySQL)),
		validation.Field(&d.DSN, validation.Required),
		validation.Field(&d.MaxOpenConns, validation.Min(0)),
		validation.Field(&d.MaxIdleConns, validation.Min(0),
			validation.When(d.MaxOpenConns > 0, validation.Max(d.MaxOpenConns))),
		validation.Field(&d.ConnMaxLifetime, validation.Min(time.Duration(0))),
	)
}

func (c CascadeConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MaxDepth, validation.Min(0)),
	)
}

func (l LogConfig) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Level, validation.In("debug", "info", "warn", "error")),
		validation.Field(&l.Format, validation.In("text", "json")),
	)
}

func validLocales(value any) error {
	l, _ := value.(translation.Locales)
	if !translation.Valid(l.Default) {
		return fmt.Errorf("default locale %q is not a valid language tag", l.Default)
	}
	for _, code := range []string{l.Current, l.Write, l.Fallback} {
		if code != "" && !translation.Valid(code) {
			return fmt.Errorf("locale %q is not a valid language tag", code)
		}
	}
	return nil
}

// DB converts the database section for the database layer.
func (d DatabaseConfig) DB() dbinfra.Config {
	return dbinfra.Config{
		Driver:          d.Driver,
		DSN:             d.DSN,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		LogQueries:      d.LogQueries,
	}
}

func databaseFromInternal(c dbinfra.Config) DatabaseConfig {
	return DatabaseConfig{
		Driver:          c.Driver,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		LogQueries:      c.LogQueries,
	}
}

// Logger builds the process logger described by the log section.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.level()}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (l LogConfig) level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
