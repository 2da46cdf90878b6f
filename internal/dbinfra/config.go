package dbinfra

import (
	"slices"
	"time"
)

// Supported drivers. postgres and pgx share the postgres dialect.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverMySQL    = "mysql"
)

var drivers = []string{DriverSQLite, DriverPostgres, DriverPgx, DriverMySQL}

// Config describes a database connection.
type Config struct {
	// Driver is one of sqlite3, postgres, pgx or mysql.
	Driver string
	// DSN is passed to the driver. MySQL DSNs always get parseTime=true.
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// LogQueries logs every statement at debug level.
	LogQueries bool
}

// DefaultConfig is an in-memory sqlite database. The single connection
// keeps every statement on the same memory database.
func DefaultConfig() Config {
	return Config{
		Driver:       DriverSQLite,
		DSN:          "file::memory:?cache=shared",
		MaxOpenConns: 1,
	}
}

// Validate checks the connection settings.
func (c Config) Validate() error {
	if !slices.Contains(drivers, c.Driver) {
		return &ConfigError{Field: "Driver", Message: "must be one of sqlite3, postgres, pgx, mysql"}
	}
	if c.DSN == "" {
		return &ConfigError{Field: "DSN", Message: "is required"}
	}
	if c.MaxOpenConns < 0 {
		return &ConfigError{Field: "MaxOpenConns", Message: "must be non-negative"}
	}
	if c.MaxIdleConns < 0 {
		return &ConfigError{Field: "MaxIdleConns", Message: "must be non-negative"}
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return &ConfigError{Field: "MaxIdleConns", Message: "cannot exceed MaxOpenConns"}
	}
	if c.ConnMaxLifetime < 0 {
		return &ConfigError{Field: "ConnMaxLifetime", Message: "must be non-negative"}
	}
	return nil
}

// ConfigError reports an invalid connection setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "database config error in field " + e.Field + ": " + e.Message
}
