package dbinfra

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Open connects to the configured database and wraps it in bun with the
// matching dialect. The connection is pinged before returning.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*bun.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	sqldb, dialect, err := openSQL(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	db := bun.NewDB(sqldb, dialect)
	if cfg.LogQueries {
		db.AddQueryHook(NewLogHook(logger))
	}
	logger.InfoContext(ctx, "database opened", "driver", cfg.Driver, "dialect", dialect.Name().String())
	return db, nil
}

func openSQL(cfg Config) (*sql.DB, schema.Dialect, error) {
	switch cfg.Driver {
	case DriverSQLite:
		sqldb, err := sql.Open(DriverSQLite, cfg.DSN)
		return sqldb, sqlitedialect.New(), err

	case DriverPostgres:
		connector, err := pq.NewConnector(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return sql.OpenDB(connector), pgdialect.New(), nil

	case DriverPgx:
		connCfg, err := pgx.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return stdlib.OpenDB(*connCfg), pgdialect.New(), nil

	case DriverMySQL:
		dsn, err := mysqlDSN(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		sqldb, err := sql.Open(DriverMySQL, dsn)
		return sqldb, mysqldialect.New(), err
	}
	return nil, nil, &ConfigError{Field: "Driver", Message: "unsupported driver " + cfg.Driver}
}

// mysqlDSN forces parseTime so DATETIME columns scan into time.Time.
func mysqlDSN(dsn string) (string, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", err
	}
	c.ParseTime = true
	return c.FormatDSN(), nil
}
