package dbinfra

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"default", DefaultConfig(), ""},
		{"unknown driver", Config{Driver: "oracle", DSN: "x"}, "Driver"},
		{"missing dsn", Config{Driver: DriverPgx}, "DSN"},
		{"negative open", Config{Driver: DriverMySQL, DSN: "x", MaxOpenConns: -1}, "MaxOpenConns"},
		{"idle above open", Config{Driver: DriverPostgres, DSN: "x", MaxOpenConns: 2, MaxIdleConns: 3}, "MaxIdleConns"},
		{"negative lifetime", Config{Driver: DriverSQLite, DSN: "x", ConnMaxLifetime: -1}, "ConnMaxLifetime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, cfgErr.Field)
			}
		})
	}
}

func TestOpenSQLite(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := DefaultConfig()
	cfg.DSN = ":memory:"
	cfg.LogQueries = true

	ctx := context.Background()
	db, err := Open(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO notes (id, body) VALUES (?, ?)", "n1", "hello"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var rows []map[string]any
	if err := db.NewRaw("SELECT * FROM notes WHERE id = ?", "n1").Scan(ctx, &rows); err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 || rows[0]["body"] != "hello" {
		t.Errorf("unexpected rows %v", rows)
	}

	out := buf.String()
	if !strings.Contains(out, "database opened") || !strings.Contains(out, "dialect=sqlite") {
		t.Errorf("missing open log line: %s", out)
	}
	if !strings.Contains(out, "msg=sql") || !strings.Contains(out, "'n1'") {
		t.Errorf("expected statements to be logged: %s", out)
	}
}

func TestOpenRejectsBadDSN(t *testing.T) {
	ctx := context.Background()

	if _, err := Open(ctx, Config{Driver: DriverMySQL, DSN: "not a dsn"}, nil); err == nil {
		t.Error("expected mysql dsn error")
	}
	if _, err := Open(ctx, Config{Driver: DriverPgx, DSN: "postgres://%zz"}, nil); err == nil {
		t.Error("expected pgx dsn error")
	}
}

func TestMySQLDSNParsesTime(t *testing.T) {
	dsn, err := mysqlDSN("user:pass@tcp(localhost:3306)/app")
	if err != nil {
		t.Fatalf("mysqlDSN: %v", err)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("expected parseTime in %s", dsn)
	}
}
