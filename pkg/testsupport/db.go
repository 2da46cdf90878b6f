package testsupport

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-overlay/internal/dbinfra"
)

// NewDB opens a private in-memory sqlite database, runs ddl on it and
// closes it when the test ends.
func NewDB(t testing.TB, ddl ...string) *bun.DB {
	t.Helper()

	cfg := dbinfra.DefaultConfig()
	cfg.DSN = ":memory:"

	ctx := context.Background()
	db, err := dbinfra.Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	Exec(t, db, ddl...)
	return db
}

// Exec runs each statement on db.
func Exec(t testing.TB, db bun.IDB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		if _, err := db.ExecContext(context.Background(), stmt); err != nil {
			t.Fatalf("failed to exec %q: %v", stmt, err)
		}
	}
}

// QueryCounter counts the statements bun runs, by operation.
type QueryCounter struct {
	mu      sync.Mutex
	counts  map[string]int
	queries []string
}

// CountQueries installs a QueryCounter on db.
func CountQueries(db *bun.DB) *QueryCounter {
	c := &QueryCounter{counts: map[string]int{}}
	db.AddQueryHook(c)
	return c
}

func (c *QueryCounter) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (c *QueryCounter) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[strings.ToUpper(event.Operation())]++
	c.queries = append(c.queries, event.Query)
}

// Selects is the number of SELECT statements run so far.
func (c *QueryCounter) Selects() int {
	return c.Count("SELECT")
}

func (c *QueryCounter) Count(operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[strings.ToUpper(operation)]
}

// Queries returns the statements run so far, in order.
func (c *QueryCounter) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

// Reset forgets everything counted so far.
func (c *QueryCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = map[string]int{}
	c.queries = nil
}
