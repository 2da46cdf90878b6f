package repositorycache

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-overlay/cache"
	"github.com/goliatone/go-repository-overlay/entity"
	"github.com/goliatone/go-repository-overlay/lifecycle"
	"github.com/goliatone/go-repository-overlay/pkg/testsupport"
)

type TestUser struct {
	ID   string `bun:"id,pk"`
	Name string `bun:"name"`
}

// mockRepository records every call and answers reads from fixed results.
type mockRepository[T any] struct {
	mu    sync.Mutex
	calls []string

	getResult   T
	listRecords []T
	countResult int
	readError   error
	writeError  error
}

func (m *mockRepository[T]) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

func (m *mockRepository[T]) count(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == method {
			n++
		}
	}
	return n
}

func (m *mockRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	m.record("Get")
	return m.getResult, m.readError
}

func (m *mockRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	m.record("GetByID")
	return m.getResult, m.readError
}

func (m *mockRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.record("List")
	return m.listRecords, len(m.listRecords), m.readError
}

func (m *mockRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.record("Count")
	return m.countResult, m.readError
}

func (m *mockRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	m.record("GetByIdentifier")
	return m.getResult, m.readError
}

func (m *mockRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	m.record("GetTx")
	return m.getResult, m.readError
}

func (m *mockRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	m.record("GetByIDTx")
	return m.getResult, m.readError
}

func (m *mockRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.record("ListTx")
	return m.listRecords, len(m.listRecords), m.readError
}

func (m *mockRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	m.record("CountTx")
	return m.countResult, m.readError
}

func (m *mockRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	m.record("GetByIdentifierTx")
	return m.getResult, m.readError
}

func (m *mockRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	m.record("Create")
	return record, m.writeError
}

func (m *mockRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	m.record("CreateTx")
	return record, m.writeError
}

func (m *mockRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	m.record("CreateMany")
	return records, m.writeError
}

func (m *mockRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	m.record("CreateManyTx")
	return records, m.writeError
}

func (m *mockRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	m.record("GetOrCreate")
	return record, m.writeError
}

func (m *mockRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	m.record("GetOrCreateTx")
	return record, m.writeError
}

func (m *mockRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.record("Update")
	return record, m.writeError
}

func (m *mockRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.record("UpdateTx")
	return record, m.writeError
}

func (m *mockRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	m.record("UpdateMany")
	return records, m.writeError
}

func (m *mockRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	m.record("UpdateManyTx")
	return records, m.writeError
}

func (m *mockRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.record("Upsert")
	return record, m.writeError
}

func (m *mockRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.record("UpsertTx")
	return record, m.writeError
}

func (m *mockRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	m.record("UpsertMany")
	return records, m.writeError
}

func (m *mockRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	m.record("UpsertManyTx")
	return records, m.writeError
}

func (m *mockRepository[T]) Delete(ctx context.Context, record T) error {
	m.record("Delete")
	return m.writeError
}

func (m *mockRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	m.record("DeleteTx")
	return m.writeError
}

func (m *mockRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	m.record("DeleteMany")
	return m.writeError
}

func (m *mockRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	m.record("DeleteManyTx")
	return m.writeError
}

func (m *mockRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	m.record("DeleteWhere")
	return m.writeError
}

func (m *mockRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	m.record("DeleteWhereTx")
	return m.writeError
}

func (m *mockRepository[T]) ForceDelete(ctx context.Context, record T) error {
	m.record("ForceDelete")
	return m.writeError
}

func (m *mockRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	m.record("ForceDeleteTx")
	return m.writeError
}

func (m *mockRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	m.record("Raw")
	return m.listRecords, m.readError
}

func (m *mockRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	m.record("RawTx")
	return m.listRecords, m.readError
}

func (m *mockRepository[T]) Handlers() repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{}
}

var _ repository.Repository[TestUser] = (*mockRepository[TestUser])(nil)

// recordingBus keeps every notification it receives.
type recordingBus struct {
	mu   sync.Mutex
	seen []lifecycle.Notification
}

func (b *recordingBus) Publish(_ context.Context, n lifecycle.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seen = append(b.seen, n)
	return nil
}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.seen))
	for _, n := range b.seen {
		out = append(out, n.Name())
	}
	return out
}

func newResultCache(t *testing.T) *cache.ResultCache {
	t.Helper()
	rc, err := cache.New(cache.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	return rc
}

func TestNew_Namespace(t *testing.T) {
	base := &mockRepository[TestUser]{}
	rc := newResultCache(t)

	if got := New[TestUser](base, rc).Namespace(); got != "test_users" {
		t.Errorf("default namespace = %q, want test_users", got)
	}
	if got := New[*TestUser](&mockRepository[*TestUser]{}, rc).Namespace(); got != "test_users" {
		t.Errorf("pointer namespace = %q, want test_users", got)
	}
	if got := New[TestUser](base, rc, WithNamespace("people")).Namespace(); got != "people" {
		t.Errorf("explicit namespace = %q, want people", got)
	}

	reg := entity.NewRegistry()
	s := reg.MustRegister(entity.Schema{Name: "Member", Attributes: []string{"name"}})
	if got := New[TestUser](base, rc, WithSchema(s)).Namespace(); got != s.Namespace {
		t.Errorf("schema namespace = %q, want %q", got, s.Namespace)
	}
}

func TestCachedReads_HitAfterMiss(t *testing.T) {
	tests := []struct {
		name   string
		method string
		call   func(context.Context, *CachedRepository[TestUser]) error
	}{
		{"Get", "Get", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			u, err := c.Get(ctx)
			if err == nil && u.ID != "u1" {
				return errors.New("wrong record " + u.ID)
			}
			return err
		}},
		{"GetByID", "GetByID", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			_, err := c.GetByID(ctx, "u1")
			return err
		}},
		{"GetByIdentifier", "GetByIdentifier", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			_, err := c.GetByIdentifier(ctx, "ada")
			return err
		}},
		{"List", "List", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			records, total, err := c.List(ctx)
			if err == nil && (len(records) != 2 || total != 2) {
				return errors.New("wrong list result")
			}
			return err
		}},
		{"Count", "Count", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			n, err := c.Count(ctx)
			if err == nil && n != 7 {
				return errors.New("wrong count")
			}
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &mockRepository[TestUser]{
				getResult:   TestUser{ID: "u1", Name: "Ada"},
				listRecords: []TestUser{{ID: "u1"}, {ID: "u2"}},
				countResult: 7,
			}
			cached := New[TestUser](base, newResultCache(t))
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				if err := tt.call(ctx, cached); err != nil {
					t.Fatalf("call %d: %v", i, err)
				}
			}
			if got := base.count(tt.method); got != 1 {
				t.Errorf("base %s called %d times, want 1", tt.method, got)
			}
		})
	}
}

func TestCachedReads_DistinctArgumentsDoNotCollide(t *testing.T) {
	base := &mockRepository[TestUser]{getResult: TestUser{ID: "u1"}}
	cached := New[TestUser](base, newResultCache(t))
	ctx := context.Background()

	_, _ = cached.GetByID(ctx, "u1")
	_, _ = cached.GetByID(ctx, "u2")
	_, _ = cached.GetByIdentifier(ctx, "u1")

	if got := base.count("GetByID"); got != 2 {
		t.Errorf("GetByID calls = %d, want 2", got)
	}
	if got := base.count("GetByIdentifier"); got != 1 {
		t.Errorf("GetByIdentifier calls = %d, want 1", got)
	}
}

func TestCachedReads_ErrorsAreNotCached(t *testing.T) {
	base := &mockRepository[TestUser]{readError: errors.New("boom")}
	cached := New[TestUser](base, newResultCache(t))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cached.GetByID(ctx, "missing"); err == nil || err.Error() != "boom" {
			t.Fatalf("GetByID() error = %v, want boom", err)
		}
	}
	if got := base.count("GetByID"); got != 2 {
		t.Errorf("GetByID calls = %d, want 2", got)
	}
}

func TestCachedReads_DisabledCache(t *testing.T) {
	base := &mockRepository[TestUser]{countResult: 1}
	cached := New[TestUser](base, nil)
	ctx := context.Background()

	_, _ = cached.Count(ctx)
	_, _ = cached.Count(ctx)
	if got := base.count("Count"); got != 2 {
		t.Errorf("Count calls = %d, want 2", got)
	}
	cached.FlushCache(ctx)
}

func TestTransactionalReadsBypassCache(t *testing.T) {
	base := &mockRepository[TestUser]{}
	cached := New[TestUser](base, newResultCache(t))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = cached.GetTx(ctx, nil)
		_, _ = cached.GetByIDTx(ctx, nil, "u1")
		_, _, _ = cached.ListTx(ctx, nil)
		_, _ = cached.CountTx(ctx, nil)
		_, _ = cached.GetByIdentifierTx(ctx, nil, "ada")
		_, _ = cached.Raw(ctx, "SELECT 1")
	}
	for _, m := range []string{"GetTx", "GetByIDTx", "ListTx", "CountTx", "GetByIdentifierTx", "Raw"} {
		if got := base.count(m); got != 2 {
			t.Errorf("%s calls = %d, want 2", m, got)
		}
	}
}

func TestWrites_InvalidateAndPublish(t *testing.T) {
	user := TestUser{ID: "u1", Name: "Ada"}
	many := []TestUser{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}}

	tests := []struct {
		name    string
		write   func(context.Context, *CachedRepository[TestUser]) error
		event   string
		records int
	}{
		{"Create", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			_, err := c.Create(ctx, user)
			return err
		}, "model.created", 1},
		{"CreateTx", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			_, err := c.CreateTx(ctx, nil, user)
			return err
		}, "model.created", 1},
		{"Update", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			_, err := c.Update(ctx, user)
			return err
		}, "model.updated", 1},
		{"Upsert", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			_, err := c.Upsert(ctx, user)
			return err
		}, "model.saved", 1},
		{"GetOrCreate", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			_, err := c.GetOrCreate(ctx, user)
			return err
		}, "model.saved", 1},
		{"Delete", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			return c.Delete(ctx, user)
		}, "model.deleted", 1},
		{"ForceDeleteTx", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			return c.ForceDeleteTx(ctx, nil, user)
		}, "model.deleted", 1},
		{"CreateMany", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			_, err := c.CreateMany(ctx, many)
			return err
		}, "models.created", 3},
		{"UpdateManyTx", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			_, err := c.UpdateManyTx(ctx, nil, many)
			return err
		}, "models.updated", 3},
		{"UpsertMany", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			_, err := c.UpsertMany(ctx, many)
			return err
		}, "models.updated", 3},
		{"DeleteMany", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			return c.DeleteMany(ctx)
		}, "models.deleted", 0},
		{"DeleteWhere", func(ctx context.Context, c *CachedRepository[TestUser]) error {
			return c.DeleteWhere(ctx)
		}, "models.deleted", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := &mockRepository[TestUser]{countResult: 3}
			bus := &recordingBus{}
			cached := New[TestUser](base, newResultCache(t), WithBus(bus))
			ctx := context.Background()

			_, _ = cached.Count(ctx)
			if err := tt.write(ctx, cached); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, _ = cached.Count(ctx)

			if got := base.count("Count"); got != 2 {
				t.Errorf("Count calls = %d, want 2 (write must invalidate)", got)
			}
			if got := bus.names(); !slices.Equal(got, []string{tt.event}) {
				t.Fatalf("notifications = %v, want [%s]", got, tt.event)
			}
			n := bus.seen[0].(RecordNotification[TestUser])
			if len(n.Records) != tt.records {
				t.Errorf("records = %d, want %d", len(n.Records), tt.records)
			}
			if n.Namespace != "test_users" {
				t.Errorf("namespace = %q", n.Namespace)
			}
		})
	}
}

func TestWrites_FailureKeepsCacheAndPublishesNothing(t *testing.T) {
	base := &mockRepository[TestUser]{countResult: 3, writeError: errors.New("constraint")}
	bus := &recordingBus{}
	cached := New[TestUser](base, newResultCache(t), WithBus(bus))
	ctx := context.Background()

	_, _ = cached.Count(ctx)
	if _, err := cached.Update(ctx, TestUser{ID: "u1"}); err == nil {
		t.Fatal("Update() error = nil")
	}
	_, _ = cached.Count(ctx)

	if got := base.count("Count"); got != 1 {
		t.Errorf("Count calls = %d, want 1", got)
	}
	if got := bus.names(); len(got) != 0 {
		t.Errorf("notifications = %v, want none", got)
	}
}

func TestNotification_PrototypeCarriesSchemaAndID(t *testing.T) {
	reg := entity.NewRegistry()
	s := reg.MustRegister(entity.Schema{Name: "Member", Attributes: []string{"name"}})

	bus := &recordingBus{}
	cached := New[*TestUser](&mockRepository[*TestUser]{}, newResultCache(t), WithSchema(s), WithBus(bus))

	if _, err := cached.Create(context.Background(), &TestUser{ID: "m1"}); err != nil {
		t.Fatal(err)
	}
	model := bus.seen[0].Model()
	if model == nil || model.Schema() != s || model.ID() != "m1" {
		t.Errorf("prototype = %v", model)
	}
}

func TestWithCacheTags_DropsExtraNamespaces(t *testing.T) {
	rc := newResultCache(t)
	cached := New[TestUser](&mockRepository[TestUser]{}, rc)
	ctx := context.Background()

	calls := 0
	producer := func(context.Context) (string, error) {
		calls++
		return "joined", nil
	}
	if _, err := cache.Get(ctx, rc, "articles", "report", producer); err != nil {
		t.Fatal(err)
	}

	tagged := WithCacheTags(ctx, "articles", "articles", "")
	if got := tagsFromContext(tagged); !slices.Equal(got, []string{"articles"}) {
		t.Fatalf("tags = %v", got)
	}
	if _, err := cached.Create(tagged, TestUser{ID: "u1"}); err != nil {
		t.Fatal(err)
	}

	res, err := cache.Get(ctx, rc, "articles", "report", producer)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != cache.OutcomeMiss || calls != 2 {
		t.Errorf("outcome = %s calls = %d, want miss after tagged write", res.Outcome, calls)
	}
}

func TestFingerprint_CompilesCriteria(t *testing.T) {
	db := testsupport.NewDB(t, "CREATE TABLE test_users (id TEXT PRIMARY KEY, name TEXT)")
	base := &mockRepository[TestUser]{countResult: 1}
	cached := New[TestUser](base, newResultCache(t), WithDB(db))
	ctx := context.Background()

	byName := func(name string) repository.SelectCriteria {
		return func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.name = ?", name)
		}
	}

	// separate closures compiling to the same SQL share an entry
	_, _ = cached.Count(ctx, byName("ada"))
	_, _ = cached.Count(ctx, byName("ada"))
	if got := base.count("Count"); got != 1 {
		t.Errorf("Count calls = %d, want 1", got)
	}

	_, _ = cached.Count(ctx, byName("grace"))
	if got := base.count("Count"); got != 2 {
		t.Errorf("Count calls = %d, want 2", got)
	}

	a := cached.fingerprint("Count", []repository.SelectCriteria{byName("ada")})
	b := cached.fingerprint("List", []repository.SelectCriteria{byName("ada")})
	if a == b {
		t.Error("operations must not share fingerprints")
	}
}

func TestExtractID(t *testing.T) {
	tests := []struct {
		name    string
		record  any
		want    string
		wantErr bool
	}{
		{"struct", TestUser{ID: "u1"}, "u1", false},
		{"pointer", &TestUser{ID: "u2"}, "u2", false},
		{"nil pointer", (*TestUser)(nil), "", true},
		{"no field", struct{ Name string }{"x"}, "", true},
		{"not a struct", 42, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractID(tt.record)
			if (err != nil) != tt.wantErr {
				t.Fatalf("extractID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("extractID() = %q, want %q", got, tt.want)
			}
		})
	}
}
