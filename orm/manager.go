package orm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-overlay/cache"
	"github.com/goliatone/go-repository-overlay/cascade"
	"github.com/goliatone/go-repository-overlay/entity"
	"github.com/goliatone/go-repository-overlay/lifecycle"
	"github.com/goliatone/go-repository-overlay/translation"
)

// DefaultConnection names the connection when none is configured. The name
// is part of every fingerprint, so two managers over different databases
// must use different names to share a cache.
const DefaultConnection = "default"

// Manager runs queries and persistence for the schemas of a registry.
type Manager struct {
	db           bun.IDB
	connection   string
	registry     *entity.Registry
	cache        *cache.ResultCache
	fingerprints *cache.Fingerprinter
	locales      translation.Source
	bus          lifecycle.Bus
	logger       *slog.Logger
	now          func() time.Time
	newID        func() string
	maxDepth     int

	observer *lifecycle.Observer
	engine   *cascade.Engine
}

// Option configures a Manager.
type Option func(*Manager)

func WithConnection(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.connection = name
		}
	}
}

// WithCache routes reads through rc. Without it every read is bypassed.
func WithCache(rc *cache.ResultCache) Option {
	return func(m *Manager) { m.cache = rc }
}

func WithFingerprinter(f *cache.Fingerprinter) Option {
	return func(m *Manager) {
		if f != nil {
			m.fingerprints = f
		}
	}
}

// WithLocales sets the locale source handed to every entity the manager
// creates or loads.
func WithLocales(src translation.Source) Option {
	return func(m *Manager) { m.locales = src }
}

// WithBus publishes lifecycle notifications on b.
func WithBus(b lifecycle.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock replaces time.Now for timestamps and deletion marks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator replaces the UUID generator used for new entities.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

func WithMaxCascadeDepth(depth int) Option {
	return func(m *Manager) { m.maxDepth = depth }
}

// NewManager builds a manager over db. It owns the lifecycle observer and
// the cascade engine; register hooks through Observer.
func NewManager(db bun.IDB, registry *entity.Registry, opts ...Option) *Manager {
	m := &Manager{
		db:           db,
		connection:   DefaultConnection,
		registry:     registry,
		fingerprints: cache.NewFingerprinter(nil),
		logger:       slog.Default(),
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.engine = cascade.NewEngine(m, m,
		cascade.WithMaxDepth(m.maxDepth),
		cascade.WithLogger(m.logger),
	)

	observerOpts := []lifecycle.Option{
		lifecycle.WithCascader(m.engine),
		lifecycle.WithTranslationPurger(m),
		lifecycle.WithLogger(m.logger),
	}
	if m.cache != nil {
		observerOpts = append(observerOpts, lifecycle.WithInvalidator(m.cache))
	}
	if m.bus != nil {
		observerOpts = append(observerOpts, lifecycle.WithBus(m.bus))
	}
	m.observer = lifecycle.NewObserver(observerOpts...)
	return m
}

func (m *Manager) DB() bun.IDB { return m.db }
func (m *Manager) Connection() string { return m.connection }
func (m *Manager) Registry() *entity.Registry { return m.registry }
func (m *Manager) Cache() *cache.ResultCache { return m.cache }
func (m *Manager) Observer() *lifecycle.Observer { return m.observer }
func (m *Manager) Locales() translation.Source { return m.locales }
func (m *Manager) Engine() *cascade.Engine { return m.engine }
func (m *Manager) Fingerprinter() *cache.Fingerprinter { return m.fingerprints }

// Schema looks up a registered schema by name.
func (m *Manager) Schema(name string) (*entity.Schema, error) {
	return m.registry.Lookup(name)
}

// New creates an unsaved entity bound to the manager's locale source.
func (m *Manager) New(schema *entity.Schema) *entity.Entity {
	return entity.New(schema, m.locales)
}

// Query starts a query on schema.
func (m *Manager) Query(schema *entity.Schema) *Query {
	return &Query{m: m, schema: schema}
}

// Find loads the live entity with id.
func (m *Manager) Find(ctx context.Context, schema *entity.Schema, id any) (*entity.Entity, error) {
	return m.Query(schema).WherePrimaryKey(id).First(ctx)
}

// FindTrashed loads the entity with id whether or not it is trashed.
func (m *Manager) FindTrashed(ctx context.Context, schema *entity.Schema, id any) (*entity.Entity, error) {
	return m.Query(schema).WithTrashed().WherePrimaryKey(id).First(ctx)
}

// FlushCache drops every cached read of schema.
func (m *Manager) FlushCache(ctx context.Context, schema *entity.Schema) {
	if m.cache == nil {
		return
	}
	m.cache.InvalidateAll(ctx, schema.Namespace)
	if ts := schema.TranslationSchema(); ts != nil {
		m.cache.InvalidateAll(ctx, ts.Namespace)
	}
}

func (m *Manager) fire(ctx context.Context, ev lifecycle.Event, s *lifecycle.Subject) error {
	return m.observer.Fire(ctx, ev, s)
}

func (m *Manager) exec(ctx context.Context, query string, args []any) (int64, error) {
	res, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
