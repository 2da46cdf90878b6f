package di

import (
	"context"
	"io"
	"log/slog"
	"os"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-repository-overlay/cache"
	"github.com/goliatone/go-repository-overlay/config"
	"github.com/goliatone/go-repository-overlay/entity"
	"github.com/goliatone/go-repository-overlay/internal/dbinfra"
	"github.com/goliatone/go-repository-overlay/lifecycle"
	"github.com/goliatone/go-repository-overlay/orm"
	"github.com/goliatone/go-repository-overlay/repositorycache"
	"github.com/goliatone/go-repository-overlay/translation"
)

// Container wires the database, the result cache, the event bus and the
// entity manager from one config.Config. Every component is a singleton of
// the container.
type Container struct {
	config        config.Config
	logger        *slog.Logger
	db            *bun.DB
	ownsDB        bool
	cache         *cache.ResultCache
	keySerializer cache.KeySerializer
	registry      *entity.Registry
	bus           *lifecycle.Dispatcher
	manager       *orm.Manager
}

type Option func(*settings)

type settings struct {
	logger      *slog.Logger
	logOut      io.Writer
	db          *bun.DB
	registry    *entity.Registry
	metrics     prometheus.Registerer
	managerOpts []orm.Option
}

// WithLogger replaces the logger built from the log section.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithLogOutput sets where the logger built from the log section writes.
// It defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(s *settings) { s.logOut = w }
}

// WithDB uses an open database instead of opening the configured one. The
// container does not close it.
func WithDB(db *bun.DB) Option {
	return func(s *settings) { s.db = db }
}

// WithRegistry shares a schema registry built by the caller.
func WithRegistry(r *entity.Registry) Option {
	return func(s *settings) { s.registry = r }
}

// WithMetrics registers the cache metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *settings) { s.metrics = reg }
}

// WithManagerOptions appends options to the entity manager, after the ones
// derived from the config.
func WithManagerOptions(opts ...orm.Option) Option {
	return func(s *settings) { s.managerOpts = append(s.managerOpts, opts...) }
}

// NewContainer validates cfg and builds every component.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := settings{logOut: os.Stderr}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = cfg.Log.Logger(s.logOut)
	}
	if s.registry == nil {
		s.registry = entity.NewRegistry()
	}

	c := &Container{
		config:        cfg,
		logger:        s.logger,
		db:            s.db,
		keySerializer: cache.NewDefaultKeySerializer(),
		registry:      s.registry,
		bus:           lifecycle.NewDispatcher(),
	}

	var cacheOpts []cache.Option
	if s.metrics != nil {
		recorder, err := cache.NewPrometheusRecorder(s.metrics)
		if err != nil {
			return nil, err
		}
		cacheOpts = append(cacheOpts, cache.WithRecorder(recorder))
	}
	rc, err := cache.New(cfg.Cache, s.logger, cacheOpts...)
	if err != nil {
		return nil, err
	}
	c.cache = rc

	if c.db == nil {
		db, err := dbinfra.Open(ctx, cfg.Database.DB(), s.logger)
		if err != nil {
			return nil, err
		}
		c.db = db
		c.ownsDB = true
	}

	managerOpts := []orm.Option{
		orm.WithConnection(cfg.Connection),
		orm.WithCache(c.cache),
		orm.WithFingerprinter(cache.NewFingerprinter(c.keySerializer)),
		orm.WithLocales(translation.StaticSource(cfg.Locales)),
		orm.WithBus(c.bus),
		orm.WithLogger(s.logger),
		orm.WithMaxCascadeDepth(cfg.Cascade.MaxDepth),
	}
	c.manager = orm.NewManager(c.db, c.registry, append(managerOpts, s.managerOpts...)...)

	s.logger.InfoContext(ctx, "container ready",
		"connection", cfg.Connection,
		"driver", cfg.Database.Driver,
		"cache_backend", string(cfg.Cache.Backend),
		"cache_enabled", cfg.Cache.Enabled,
	)
	return c, nil
}

// NewContainerWithDefaults builds a container from config.Default.
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	return NewContainer(ctx, config.Default(), opts...)
}

func (c *Container) Config() config.Config { return c.config }
func (c *Container) Logger() *slog.Logger { return c.logger }
func (c *Container) DB() *bun.DB { return c.db }
func (c *Container) Cache() *cache.ResultCache { return c.cache }
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }
func (c *Container) Registry() *entity.Registry { return c.registry }
func (c *Container) Bus() *lifecycle.Dispatcher { return c.bus }
func (c *Container) Manager() *orm.Manager { return c.manager }

// Repository returns the repository of the registered schema name.
func (c *Container) Repository(name string) (*orm.Repository, error) {
	s, err := c.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	return orm.NewRepository(c.manager, s), nil
}

// Close closes the database when the container opened it.
func (c *Container) Close() error {
	if !c.ownsDB {
		return nil
	}
	return c.db.Close()
}

// NewCachedRepository wraps base with the container's cache, database and
// bus. Methods cannot have type parameters, so this is a package function:
//
//	users := di.NewCachedRepository[*User](container, base)
func NewCachedRepository[T any](c *Container, base repository.Repository[T], opts ...repositorycache.Option) *repositorycache.CachedRepository[T] {
	defaults := []repositorycache.Option{
		repositorycache.WithDB(c.db),
		repositorycache.WithConnection(c.config.Connection),
		repositorycache.WithKeySerializer(c.keySerializer),
		repositorycache.WithBus(c.bus),
		repositorycache.WithLogger(c.logger),
	}
	return repositorycache.New(base, c.cache, append(defaults, opts...)...)
}
