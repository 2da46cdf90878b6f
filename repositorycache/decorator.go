package repositorycache

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"

	"github.com/goliatone/go-repository-overlay/cache"
	"github.com/goliatone/go-repository-overlay/entity"
	"github.com/goliatone/go-repository-overlay/internal/naming"
	"github.com/goliatone/go-repository-overlay/lifecycle"
)

var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// listResult is the cached form of a List call.
type listResult[T any] struct {
	Records []T `msgpack:"records"`
	Total   int `msgpack:"total"`
}

// CachedRepository decorates a go-repository-bun repository. Reads go
// through the result cache under one namespace, writes pass through and then
// drop that namespace and publish lifecycle notifications.
type CachedRepository[T any] struct {
	base         repository.Repository[T]
	cache        *cache.ResultCache
	fingerprints *cache.Fingerprinter
	serializer   cache.KeySerializer
	db           bun.IDB
	connection   string
	namespace    string
	schema       *entity.Schema
	bus          lifecycle.Bus
	logger       *slog.Logger
}

type Option func(*options)

type options struct {
	serializer cache.KeySerializer
	db         bun.IDB
	connection string
	namespace  string
	schema     *entity.Schema
	bus        lifecycle.Bus
	logger     *slog.Logger
}

// WithKeySerializer sets the serializer for criteria that cannot be
// compiled to SQL and for bindings.
func WithKeySerializer(s cache.KeySerializer) Option {
	return func(o *options) { o.serializer = s }
}

// WithDB compiles criteria against a bun select of T so equivalent
// criteria share a fingerprint.
func WithDB(db bun.IDB) Option {
	return func(o *options) { o.db = db }
}

// WithConnection sets the connection name mixed into fingerprints.
func WithConnection(name string) Option {
	return func(o *options) { o.connection = name }
}

// WithNamespace overrides the cache namespace. It defaults to the schema
// namespace, or to the snake case plural of T's type name.
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithSchema ties the repository to a registered schema: it shares the
// schema's namespace and notifications carry a prototype of it.
func WithSchema(s *entity.Schema) Option {
	return func(o *options) { o.schema = s }
}

// WithBus publishes write notifications on b.
func WithBus(b lifecycle.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithLogger sets the logger for cache and bus failures.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New wraps base. A nil rc disables caching but keeps notifications.
func New[T any](base repository.Repository[T], rc *cache.ResultCache, opts ...Option) *CachedRepository[T] {
	o := options{connection: "default"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.serializer == nil {
		o.serializer = cache.NewDefaultKeySerializer()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.namespace == "" {
		if o.schema != nil {
			o.namespace = o.schema.Namespace
		} else {
			o.namespace = defaultNamespace[T]()
		}
	}
	return &CachedRepository[T]{
		base:         base,
		cache:        rc,
		fingerprints: cache.NewFingerprinter(o.serializer),
		serializer:   o.serializer,
		db:           o.db,
		connection:   o.connection,
		namespace:    o.namespace,
		schema:       o.schema,
		bus:          o.bus,
		logger:       o.logger,
	}
}

// Namespace is the cache namespace reads are stored under.
func (c *CachedRepository[T]) Namespace() string { return c.namespace }

// Base returns the decorated repository.
func (c *CachedRepository[T]) Base() repository.Repository[T] { return c.base }

// Get returns the first record matching criteria, cached.
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return read(ctx, c, c.fingerprint("Get", criteria), func(ctx context.Context) (T, error) {
		return c.base.Get(ctx, criteria...)
	})
}

// GetByID returns the record with id, cached per id and criteria.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return read(ctx, c, c.fingerprint("GetByID", criteria, id), func(ctx context.Context) (T, error) {
		return c.base.GetByID(ctx, id, criteria...)
	})
}

// List returns the matching records and the total count, cached together.
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	res, err := read(ctx, c, c.fingerprint("List", criteria), func(ctx context.Context) (listResult[T], error) {
		records, total, err := c.base.List(ctx, criteria...)
		return listResult[T]{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return res.Records, res.Total, nil
}

// Count returns the number of matching records, cached.
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return read(ctx, c, c.fingerprint("Count", criteria), func(ctx context.Context) (int, error) {
		return c.base.Count(ctx, criteria...)
	})
}

// GetByIdentifier looks a record up by its identifier field, cached.
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return read(ctx, c, c.fingerprint("GetByIdentifier", criteria, identifier), func(ctx context.Context) (T, error) {
		return c.base.GetByIdentifier(ctx, identifier, criteria...)
	})
}

// Create inserts record and publishes model.created.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	if err == nil {
		c.written(ctx, created, result)
	}
	return result, err
}

// CreateTx is Create within tx.
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.written(ctx, created, result)
	}
	return result, err
}

// CreateMany inserts records and publishes models.created once.
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.written(ctx, createdMany, result...)
	}
	return result, err
}

// CreateManyTx is CreateMany within tx.
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.written(ctx, createdMany, result...)
	}
	return result, err
}

// GetOrCreate may write, so it always invalidates.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	if err == nil {
		c.written(ctx, saved, result)
	}
	return result, err
}

// GetOrCreateTx is GetOrCreate within tx.
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.written(ctx, saved, result)
	}
	return result, err
}

// Update writes record and publishes model.updated.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	if err == nil {
		c.written(ctx, updated, result)
	}
	return result, err
}

// UpdateTx is Update within tx.
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.written(ctx, updated, result)
	}
	return result, err
}

// UpdateMany writes records and publishes models.updated once.
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.written(ctx, updatedMany, result...)
	}
	return result, err
}

// UpdateManyTx is UpdateMany within tx.
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.written(ctx, updatedMany, result...)
	}
	return result, err
}

// Upsert inserts or updates, so it publishes model.saved.
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	if err == nil {
		c.written(ctx, saved, result)
	}
	return result, err
}

// UpsertTx is Upsert within tx.
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.written(ctx, saved, result)
	}
	return result, err
}

// UpsertMany inserts or updates records and publishes models.updated once.
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.written(ctx, updatedMany, result...)
	}
	return result, err
}

// UpsertManyTx is UpsertMany within tx.
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.written(ctx, updatedMany, result...)
	}
	return result, err
}

// Delete removes record and publishes model.deleted.
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	err := c.base.Delete(ctx, record)
	if err == nil {
		c.written(ctx, deleted, record)
	}
	return err
}

// DeleteTx is Delete within tx.
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.DeleteTx(ctx, tx, record)
	if err == nil {
		c.written(ctx, deleted, record)
	}
	return err
}

// DeleteMany removes the records matching criteria. The records are not
// known, so the notification carries none.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteMany(ctx, criteria...)
	if err == nil {
		c.written(ctx, deletedMany)
	}
	return err
}

// DeleteManyTx is DeleteMany within tx.
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.written(ctx, deletedMany)
	}
	return err
}

// DeleteWhere removes the records matching criteria and publishes models.deleted.
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.written(ctx, deletedMany)
	}
	return err
}

// DeleteWhereTx is DeleteWhere within tx.
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.base.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.written(ctx, deletedMany)
	}
	return err
}

// ForceDelete removes record permanently and publishes model.deleted.
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	err := c.base.ForceDelete(ctx, record)
	if err == nil {
		c.written(ctx, deleted, record)
	}
	return err
}

// ForceDeleteTx is ForceDelete within tx.
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	err := c.base.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.written(ctx, deleted, record)
	}
	return err
}

// Reads inside a transaction may see uncommitted rows, so they skip the
// cache.

// GetTx reads through tx without the cache.
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByIDTx reads through tx without the cache.
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// ListTx reads through tx without the cache.
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// CountTx reads through tx without the cache.
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifierTx reads through tx without the cache.
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw runs sql on the base repository. Raw results are not cached.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx is Raw within tx.
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Handlers returns the base repository's model handlers.
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}

// FlushCache drops every cached read of the repository.
func (c *CachedRepository[T]) FlushCache(ctx context.Context) {
	c.cache.InvalidateAll(ctx, c.namespace)
}

func read[T, V any](ctx context.Context, c *CachedRepository[T], fingerprint string, producer cache.Producer[V]) (V, error) {
	res, err := cache.Get(ctx, c.cache, c.namespace, fingerprint, producer)
	c.logger.DebugContext(ctx, "repository read",
		"namespace", c.namespace,
		"fingerprint", fingerprint,
		"outcome", res.Outcome.String(),
	)
	return res.Value, err
}

// fingerprint compiles criteria against a select of T when a database is
// configured. Criteria that fail to compile, and repositories without a
// database, fall back to the key serializer.
func (c *CachedRepository[T]) fingerprint(op string, criteria []repository.SelectCriteria, args ...any) string {
	if text, ok := c.compile(criteria); ok {
		return c.fingerprints.Fingerprint(c.connection, op+" "+text, args)
	}
	return c.fingerprints.Fingerprint(c.connection, c.serializer.SerializeKey(op, append(args, criteria)...), nil)
}

func (c *CachedRepository[T]) compile(criteria []repository.SelectCriteria) (text string, ok bool) {
	if c.db == nil {
		return "", false
	}
	model := newModel[T]()
	if model == nil {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("repository criteria did not compile", "namespace", c.namespace, "panic", r)
			text, ok = "", false
		}
	}()

	q := c.db.NewSelect().Model(model)
	for _, apply := range criteria {
		q = apply(q)
	}
	b, err := q.AppendQuery(schema.NewFormatter(c.db.Dialect()), nil)
	if err != nil {
		return "", false
	}
	return string(b), true
}

// newModel returns a pointer to a zero struct of T's underlying type, or nil
// when T is not a struct or a pointer to one.
func newModel[T any]() any {
	rt := reflect.TypeFor[T]()
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil
	}
	return reflect.New(rt).Interface()
}

func defaultNamespace[T any]() string {
	rt := reflect.TypeFor[T]()
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Name() == "" {
		return fmt.Sprintf("repository_%s", naming.ToSnake(rt.Kind().String()))
	}
	return naming.TableName(rt.Name())
}
