package orm

import (
	"context"

	"github.com/goliatone/go-repository-overlay/cache"
	"github.com/goliatone/go-repository-overlay/entity"
)

// Repository is the finder and persistence surface of one schema.
type Repository struct {
	m      *Manager
	schema *entity.Schema
}

// NewRepository binds schema to m.
func NewRepository(m *Manager, schema *entity.Schema) *Repository {
	return &Repository{m: m, schema: schema}
}

func (r *Repository) Manager() *Manager { return r.m }
func (r *Repository) Schema() *entity.Schema { return r.schema }
func (r *Repository) NewQuery() *Query { return r.m.Query(r.schema) }

// All returns every live entity.
func (r *Repository) All(ctx context.Context) (entity.Collection, error) {
	return r.NewQuery().Get(ctx)
}

func (r *Repository) Find(ctx context.Context, id any) (*entity.Entity, error) {
	return r.m.Find(ctx, r.schema, id)
}

// FindBy returns the first live entity whose column equals value.
func (r *Repository) FindBy(ctx context.Context, column string, value any) (*entity.Entity, error) {
	return r.NewQuery().Where(map[string]any{column: value}).First(ctx)
}

// FindAll returns the live entities among ids.
func (r *Repository) FindAll(ctx context.Context, ids ...any) (entity.Collection, error) {
	return r.NewQuery().WhereIn(r.schema.Table+"."+r.schema.PrimaryKey, ids...).Get(ctx)
}

// FindTrashed finds an entity whether or not it is trashed.
func (r *Repository) FindTrashed(ctx context.Context, id any) (*entity.Entity, error) {
	return r.m.FindTrashed(ctx, r.schema, id)
}

// NewInstance builds an unsaved entity filled through the fillable policy.
func (r *Repository) NewInstance(ctx context.Context, attrs map[string]any) *entity.Entity {
	return r.m.New(r.schema).Fill(ctx, attrs)
}

// Create fills and saves a new entity. A halted save returns a nil entity
// and no error.
func (r *Repository) Create(ctx context.Context, attrs map[string]any) (*entity.Entity, error) {
	e := r.NewInstance(ctx, attrs)
	ok, err := r.m.Save(ctx, e)
	if err != nil || !ok {
		return nil, err
	}
	return e, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	return r.NewQuery().Count(ctx)
}

func (r *Repository) Paginate(ctx context.Context, page, perPage int) (Page, error) {
	return r.NewQuery().Paginate(ctx, page, perPage)
}

func (r *Repository) Save(ctx context.Context, e *entity.Entity) (bool, error) {
	return r.m.Save(ctx, e)
}

// Update sets attrs on every live entity in one statement.
func (r *Repository) Update(ctx context.Context, attrs map[string]any) (int64, error) {
	return r.NewQuery().Update(ctx, attrs)
}

func (r *Repository) Delete(ctx context.Context, e *entity.Entity) (bool, error) {
	return r.m.Delete(ctx, e)
}

func (r *Repository) ForceDelete(ctx context.Context, e *entity.Entity) (bool, error) {
	return r.m.ForceDelete(ctx, e)
}

func (r *Repository) Restore(ctx context.Context, e *entity.Entity) (bool, error) {
	return r.m.Restore(ctx, e)
}

func (r *Repository) Truncate(ctx context.Context) error {
	return r.m.Truncate(ctx, r.schema)
}

// FlushCache drops the cached reads of the schema and its translations.
func (r *Repository) FlushCache(ctx context.Context) {
	r.m.FlushCache(ctx, r.schema)
}

// Remember caches the value of producer under key in the namespace of the
// repository's schema, so it is dropped with every write to that schema.
func Remember[T any](ctx context.Context, r *Repository, key string, producer cache.Producer[T]) (T, error) {
	fingerprint := r.m.fingerprints.Fingerprint(r.m.connection, "remember:"+key, nil)
	res, err := cache.Get(ctx, r.m.cache, r.schema.Namespace, fingerprint, producer)
	return res.Value, err
}
