package orm

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-repository-overlay/entity"
)

// Related resolves the declared relation name of owner under scope. A
// relation with a Resolve function uses it; the others query the target
// schema through the declared keys. It satisfies cascade.Graph.
func (m *Manager) Related(ctx context.Context, owner *entity.Entity, name string, scope entity.Scope) (entity.Related, error) {
	rel := owner.Schema().MustRelation(name)
	if rel.Resolve != nil {
		return rel.Resolve(ctx, owner, scope)
	}

	target, err := m.registry.Lookup(rel.Target)
	if err != nil {
		return entity.None(), goerrors.Wrap(err, goerrors.CategoryInternal,
			fmt.Sprintf("orm: relation %s.%s", owner.Schema().Name, name))
	}

	q := m.Query(target).WithScope(scope)
	switch rel.Kind {
	case entity.BelongsTo:
		ref := owner.Raw(rel.ForeignKey)
		if ref == nil {
			return entity.None(), nil
		}
		key := rel.LocalKey
		if key == "" {
			key = target.PrimaryKey
		}
		q.Where(sq.Eq{q.column(key): ref})
	default:
		local := owner.Raw(rel.LocalKey)
		if local == nil {
			return entity.None(), nil
		}
		q.Where(sq.Eq{q.column(rel.ForeignKey): local})
	}

	if rel.Kind == entity.HasMany {
		items, err := q.OrderBy(q.column(target.PrimaryKey)).Get(ctx)
		if err != nil {
			return entity.None(), err
		}
		return entity.Many(items), nil
	}

	items, err := q.Limit(1).Get(ctx)
	if err != nil {
		return entity.None(), err
	}
	return entity.One(items.First()), nil
}

// Relation returns the relation name of owner, loading it with the default
// scope on first access and keeping it on the entity afterwards.
func (m *Manager) Relation(ctx context.Context, owner *entity.Entity, name string) (entity.Related, error) {
	if r, ok := owner.Relation(name); ok {
		return r, nil
	}
	r, err := m.Related(ctx, owner, name, entity.ScopeDefault)
	if err != nil {
		return entity.None(), err
	}
	owner.SetRelation(name, r)
	return r, nil
}
