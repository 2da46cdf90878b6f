package orm

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/goliatone/go-repository-overlay/cache"
	"github.com/goliatone/go-repository-overlay/entity"
)

type rowSet = []map[string]any

// fetch runs a compiled select through the result cache of schema's
// namespace. Cache failures never surface; query failures do.
func (m *Manager) fetch(ctx context.Context, schema *entity.Schema, text string, args []any, fresh bool) (rowSet, cache.Outcome, error) {
	fingerprint := m.fingerprints.Fingerprint(m.connection, text, args)
	producer := func(ctx context.Context) (rowSet, error) {
		return m.query(ctx, text, args)
	}

	read := cache.Get[rowSet]
	if fresh {
		read = cache.Fresh[rowSet]
	}
	res, err := read(ctx, m.cache, schema.Namespace, fingerprint, producer)
	m.logger.DebugContext(ctx, "orm query",
		"schema", schema.Name,
		"namespace", schema.Namespace,
		"fingerprint", fingerprint,
		"outcome", res.Outcome.String(),
	)
	if err != nil {
		return nil, res.Outcome, persistenceError(err, "select", schema)
	}
	return res.Value, res.Outcome, nil
}

func (m *Manager) query(ctx context.Context, text string, args []any) (rowSet, error) {
	var out rowSet
	if err := m.db.NewRaw(text, args...).Scan(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *Manager) hydrate(ctx context.Context, schema *entity.Schema, data rowSet, fresh bool) (entity.Collection, error) {
	items := make(entity.Collection, 0, len(data))
	for _, row := range data {
		items = append(items, entity.Hydrate(schema, m.locales, row))
	}
	if schema.IsTranslatable() && len(items) > 0 {
		if err := m.loadTranslations(ctx, schema, items, fresh); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// LoadTranslations reads the stored translations of owners, replacing
// whatever they hold in memory. Owners of one schema share one query.
func (m *Manager) LoadTranslations(ctx context.Context, owners ...*entity.Entity) error {
	bySchema := map[*entity.Schema]entity.Collection{}
	var order []*entity.Schema
	for _, o := range owners {
		s := o.Schema()
		if !s.IsTranslatable() {
			continue
		}
		if _, ok := bySchema[s]; !ok {
			order = append(order, s)
		}
		bySchema[s] = append(bySchema[s], o)
	}
	for _, s := range order {
		if err := m.loadTranslations(ctx, s, bySchema[s], true); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) loadTranslations(ctx context.Context, schema *entity.Schema, owners entity.Collection, fresh bool) error {
	ids := make([]any, 0, len(owners))
	for _, o := range owners {
		if id := o.Raw(schema.PrimaryKey); id != nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		for _, o := range owners {
			o.SetTranslations(nil)
		}
		return nil
	}

	ts := schema.TranslationSchema()
	fk := schema.Translation.ForeignKey
	text, args, err := sq.Select("*").
		From(ts.Table).
		Where(sq.Eq{fk: ids}).
		OrderBy(fk, ts.PrimaryKey).
		ToSql()
	if err != nil {
		return err
	}
	data, _, err := m.fetch(ctx, ts, text, args, fresh)
	if err != nil {
		return err
	}

	grouped := map[string]entity.Collection{}
	for _, row := range data {
		owner := entity.AsString(row[fk])
		grouped[owner] = append(grouped[owner], entity.Hydrate(ts, m.locales, row))
	}
	for _, o := range owners {
		o.SetTranslations(grouped[o.ID()])
	}
	return nil
}
