package orm

import (
	"context"
	"fmt"
	"maps"
	"slices"

	sq "github.com/Masterminds/squirrel"

	"github.com/goliatone/go-repository-overlay/cache"
	"github.com/goliatone/go-repository-overlay/entity"
	"github.com/goliatone/go-repository-overlay/lifecycle"
)

// Query builds a select on one schema. Soft deleting schemas only see live
// rows unless WithTrashed or OnlyTrashed widen or flip the scope.
type Query struct {
	m      *Manager
	schema *entity.Schema

	wheres []sq.Sqlizer
	orders []string
	limit  uint64
	offset uint64
	scope  entity.Scope
	fresh  bool
	err    error
}

func (q *Query) Schema() *entity.Schema { return q.schema }

func (q *Query) clone() *Query {
	c := *q
	c.wheres = slices.Clone(q.wheres)
	c.orders = slices.Clone(q.orders)
	return &c
}

// Where adds a predicate. pred is anything squirrel accepts: a string with
// ? placeholders, sq.Eq and friends, or any sq.Sqlizer.
func (q *Query) Where(pred any, args ...any) *Query {
	switch p := pred.(type) {
	case string:
		q.wheres = append(q.wheres, sq.Expr(p, args...))
	case sq.Sqlizer:
		q.wheres = append(q.wheres, p)
	case map[string]any:
		q.wheres = append(q.wheres, sq.Eq(p))
	default:
		q.err = badInput("orm: unsupported predicate %T", pred)
	}
	return q
}

func (q *Query) WhereIn(column string, values ...any) *Query {
	if len(values) == 0 {
		q.wheres = append(q.wheres, sq.Expr("1=0"))
		return q
	}
	q.wheres = append(q.wheres, sq.Eq{column: values})
	return q
}

func (q *Query) WherePrimaryKey(id any) *Query {
	return q.Where(sq.Eq{q.column(q.schema.PrimaryKey): id})
}

func (q *Query) OrderBy(orders ...string) *Query {
	q.orders = append(q.orders, orders...)
	return q
}

func (q *Query) Limit(n uint64) *Query {
	q.limit = n
	return q
}

func (q *Query) Offset(n uint64) *Query {
	q.offset = n
	return q
}

// WithTrashed includes soft deleted rows.
func (q *Query) WithTrashed() *Query { return q.WithScope(entity.ScopeWithTrashed) }

// OnlyTrashed restricts the query to soft deleted rows.
func (q *Query) OnlyTrashed() *Query { return q.WithScope(entity.ScopeOnlyTrashed) }

func (q *Query) WithScope(scope entity.Scope) *Query {
	q.scope = scope
	return q
}

// TranslatedIn keeps rows that have a translation for locale.
func (q *Query) TranslatedIn(locale string) *Query {
	return q.whereTranslation(locale)
}

// Translated keeps rows that have at least one translation.
func (q *Query) Translated() *Query {
	return q.whereTranslation("")
}

func (q *Query) whereTranslation(locale string) *Query {
	ts := q.schema.TranslationSchema()
	if ts == nil {
		q.err = badInput("orm: %s is not translatable", q.schema.Name)
		return q
	}
	sub := sq.Select("1").From(ts.Table).Where(fmt.Sprintf("%s.%s = %s",
		ts.Table, q.schema.Translation.ForeignKey, q.column(q.schema.PrimaryKey)))
	if locale != "" {
		sub = sub.Where(sq.Eq{ts.Table + "." + q.schema.Translation.LocaleKey: locale})
	}
	text, args, err := sub.ToSql()
	if err != nil {
		q.err = err
		return q
	}
	q.wheres = append(q.wheres, sq.Expr("EXISTS ("+text+")", args...))
	return q
}

// Fresh drops the cached entry of this exact query before running it.
func (q *Query) Fresh() *Query {
	q.fresh = true
	return q
}

func (q *Query) column(name string) string {
	return q.schema.Table + "." + name
}

func (q *Query) conditions() []sq.Sqlizer {
	conds := slices.Clone(q.wheres)
	if !q.schema.SoftDeletes {
		if q.scope == entity.ScopeOnlyTrashed {
			conds = append(conds, sq.Expr("1=0"))
		}
		return conds
	}
	switch q.scope {
	case entity.ScopeDefault:
		conds = append(conds, sq.Eq{q.column(entity.DeletedAtColumn): nil})
	case entity.ScopeOnlyTrashed:
		conds = append(conds, sq.NotEq{q.column(entity.DeletedAtColumn): nil})
	}
	return conds
}

func (q *Query) selectBuilder(columns ...string) sq.SelectBuilder {
	b := sq.Select(columns...).From(q.schema.Table)
	for _, c := range q.conditions() {
		b = b.Where(c)
	}
	return b
}

// ToSql compiles the select the query runs.
func (q *Query) ToSql() (string, []any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	b := q.selectBuilder(q.schema.Table + ".*")
	if len(q.orders) > 0 {
		b = b.OrderBy(q.orders...)
	}
	if q.limit > 0 {
		b = b.Limit(q.limit)
	}
	if q.offset > 0 {
		b = b.Offset(q.offset)
	}
	return b.ToSql()
}

// Fingerprint is the cache fingerprint of the compiled select.
func (q *Query) Fingerprint() (string, error) {
	text, args, err := q.ToSql()
	if err != nil {
		return "", err
	}
	return q.m.fingerprints.Fingerprint(q.m.connection, text, args), nil
}

// Get runs the query and hydrates the matching entities with their
// translations.
func (q *Query) Get(ctx context.Context) (entity.Collection, error) {
	items, _, err := q.GetWithOutcome(ctx)
	return items, err
}

// GetWithOutcome is Get that also reports how the primary rows were read.
func (q *Query) GetWithOutcome(ctx context.Context) (entity.Collection, cache.Outcome, error) {
	text, args, err := q.ToSql()
	if err != nil {
		return nil, cache.OutcomeBypassed, err
	}
	rows, outcome, err := q.m.fetch(ctx, q.schema, text, args, q.fresh)
	if err != nil {
		return nil, outcome, err
	}
	items, err := q.m.hydrate(ctx, q.schema, rows, q.fresh)
	return items, outcome, err
}

// First returns the first match or ErrNotFound.
func (q *Query) First(ctx context.Context) (*entity.Entity, error) {
	items, err := q.clone().Limit(1).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, notFound(q.schema, "matching query")
	}
	return items[0], nil
}

// Count returns the number of matches, ignoring order, limit and offset.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	text, args, err := q.selectBuilder("COUNT(*) AS aggregate").ToSql()
	if err != nil {
		return 0, err
	}
	rows, _, err := q.m.fetch(ctx, q.schema, text, args, q.fresh)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt64(rows[0]["aggregate"]), nil
}

// Page is one page of results.
type Page struct {
	Items    entity.Collection
	Total    int64
	Page     int
	PerPage  int
	LastPage int
}

// Paginate returns page (1 based) of perPage items.
func (q *Query) Paginate(ctx context.Context, page, perPage int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		return Page{}, badInput("orm: perPage must be positive, got %d", perPage)
	}
	total, err := q.Count(ctx)
	if err != nil {
		return Page{}, err
	}
	items, err := q.clone().Limit(uint64(perPage)).Offset(uint64((page - 1) * perPage)).Get(ctx)
	if err != nil {
		return Page{}, err
	}
	last := int((total + int64(perPage) - 1) / int64(perPage))
	return Page{Items: items, Total: total, Page: page, PerPage: perPage, LastPage: max(last, 1)}, nil
}

// Update sets values on every match in one statement. updatingMultiple and
// updatedMultiple fire once around it. Order, limit and offset do not apply.
func (q *Query) Update(ctx context.Context, values map[string]any) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	if len(values) == 0 {
		return 0, nil
	}
	set := maps.Clone(values)
	for k := range set {
		if !q.schema.HasColumn(k) || k == q.schema.PrimaryKey {
			return 0, badInput("orm: %s has no updatable column %q", q.schema.Name, k)
		}
	}

	subject, err := q.bulkSubject(ctx)
	if err != nil {
		return 0, err
	}
	if err := q.m.fire(ctx, lifecycle.UpdatingMultiple, subject); err != nil {
		_, err = halted(err)
		return 0, err
	}

	if q.schema.Timestamps {
		if _, ok := set[entity.UpdatedAtColumn]; !ok {
			set[entity.UpdatedAtColumn] = q.m.now()
		}
	}
	b := sq.Update(q.schema.Table).SetMap(set)
	for _, c := range q.conditions() {
		b = b.Where(c)
	}
	return q.runBulk(ctx, b, "update", lifecycle.UpdatedMultiple, subject)
}

// Delete removes every match in one statement: soft deleting schemas get a
// deletion mark, others lose the rows. Per row events, cascades and
// translation cleanup do not run; deletingMultiple and deletedMultiple
// fire once.
func (q *Query) Delete(ctx context.Context) (int64, error) {
	return q.bulkDelete(ctx, false)
}

// ForceDelete is Delete that always removes the rows.
func (q *Query) ForceDelete(ctx context.Context) (int64, error) {
	return q.bulkDelete(ctx, true)
}

func (q *Query) bulkDelete(ctx context.Context, force bool) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}
	subject, err := q.bulkSubject(ctx)
	if err != nil {
		return 0, err
	}
	if err := q.m.fire(ctx, lifecycle.DeletingMultiple, subject); err != nil {
		_, err = halted(err)
		return 0, err
	}

	var b sq.Sqlizer
	if q.schema.SoftDeletes && !force {
		now := q.m.now()
		u := sq.Update(q.schema.Table).Set(entity.DeletedAtColumn, now)
		if q.schema.Timestamps {
			u = u.Set(entity.UpdatedAtColumn, now)
		}
		for _, c := range q.conditions() {
			u = u.Where(c)
		}
		b = u
	} else {
		d := sq.Delete(q.schema.Table)
		for _, c := range q.conditions() {
			d = d.Where(c)
		}
		b = d
	}
	return q.runBulk(ctx, b, "delete", lifecycle.DeletedMultiple, subject)
}

// bulkSubject reads the rows a bulk statement is about to touch, bypassing
// the cache, so listeners see what changed.
func (q *Query) bulkSubject(ctx context.Context) (*lifecycle.Subject, error) {
	text, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := q.m.query(ctx, text, args)
	if err != nil {
		return nil, persistenceError(err, "select", q.schema)
	}
	matched := make(entity.Collection, 0, len(rows))
	for _, row := range rows {
		matched = append(matched, entity.Hydrate(q.schema, q.m.locales, row))
	}
	return lifecycle.Bulk(q.schema, matched), nil
}

func (q *Query) runBulk(ctx context.Context, b sq.Sqlizer, op string, post lifecycle.Event, subject *lifecycle.Subject) (int64, error) {
	text, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	n, err := q.m.exec(ctx, text, args)
	if err != nil {
		return 0, persistenceError(err, op, q.schema)
	}
	subject.Affected = n
	q.m.logger.DebugContext(ctx, "orm bulk statement",
		"schema", q.schema.Name,
		"op", op,
		"affected", n,
	)
	return n, q.m.fire(ctx, post, subject)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		var out int64
		_, _ = fmt.Sscan(string(n), &out)
		return out
	case string:
		var out int64
		_, _ = fmt.Sscan(n, &out)
		return out
	}
	return 0
}
