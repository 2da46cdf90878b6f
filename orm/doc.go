// Package orm persists entities of registered schemas. Queries compile
// through squirrel and run on bun; every read goes through the result
// cache and every write fires the lifecycle events that invalidate it.
//
// A Manager is the executor adapter:
//
//	m := orm.NewManager(db, registry,
//		orm.WithCache(rc),
//		orm.WithLocales(translation.StaticSource{Default: "en"}),
//	)
//
//	article := m.New(articleSchema)
//	article.SetAttribute(ctx, "title", "Hello")
//	ok, err := m.Save(ctx, article)
//
//	list, err := m.Query(articleSchema).
//		Where(sq.Eq{"author_id": 7}).
//		OrderBy("created_at DESC").
//		Get(ctx)
//
// Repository wraps a Manager and one schema behind the usual finder and
// persistence methods.
package orm
