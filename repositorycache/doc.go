// Package repositorycache decorates go-repository-bun repositories with the
// shared result cache and lifecycle notifications.
//
// # Overview
//
// CachedRepository[T] implements repository.Repository[T] and wraps a base
// repository. Reads are answered from the result cache, writes go to the
// base and then drop the repository's cache namespace, so typed
// repositories and the orm package can share one cache and one event bus.
//
// # Basic Usage
//
//	cached := repositorycache.New[*User](base, resultCache,
//		repositorycache.WithDB(db),
//		repositorycache.WithBus(dispatcher),
//	)
//
//	user, err := cached.GetByID(ctx, "user-123")
//	users, total, err := cached.List(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
//		return q.Where("?TableAlias.active = ?", true).Limit(10)
//	})
//
// # Cached Operations
//
// Get, GetByID, GetByIdentifier, List and Count are read through the cache.
// With WithDB the criteria are compiled against a bun select of T and the
// SQL text is fingerprinted, so two criteria closures producing the same
// query share an entry. Without a database the key serializer is used and
// criteria closures are keyed by address.
//
// # Writes
//
// Every successful write invalidates the namespace and publishes a
// RecordNotification on the bus:
//
//	Create, CreateTx                       model.created
//	Update, UpdateTx                       model.updated
//	Upsert, UpsertTx, GetOrCreate(Tx)      model.saved
//	Delete, ForceDelete (and Tx variants)  model.deleted
//	CreateMany(Tx)                         models.created
//	UpdateMany(Tx), UpsertMany(Tx)         models.updated
//	DeleteMany(Tx), DeleteWhere(Tx)        models.deleted
//
// The plural notifications fire once per call. WithCacheTags adds more
// namespaces for a write to drop.
//
// # Transactions
//
// *Tx reads and Raw bypass the cache since they may observe uncommitted
// rows. *Tx writes still invalidate.
//
// # Errors
//
// Errors from the base repository are returned unchanged and never cached.
// Cache backend failures are logged by the result cache and the call falls
// back to the base repository.
package repositorycache
