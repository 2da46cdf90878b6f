// Package cache provides the read-through result cache used by the query
// layer and the typed repository decorator.
//
// # Overview
//
// Three pieces work together:
//
//   - Fingerprint: a deterministic xxhash digest of a connection name, the
//     compiled SQL text and the ordered bindings.
//   - Store: a byte oriented key/value backend (sturdyc in process, redis
//     when shared between processes).
//   - ResultCache: Get, Invalidate and InvalidateAll on top of a Store,
//     with msgpack encoding of results.
//
// Keys have the form "<namespace>::<fingerprint>". A namespace groups the
// entries of one model so a mutation can drop them all at once.
//
// # Basic Usage
//
//	rc, err := cache.New(cache.DefaultConfig(), logger)
//	if err != nil {
//		return err
//	}
//
//	fp := cache.Fingerprint("default", sql, args)
//	res, err := cache.Get(ctx, rc, "articles", fp, func(ctx context.Context) ([]map[string]any, error) {
//		return runQuery(ctx, sql, args)
//	})
//	// res.Outcome is OutcomeHit, OutcomeMiss or OutcomeBypassed
//
// # Failure Handling
//
// Caching is never load bearing. When the store fails, or a value cannot be
// encoded or decoded, the producer runs directly and the failure is logged
// and counted. Callers only ever see the producer's own error.
//
// # Binding Serialization
//
// The default KeySerializer walks bindings with reflection. Strings are
// quoted, map keys are sorted, times are rendered in UTC, byte slices in hex
// and driver.Valuer values through their Value. Function values fall back to
// their pointer, which is only stable inside one process; avoid them in
// bindings when the cache is shared.
package cache
