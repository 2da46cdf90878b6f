package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Outcome tells which path a cached read took.
type Outcome int

const (
	// OutcomeMiss means the producer ran and its value was stored.
	OutcomeMiss Outcome = iota
	// OutcomeHit means the value came from the store.
	OutcomeHit
	// OutcomeBypassed means the cache was disabled or failed and the
	// producer ran without the result being stored.
	OutcomeBypassed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	case OutcomeBypassed:
		return "bypassed"
	default:
		return "unknown"
	}
}

// Result carries a value along with how it was obtained.
type Result[T any] struct {
	Value   T
	Outcome Outcome
	Key     string
}

// Producer computes a value from the source of truth.
type Producer[T any] func(ctx context.Context) (T, error)

// ResultCache is a best effort read-through cache. Backend and codec
// failures are logged and counted, never returned: callers always get the
// producer's value or the producer's error.
type ResultCache struct {
	store    Store
	codec    Codec
	ttl      time.Duration
	enabled  bool
	logger   *slog.Logger
	recorder Recorder
	// namespace -> keys written by this process
	keys *xsync.MapOf[string, *xsync.MapOf[string, struct{}]]
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithTTL sets the per entry TTL handed to the store.
func WithTTL(ttl time.Duration) Option {
	return func(rc *ResultCache) { rc.ttl = ttl }
}

// WithLogger sets the logger used for recovered failures.
func WithLogger(logger *slog.Logger) Option {
	return func(rc *ResultCache) {
		if logger != nil {
			rc.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(recorder Recorder) Option {
	return func(rc *ResultCache) {
		if recorder != nil {
			rc.recorder = recorder
		}
	}
}

// WithCodec replaces the msgpack codec.
func WithCodec(codec Codec) Option {
	return func(rc *ResultCache) {
		if codec != nil {
			rc.codec = codec
		}
	}
}

// WithEnabled turns caching on or off. A disabled cache runs every
// producer and reports OutcomeBypassed.
func WithEnabled(enabled bool) Option {
	return func(rc *ResultCache) { rc.enabled = enabled }
}

// NewResultCache builds a ResultCache over store.
func NewResultCache(store Store, opts ...Option) *ResultCache {
	rc := &ResultCache{
		store:    store,
		codec:    MsgpackCodec{},
		enabled:  true,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		keys:     xsync.NewMapOf[string, *xsync.MapOf[string, struct{}]](),
	}
	for _, opt := range opts {
		opt(rc)
	}
	if store == nil {
		rc.enabled = false
	}
	return rc
}

// Enabled reports whether lookups consult the store.
func (rc *ResultCache) Enabled() bool {
	return rc != nil && rc.enabled
}

// Get returns the value cached under namespace and fingerprint, or runs
// producer exactly once and stores its value. A producer error is returned
// as is and nothing is stored.
func Get[T any](ctx context.Context, rc *ResultCache, namespace, fingerprint string, producer Producer[T]) (Result[T], error) {
	key := Key(namespace, fingerprint)

	if !rc.Enabled() {
		value, err := producer(ctx)
		if rc != nil {
			rc.recorder.ObserveLookup(namespace, OutcomeBypassed.String())
		}
		return Result[T]{Value: value, Outcome: OutcomeBypassed, Key: key}, err
	}

	data, err := rc.timedGet(ctx, key)
	switch {
	case err == nil:
		var value T
		decodeErr := rc.codec.Unmarshal(data, &value)
		if decodeErr == nil {
			rc.recorder.ObserveLookup(namespace, OutcomeHit.String())
			return Result[T]{Value: value, Outcome: OutcomeHit, Key: key}, nil
		}
		rc.fail(ctx, namespace, key, "decode", decodeErr)
		// drop the unreadable entry so the next read can repopulate it
		_ = rc.store.Delete(ctx, key)
		return bypass(ctx, rc, namespace, key, producer)

	case errors.Is(err, ErrCacheMiss):

	default:
		rc.fail(ctx, namespace, key, "get", err)
		return bypass(ctx, rc, namespace, key, producer)
	}

	value, err := producer(ctx)
	if err != nil {
		rc.recorder.ObserveLookup(namespace, OutcomeMiss.String())
		return Result[T]{Value: value, Outcome: OutcomeMiss, Key: key}, err
	}

	encoded, encodeErr := rc.codec.Marshal(value)
	if encodeErr != nil {
		rc.fail(ctx, namespace, key, "encode", encodeErr)
		rc.recorder.ObserveLookup(namespace, OutcomeBypassed.String())
		return Result[T]{Value: value, Outcome: OutcomeBypassed, Key: key}, nil
	}

	if setErr := rc.timedSet(ctx, key, encoded); setErr != nil {
		rc.fail(ctx, namespace, key, "set", setErr)
		rc.recorder.ObserveLookup(namespace, OutcomeBypassed.String())
		return Result[T]{Value: value, Outcome: OutcomeBypassed, Key: key}, nil
	}

	rc.track(namespace, key)
	rc.recorder.ObserveLookup(namespace, OutcomeMiss.String())
	return Result[T]{Value: value, Outcome: OutcomeMiss, Key: key}, nil
}

// Fresh drops the entry for a single query and reads it again through producer.
func Fresh[T any](ctx context.Context, rc *ResultCache, namespace, fingerprint string, producer Producer[T]) (Result[T], error) {
	rc.Invalidate(ctx, namespace, fingerprint)
	return Get(ctx, rc, namespace, fingerprint, producer)
}

func bypass[T any](ctx context.Context, rc *ResultCache, namespace, key string, producer Producer[T]) (Result[T], error) {
	value, err := producer(ctx)
	rc.recorder.ObserveLookup(namespace, OutcomeBypassed.String())
	return Result[T]{Value: value, Outcome: OutcomeBypassed, Key: key}, err
}

// Invalidate removes the entry for a single query.
func (rc *ResultCache) Invalidate(ctx context.Context, namespace, fingerprint string) {
	if !rc.Enabled() {
		return
	}

	key := Key(namespace, fingerprint)
	if err := rc.store.Delete(ctx, key); err != nil {
		rc.fail(ctx, namespace, key, "delete", err)
	}
	if keys, ok := rc.keys.Load(namespace); ok {
		keys.Delete(key)
	}
	rc.recorder.ObserveInvalidation(namespace, "key")
}

// InvalidateAll removes every entry of namespace: the keys this process
// wrote and, when the store supports it, every key under the namespace
// prefix.
func (rc *ResultCache) InvalidateAll(ctx context.Context, namespace string) {
	if !rc.Enabled() {
		return
	}

	if keys, ok := rc.keys.LoadAndDelete(namespace); ok {
		tracked := make([]string, 0, keys.Size())
		keys.Range(func(key string, _ struct{}) bool {
			tracked = append(tracked, key)
			return true
		})
		if len(tracked) > 0 {
			if err := rc.store.Delete(ctx, tracked...); err != nil {
				rc.fail(ctx, namespace, NamespacePrefix(namespace), "delete", err)
			}
		}
	}

	if deleter, ok := rc.store.(PrefixDeleter); ok {
		if err := deleter.DeletePrefix(ctx, NamespacePrefix(namespace)); err != nil {
			rc.fail(ctx, namespace, NamespacePrefix(namespace), "delete_prefix", err)
		}
	}

	rc.recorder.ObserveInvalidation(namespace, "namespace")
	rc.logger.DebugContext(ctx, "cache namespace invalidated", "namespace", namespace)
}

// TrackedKeys returns the keys of namespace written by this process.
func (rc *ResultCache) TrackedKeys(namespace string) []string {
	if rc == nil {
		return nil
	}
	keys, ok := rc.keys.Load(namespace)
	if !ok {
		return nil
	}
	out := make([]string, 0, keys.Size())
	keys.Range(func(key string, _ struct{}) bool {
		out = append(out, key)
		return true
	})
	return out
}

func (rc *ResultCache) track(namespace, key string) {
	keys, _ := rc.keys.LoadOrCompute(namespace, func() *xsync.MapOf[string, struct{}] {
		return xsync.NewMapOf[string, struct{}]()
	})
	keys.Store(key, struct{}{})
}

func (rc *ResultCache) timedGet(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := rc.store.Get(ctx, key)
	rc.recorder.ObserveLatency("get", time.Since(start))
	return data, err
}

func (rc *ResultCache) timedSet(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := rc.store.Set(ctx, key, data, rc.ttl)
	rc.recorder.ObserveLatency("set", time.Since(start))
	return err
}

func (rc *ResultCache) fail(ctx context.Context, namespace, key, op string, err error) {
	rc.recorder.ObserveFailure(namespace, op)
	rc.logger.WarnContext(ctx, "cache backend failure, falling back to source",
		"namespace", namespace,
		"key", key,
		"op", op,
		"error", err,
	)
}
