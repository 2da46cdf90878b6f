package cache

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-overlay/internal/cacheinfra"
)

// ErrCacheMiss is returned by a Store when a key is absent or expired.
var ErrCacheMiss = cacheinfra.ErrCacheMiss

// Store is the key/value backend behind a ResultCache.
type Store interface {
	// Get returns ErrCacheMiss when key is absent. Any other error is a
	// backend failure.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key. A zero ttl means no per entry expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// PrefixDeleter is implemented by stores able to drop every key sharing a
// prefix, including keys written by other processes.
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// Recorder receives result cache activity. The prometheus implementation
// lives in internal/cacheinfra.
type Recorder interface {
	ObserveLookup(namespace, outcome string)
	ObserveInvalidation(namespace, scope string)
	ObserveFailure(namespace, op string)
	ObserveLatency(op string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveLookup(string, string)         {}
func (nopRecorder) ObserveInvalidation(string, string)   {}
func (nopRecorder) ObserveFailure(string, string)        {}
func (nopRecorder) ObserveLatency(string, time.Duration) {}
