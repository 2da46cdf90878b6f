package cacheinfra

import (
	"context"
	"encoding/binary"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// expiryHeaderSize is the width of the per-entry deadline prepended to every
// stored payload. sturdyc only knows a client wide TTL.
const expiryHeaderSize = 8

// SturdycStore is an in-process byte store backed by a sturdyc client.
type SturdycStore struct {
	client *sturdyc.Client[[]byte]
	now    func() time.Time
}

// NewSturdycStore validates cfg and builds the sturdyc client.
func NewSturdycStore(cfg Config) (*SturdycStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[[]byte](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &SturdycStore{client: client, now: time.Now}, nil
}

// Get returns the payload stored under key or ErrCacheMiss.
func (s *SturdycStore) Get(_ context.Context, key string) ([]byte, error) {
	raw, ok := s.client.Get(key)
	if !ok || len(raw) < expiryHeaderSize {
		return nil, ErrCacheMiss
	}

	deadline := int64(binary.BigEndian.Uint64(raw[:expiryHeaderSize]))
	if deadline != 0 && s.now().UnixNano() >= deadline {
		s.client.Delete(key)
		return nil, ErrCacheMiss
	}

	return raw[expiryHeaderSize:], nil
}

// Set stores value under key. A positive ttl shortens the client TTL for
// this entry only.
func (s *SturdycStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var deadline int64
	if ttl > 0 {
		deadline = s.now().Add(ttl).UnixNano()
	}

	raw := make([]byte, expiryHeaderSize+len(value))
	binary.BigEndian.PutUint64(raw[:expiryHeaderSize], uint64(deadline))
	copy(raw[expiryHeaderSize:], value)

	s.client.Set(key, raw)
	return nil
}

// Delete removes the given keys.
func (s *SturdycStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.client.Delete(key)
	}
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (s *SturdycStore) DeletePrefix(_ context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Len reports the number of entries currently held, expired ones included.
func (s *SturdycStore) Len() int {
	return s.client.Size()
}
