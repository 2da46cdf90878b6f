package cache

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/goliatone/go-repository-overlay/internal/cacheinfra"
	"github.com/prometheus/client_golang/prometheus"
)

// Backend names a Store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Backend Backend       `yaml:"backend" json:"backend"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
	Memory  MemoryConfig  `yaml:"memory" json:"memory"`
	Redis   RedisConfig   `yaml:"redis" json:"redis"`
}

// MemoryConfig mirrors the sturdyc store options.
type MemoryConfig struct {
	Capacity           int           `yaml:"capacity" json:"capacity"`
	NumShards          int           `yaml:"num_shards" json:"num_shards"`
	TTL                time.Duration `yaml:"ttl" json:"ttl"`
	EvictionPercentage int           `yaml:"eviction_percentage" json:"eviction_percentage"`
	EvictionInterval   time.Duration `yaml:"eviction_interval" json:"eviction_interval"`
}

// RedisConfig mirrors the redis store options.
type RedisConfig struct {
	Addrs        []string      `yaml:"addrs" json:"addrs"`
	Username     string        `yaml:"username" json:"username"`
	Password     string        `yaml:"password" json:"-"`
	DB           int           `yaml:"db" json:"db"`
	KeyPrefix    string        `yaml:"key_prefix" json:"key_prefix"`
	ScanCount    int64         `yaml:"scan_count" json:"scan_count"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// DefaultConfig returns an enabled in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Backend: BackendMemory,
		TTL:     5 * time.Minute,
		Memory:  memoryFromInternal(cacheinfra.DefaultConfig()),
		Redis:   redisFromInternal(cacheinfra.DefaultRedisConfig()),
	}
}

// Validate checks the settings of the selected backend.
func (c Config) Validate() error {
	if c.TTL < 0 {
		return &cacheinfra.ConfigError{Field: "TTL", Message: "must be non-negative"}
	}
	switch c.Backend {
	case BackendMemory, "":
		return c.Memory.toInternal().Validate()
	case BackendRedis:
		return c.Redis.toInternal().Validate()
	default:
		return &cacheinfra.ConfigError{Field: "Backend", Message: fmt.Sprintf("unknown backend %q", c.Backend)}
	}
}

// NewStore builds the Store selected by cfg.Backend.
func NewStore(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		store, err := cacheinfra.NewSturdycStore(cfg.Memory.toInternal())
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendRedis:
		store, err := cacheinfra.NewRedisStore(cfg.Redis.toInternal())
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, &cacheinfra.ConfigError{Field: "Backend", Message: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}

// NewPrometheusRecorder registers the result cache collectors on reg.
func NewPrometheusRecorder(reg prometheus.Registerer) (Recorder, error) {
	metrics, err := cacheinfra.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

// New builds a ResultCache from cfg. Extra options are applied after the
// ones derived from cfg.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*ResultCache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := []Option{WithEnabled(cfg.Enabled), WithTTL(cfg.TTL), WithLogger(logger)}
	if !cfg.Enabled {
		return NewResultCache(nil, append(base, opts...)...), nil
	}

	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	return NewResultCache(store, append(base, opts...)...), nil
}

func (c MemoryConfig) toInternal() cacheinfra.Config {
	return cacheinfra.Config{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		TTL:                c.TTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func memoryFromInternal(cfg cacheinfra.Config) MemoryConfig {
	return MemoryConfig{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		TTL:                cfg.TTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}

func (c RedisConfig) toInternal() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{
		Addrs:        c.Addrs,
		Username:     c.Username,
		Password:     c.Password,
		DB:           c.DB,
		KeyPrefix:    c.KeyPrefix,
		ScanCount:    c.ScanCount,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

func redisFromInternal(cfg cacheinfra.RedisConfig) RedisConfig {
	return RedisConfig{
		Addrs:        cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		KeyPrefix:    cfg.KeyPrefix,
		ScanCount:    cfg.ScanCount,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
