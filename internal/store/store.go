package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store is a flat string-keyed persistent map. Entries never expire; a Set
// overwrites any previous value. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Backend names accepted by config.
const (
	BackendInMemory  = "in_memory"
	BackendSQLite    = "sqlite"
	BackendMemcached = "memcached"
	BackendRedis     = "redis"
)

// InMemoryStore implements Store with a map. Contents are lost on restart.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]string)}
}

// Get returns (value, true, nil) on hit and ("", false, nil) on miss.
func (s *InMemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *InMemoryStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

// Len returns the number of keys held.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend string

	SQLitePath string

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisURL string
}

// Handle is an opened backend. Ping and Close are nil-safe no-ops for
// backends that hold no connections.
type Handle struct {
	Store
	ping  func(ctx context.Context) error
	close func() error
}

// Ping checks backend reachability.
func (h *Handle) Ping(ctx context.Context) error {
	if h.ping == nil {
		return nil
	}
	return h.ping(ctx)
}

// Close releases backend connections.
func (h *Handle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

// Open constructs the backend named in opts.
func Open(ctx context.Context, opts Options) (*Handle, error) {
	switch opts.Backend {
	case BackendInMemory, "":
		return &Handle{Store: NewInMemoryStore()}, nil
	case BackendSQLite:
		s, err := NewSQLiteStore(ctx, opts.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Handle{Store: s, ping: s.Ping, close: s.Close}, nil
	case BackendMemcached:
		s, err := NewMemcachedStore(opts.MemcachedAddrs, opts.MemcachedTimeout, opts.MemcachedMaxIdleConns)
		if err != nil {
			return nil, err
		}
		return &Handle{Store: s, ping: func(context.Context) error { return s.Ping() }, close: s.Close}, nil
	case BackendRedis:
		s, err := NewRedisStore(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		return &Handle{Store: s, ping: s.Ping, close: s.Close}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
