package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const (
	memcachedKeyPrefix = "widget:"
	memcachedHashedTag = "sha256:"
	// memcachedMaxKeyLen is the server's key length limit in bytes.
	memcachedMaxKeyLen = 250
)

// MemcachedStore implements Store using memcached. Items are written without
// expiration; the server may still evict them under memory pressure.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// key query-escapes k so it carries no spaces or control bytes. Keys that
// exceed the length limit once escaped are replaced by their SHA-256 digest.
func (s *MemcachedStore) key(k string) string {
	escaped := memcachedKeyPrefix + url.QueryEscape(k)
	if len(escaped) <= memcachedMaxKeyLen {
		return escaped
	}
	sum := sha256.Sum256([]byte(k))
	return memcachedKeyPrefix + memcachedHashedTag + hex.EncodeToString(sum[:])
}

// Get implements Store.Get. Returns false, nil on miss.
func (s *MemcachedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if ctx.Err() != nil {
		return "", false, ctx.Err()
	}
	item, err := s.client.Get(s.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(item.Value), true, nil
}

// Set implements Store.Set.
func (s *MemcachedStore) Set(ctx context.Context, key, value string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return s.client.Set(&memcache.Item{
		Key:   s.key(key),
		Value: []byte(value),
	})
}

// Ping checks if memcached is reachable.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes idle connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
