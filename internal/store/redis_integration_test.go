//go:build integration
// +build integration

package store

import (
	"context"
	"os"
	"testing"
)

func TestRedisStore_GetSet_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/0"
	}
	ctx := context.Background()
	s, err := NewRedisStore(ctx, url)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer s.Close()

	if err := s.Set(ctx, "weatherDataTime_berlin", "1700000000000"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := s.Get(ctx, "weatherDataTime_berlin")
	if err != nil || !ok || got != "1700000000000" {
		t.Errorf("Get() = %q, %v, %v", got, ok, err)
	}
	if _, ok, err := s.Get(ctx, "nonexistent-key"); err != nil || ok {
		t.Errorf("Get() miss = %v, %v; want false, nil", ok, err)
	}
}
