package goRefresh

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestEngine(t *testing.T, opts ...func(*Builder)) (*Engine, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	b := New().WithRedis(client)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr
}

func mustFamilyID(t *testing.T) string {
	t.Helper()
	familyID, err := NewFamilyID()
	if err != nil {
		t.Fatalf("new family id: %v", err)
	}
	return familyID
}

func mustIssue(t *testing.T, engine *Engine, memberID int64, username, familyID string) *IssuedToken {
	t.Helper()
	issued, err := engine.Issue(context.Background(), memberID, username, familyID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return issued
}

func withTTL(ttl time.Duration) func(*Builder) {
	return func(b *Builder) {
		b.WithTokenTTL(ttl)
	}
}
