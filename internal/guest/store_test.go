package guest

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisStoreIssueAndLookup(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, time.Minute)
	ctx := context.Background()

	identity, err := store.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !strings.HasPrefix(identity.ID, "guest_") {
		t.Fatalf("guest id %q missing prefix", identity.ID)
	}

	found, err := store.Lookup(ctx, identity.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found.ID != identity.ID {
		t.Fatalf("Lookup returned %q, want %q", found.ID, identity.ID)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, time.Minute)
	ctx := context.Background()

	identity, err := store.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Lookup(ctx, identity.ID); err == nil {
		t.Fatal("expected lookup to fail after TTL")
	}
}

func TestRedisStoreUnknownID(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStoreWithClient(client, time.Minute)

	if _, err := store.Lookup(context.Background(), "guest_missing"); err == nil {
		t.Fatal("expected lookup of unknown id to fail")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	identity, err := store.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	found, err := store.Lookup(ctx, identity.ID)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if found.ID != identity.ID {
		t.Fatalf("Lookup returned %q, want %q", found.ID, identity.ID)
	}
	if _, err := store.Lookup(ctx, "guest_missing"); err == nil {
		t.Fatal("expected lookup of unknown id to fail")
	}
}
