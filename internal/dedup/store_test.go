package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestClaimOnceThenDuplicate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Claim(ctx, "org-1", "web_form:evt-1"); err != nil {
		t.Fatalf("first claim should succeed: %v", err)
	}
	if err := store.Claim(ctx, "org-1", "web_form:evt-1"); !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("second claim should be duplicate, got %v", err)
	}

	// Same key under a different org is independent.
	if err := store.Claim(ctx, "org-2", "web_form:evt-1"); err != nil {
		t.Fatalf("claim under other org should succeed: %v", err)
	}
}

func TestReleaseAllowsRetry(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Claim(ctx, "org-1", "k"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Release(ctx, "org-1", "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := store.Claim(ctx, "org-1", "k"); err != nil {
		t.Fatalf("claim after release should succeed: %v", err)
	}
}

func TestRetentionExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Claim(ctx, "org-1", "k"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	seen, err := store.Seen(ctx, "org-1", "k")
	if err != nil || !seen {
		t.Fatalf("expected seen, got %v %v", seen, err)
	}

	mr.FastForward(2 * time.Hour)

	seen, err = store.Seen(ctx, "org-1", "k")
	if err != nil || seen {
		t.Fatalf("expected expired after retention, got %v %v", seen, err)
	}
	if err := store.Claim(ctx, "org-1", "k"); err != nil {
		t.Fatalf("claim after expiry should succeed: %v", err)
	}
}
