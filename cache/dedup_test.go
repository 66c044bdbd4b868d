package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDedupFirstSeenOncePerWindow(t *testing.T) {
	c := NewMemoryDedupCache(time.Minute)
	ctx := context.Background()

	first, err := c.FirstSeen(ctx, "req-1")
	if err != nil {
		t.Fatalf("FirstSeen error: %v", err)
	}
	if !first {
		t.Error("fresh request id not reported as first")
	}

	again, err := c.FirstSeen(ctx, "req-1")
	if err != nil {
		t.Fatalf("FirstSeen error: %v", err)
	}
	if again {
		t.Error("repeated request id reported as first within the window")
	}

	other, _ := c.FirstSeen(ctx, "req-2")
	if !other {
		t.Error("unrelated request id rejected")
	}
}

func TestMemoryDedupForgetReleasesID(t *testing.T) {
	c := NewMemoryDedupCache(time.Minute)
	ctx := context.Background()

	if first, _ := c.FirstSeen(ctx, "req-1"); !first {
		t.Fatal("fresh request id not reported as first")
	}
	if err := c.Forget(ctx, "req-1"); err != nil {
		t.Fatalf("Forget error: %v", err)
	}
	if first, _ := c.FirstSeen(ctx, "req-1"); !first {
		t.Error("forgotten request id still deduplicated")
	}
}

func TestMemoryDedupWindowExpiry(t *testing.T) {
	c := NewMemoryDedupCache(10 * time.Millisecond)
	ctx := context.Background()

	if first, _ := c.FirstSeen(ctx, "req-1"); !first {
		t.Fatal("fresh request id not reported as first")
	}

	time.Sleep(25 * time.Millisecond)

	if first, _ := c.FirstSeen(ctx, "req-1"); !first {
		t.Error("request id still deduplicated after the window expired")
	}
}
