// Package cache implements the retry-dedup window for client request IDs
// and the playback position cache, backed by Redis with an in-memory
// fallback for standalone runs and tests.
package cache

import (
	"context"
	"sync"
	"time"

	"mixdown/db"
	"mixdown/logger"
)

// DedupCache remembers client request IDs for a bounded window. FirstSeen
// returns true exactly once per id within the window, so a retried mutating
// command can be rejected instead of applied twice. Forget releases an id
// whose command was not applied, so the client can retry it.
type DedupCache interface {
	FirstSeen(ctx context.Context, requestID string) (bool, error)
	Forget(ctx context.Context, requestID string) error
}

// RedisDedupCache implements DedupCache with SETNX + TTL.
type RedisDedupCache struct {
	window time.Duration
}

// NewRedisDedupCache uses the shared Redis client. Call db.ConnectRedis
// first.
func NewRedisDedupCache(window time.Duration) *RedisDedupCache {
	return &RedisDedupCache{window: window}
}

func (c *RedisDedupCache) FirstSeen(ctx context.Context, requestID string) (bool, error) {
	ok, err := db.RedisClient.SetNX(ctx, "dedup:"+requestID, 1, c.window).Result()
	if err != nil {
		// Dedup is best-effort protection against client retries; a cache
		// outage must not take command submission down with it.
		logger.Warn("dedup cache unavailable, admitting request",
			logger.String("requestId", requestID),
			logger.ErrorField(err))
		return true, nil
	}
	return ok, nil
}

func (c *RedisDedupCache) Forget(ctx context.Context, requestID string) error {
	return db.RedisClient.Del(ctx, "dedup:"+requestID).Err()
}

// MemoryDedupCache is the in-process fallback.
type MemoryDedupCache struct {
	window time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryDedupCache builds an empty in-memory window.
func NewMemoryDedupCache(window time.Duration) *MemoryDedupCache {
	return &MemoryDedupCache{
		window: window,
		seen:   make(map[string]time.Time),
	}
}

func (c *MemoryDedupCache) FirstSeen(_ context.Context, requestID string) (bool, error) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, at := range c.seen {
		if now.Sub(at) > c.window {
			delete(c.seen, id)
		}
	}

	if at, ok := c.seen[requestID]; ok && now.Sub(at) <= c.window {
		return false, nil
	}
	c.seen[requestID] = now
	return true, nil
}

func (c *MemoryDedupCache) Forget(_ context.Context, requestID string) error {
	c.mu.Lock()
	delete(c.seen, requestID)
	c.mu.Unlock()
	return nil
}
