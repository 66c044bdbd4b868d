package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"mixdown/db"
)

const positionKey = "transport:position"

// SetPlaybackPosition stores the last reported playhead so a reconnecting
// client can show it without waiting for the next transport event.
func SetPlaybackPosition(ctx context.Context, frame int64) error {
	if db.RedisClient == nil {
		return nil
	}
	return db.RedisClient.Set(ctx, positionKey, frame, 24*time.Hour).Err()
}

// GetPlaybackPosition returns the cached playhead, or 0 when unknown.
func GetPlaybackPosition(ctx context.Context) (int64, error) {
	if db.RedisClient == nil {
		return 0, nil
	}
	val, err := db.RedisClient.Get(ctx, positionKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}
