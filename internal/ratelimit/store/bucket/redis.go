package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"guildledger/internal/ratelimit/models"
	"guildledger/pkg/requestcontext"
)

const keyPrefix = "ratelimit:"

// RedisStore keeps one sorted set per key, scored by request time in
// microseconds, so every replica shares the same window.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Allow adds the request to the window and removes it again when the window
// was already full, so rejected requests do not extend the penalty.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error) {
	now := requestcontext.Now(ctx)
	rk := keyPrefix + key
	member := uuid.NewString()
	score := float64(now.UnixMicro())

	var (
		card   *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, rk, "-inf", strconv.FormatInt(now.Add(-window).UnixMicro(), 10))
		pipe.ZAdd(ctx, rk, redis.Z{Score: score, Member: member})
		card = pipe.ZCard(ctx, rk)
		oldest = pipe.ZRangeWithScores(ctx, rk, 0, 0)
		pipe.PExpire(ctx, rk, window)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit window: %w", err)
	}

	resetAt := now.Add(window)
	if z := oldest.Val(); len(z) > 0 {
		resetAt = time.UnixMicro(int64(z[0].Score)).Add(window)
	}

	count := int(card.Val())
	if count > limit {
		if err := s.client.ZRem(ctx, rk, member).Err(); err != nil {
			return nil, fmt.Errorf("rate limit rollback: %w", err)
		}
		return &models.Result{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt}, nil
	}
	return &models.Result{Allowed: true, Limit: limit, Remaining: limit - count, ResetAt: resetAt}, nil
}

// Reset clears the counter for key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}
