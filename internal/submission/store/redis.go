package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"guildledger/internal/submission/models"
	"guildledger/pkg/platform/sentinel"
)

const (
	receiptKeyPrefix = "receipt:"
	maxCASAttempts   = 5
)

// RedisStore keeps receipts as JSON values with a TTL so finalized receipts
// age out. Transitions are optimistic WATCH/MULTI compare-and-set writes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

type RedisOption func(*RedisStore)

// WithTTL sets how long receipts are kept after submission.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, ttl: 24 * time.Hour}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Create(ctx context.Context, r *models.Receipt) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	ok, err := s.client.SetNX(ctx, receiptKeyPrefix+r.Hash, raw, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("store receipt: %w", err)
	}
	if !ok {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, hash string) (*models.Receipt, error) {
	raw, err := s.client.Get(ctx, receiptKeyPrefix+hash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load receipt: %w", err)
	}
	var r models.Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &r, nil
}

func (s *RedisStore) Transition(ctx context.Context, next *models.Receipt, from models.Status) error {
	key := receiptKeyPrefix + next.Hash
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}

	cas := func(tx *redis.Tx) error {
		curRaw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur models.Receipt
		if err := json.Unmarshal(curRaw, &cur); err != nil {
			return fmt.Errorf("decode receipt: %w", err)
		}
		if cur.Status != from {
			return sentinel.ErrInvalidState
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, raw, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}

	for range maxCASAttempts {
		err := s.client.Watch(ctx, cas, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) && !errors.Is(err, sentinel.ErrInvalidState) {
			return fmt.Errorf("transition receipt: %w", err)
		}
		return err
	}
	return fmt.Errorf("transition receipt: %w", sentinel.ErrUnavailable)
}
