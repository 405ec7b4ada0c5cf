//go:build integration

package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildledger/internal/submission/models"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/testutil/containers"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	caller := domain.MustParseAddress("0x00000000000000000000000000000000000000a1")

	t.Run("round trip keeps the ttl", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		s := NewRedis(rc.Client, WithTTL(time.Hour))
		r, err := models.NewReceipt(models.KindCreateGuild, caller, time.Now())
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, r))
		assert.ErrorIs(t, s.Create(ctx, r), sentinel.ErrAlreadyUsed)

		next := *r
		next.Status = models.StatusProcessing
		require.NoError(t, s.Transition(ctx, &next, models.StatusPending))

		got, err := s.Get(ctx, r.Hash)
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, got.Status)
		assert.Equal(t, caller, got.Caller)

		ttl, err := rc.Client.TTL(ctx, receiptKeyPrefix+r.Hash).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 50*time.Minute)
	})

	t.Run("only one concurrent transition wins", func(t *testing.T) {
		require.NoError(t, rc.FlushAll(ctx))
		s := NewRedis(rc.Client)
		r, err := models.NewReceipt(models.KindCompleteTask, caller, time.Now())
		require.NoError(t, err)
		require.NoError(t, s.Create(ctx, r))

		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				next := *r
				if i%2 == 0 {
					next.Status = models.StatusProcessing
				} else {
					next.ApplyCancellation(time.Now())
				}
				if s.Transition(ctx, &next, models.StatusPending) == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("missing receipt", func(t *testing.T) {
		s := NewRedis(rc.Client)
		_, err := s.Get(ctx, "0xmissing")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
