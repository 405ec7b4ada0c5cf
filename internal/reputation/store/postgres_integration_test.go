//go:build integration

package store

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guildledger/pkg/domain"
	"guildledger/pkg/platform/tx"
	"guildledger/pkg/testutil/containers"
)

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)
	alice := domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob := domain.MustParseAddress("0x00000000000000000000000000000000000000b0")

	t.Run("supply tracks every credit", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		s := NewPostgres(pg.DB)

		supply, err := s.TotalSupply(ctx)
		require.NoError(t, err)
		assert.Zero(t, supply)

		require.NoError(t, s.Credit(ctx, alice, 100))
		require.NoError(t, s.Credit(ctx, alice, 50))
		require.NoError(t, s.Credit(ctx, bob, 7))

		bal, err := s.BalanceOf(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, uint64(150), bal)
		supply, err = s.TotalSupply(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(157), supply)
	})

	t.Run("rolled back credit leaves supply unchanged", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		s := NewPostgres(pg.DB)
		require.NoError(t, s.Credit(ctx, alice, 10))

		err := tx.NewSQL(pg.DB).RunInTx(ctx, func(ctx context.Context) error {
			require.NoError(t, s.Credit(ctx, bob, 5))
			return errors.New("abort")
		})
		require.Error(t, err)

		supply, err := s.TotalSupply(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(10), supply)
	})

	t.Run("supply holds the full unsigned range", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		s := NewPostgres(pg.DB)
		require.NoError(t, s.Credit(ctx, alice, math.MaxUint64-1))
		require.NoError(t, s.Credit(ctx, bob, 1))

		supply, err := s.TotalSupply(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(math.MaxUint64), supply)
	})
}
