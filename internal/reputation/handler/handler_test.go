package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	permissionService "guildledger/internal/permission/service"
	permissionStore "guildledger/internal/permission/store"
	reputationService "guildledger/internal/reputation/service"
	reputationStore "guildledger/internal/reputation/store"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/tx"
	"guildledger/pkg/testutil"
)

func TestReputationHandler(t *testing.T) {
	ctx := context.Background()
	owner := domain.MustParseAddress("0x000000000000000000000000000000000000000f")
	minter := domain.MustParseAddress("0x00000000000000000000000000000000000000aa")
	alice := domain.MustParseAddress("0x00000000000000000000000000000000000000a1")

	runner := tx.NewMemory()
	permissions, err := permissionService.New(permissionStore.NewInMemory(), runner, owner)
	require.NoError(t, err)
	require.NoError(t, permissions.SetAdmin(ctx, owner, domain.AssetReputation, owner))
	require.NoError(t, permissions.Grant(ctx, owner, domain.AssetReputation, minter))
	svc, err := reputationService.New(reputationStore.NewInMemory(), permissions, runner)
	require.NoError(t, err)
	require.NoError(t, svc.Mint(ctx, minter, alice, 100))

	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil)), nil).Register(r)

	testutil.Given(t, "a holder with minted reputation", func(t *testing.T) {
		testutil.Then(t, "the balance is public", func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/reputation/"+alice.String()))
			testutil.AssertStatusOK(t, rr)
			resp := testutil.UnmarshalResponse[BalanceResponse](t, rr)
			assert.Equal(t, uint64(100), resp.Balance)
		})

		testutil.Then(t, "unknown holders read zero", func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/reputation/"+minter.String()))
			resp := testutil.UnmarshalResponse[BalanceResponse](t, rr)
			assert.Zero(t, resp.Balance)
		})

		testutil.And(t, "total supply sums every mint", func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/reputation"))
			resp := testutil.UnmarshalResponse[SupplyResponse](t, rr)
			assert.Equal(t, uint64(100), resp.TotalSupply)
		})
	})

	testutil.When(t, "the holder is not an address", func(t *testing.T) {
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/reputation/alice"))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}
