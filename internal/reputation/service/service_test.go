package service

import (
	"context"
	"math"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"guildledger/internal/events"
	"guildledger/internal/reputation/metrics"
	"guildledger/internal/reputation/store"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	"guildledger/pkg/platform/tx"
)

var (
	minter = domain.MustParseAddress("0x00000000000000000000000000000000000000aa")
	holder = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
)

// stubAuthorizer answers from a fixed per-principal error table.
type stubAuthorizer struct {
	errs map[domain.Address]error
}

func (a *stubAuthorizer) Authorize(_ context.Context, asset domain.AssetID, principal domain.Address) error {
	if asset != domain.AssetReputation {
		return dErrors.New(dErrors.CodeInvalidInput, "unexpected asset")
	}
	if err, ok := a.errs[principal]; ok {
		return err
	}
	return dErrors.New(dErrors.CodeUnauthorized, "caller is not an authorized minter")
}

type ReputationServiceSuite struct {
	suite.Suite
	ctx      context.Context
	auth     *stubAuthorizer
	recorder *events.Recorder
	metrics  *metrics.Metrics
	service  *Service
}

func TestReputationServiceSuite(t *testing.T) {
	suite.Run(t, new(ReputationServiceSuite))
}

func (s *ReputationServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.auth = &stubAuthorizer{errs: map[domain.Address]error{minter: nil}}
	s.recorder = &events.Recorder{}
	s.metrics = metrics.New(prometheus.NewRegistry())
	svc, err := New(store.NewInMemory(), s.auth, tx.NewMemory(),
		WithPublisher(s.recorder), WithMetrics(s.metrics))
	s.Require().NoError(err)
	s.service = svc
}

func (s *ReputationServiceSuite) TestMint() {
	s.Run("authorized minter credits the holder", func() {
		s.Require().NoError(s.service.Mint(s.ctx, minter, holder, 100))

		bal, err := s.service.BalanceOf(s.ctx, holder)
		s.Require().NoError(err)
		s.Equal(uint64(100), bal)

		supply, err := s.service.TotalSupply(s.ctx)
		s.Require().NoError(err)
		s.Equal(uint64(100), supply)
		s.Equal(float64(100), testutil.ToFloat64(s.metrics.Minted))
		s.Equal([]events.Type{events.ReputationMinted}, s.recorder.Types())
	})

	s.Run("unknown minter is unauthorized", func() {
		stranger := domain.MustParseAddress("0x00000000000000000000000000000000000000cc")
		err := s.service.Mint(s.ctx, stranger, holder, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("revoked minter gets PermissionRevoked and nothing changes", func() {
		s.auth.errs[minter] = dErrors.New(dErrors.CodePermissionRevoked, "revoked")
		defer func() { s.auth.errs[minter] = nil }()

		err := s.service.Mint(s.ctx, minter, holder, 5)
		s.True(dErrors.HasCode(err, dErrors.CodePermissionRevoked))
		bal, _ := s.service.BalanceOf(s.ctx, holder)
		s.Equal(uint64(100), bal)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.MintsRejected.WithLabelValues("permission_revoked")))
	})

	s.Run("zero amount is rejected", func() {
		err := s.service.Mint(s.ctx, minter, holder, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("zero recipient is rejected", func() {
		err := s.service.Mint(s.ctx, minter, domain.ZeroAddress, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("overflow is rejected", func() {
		err := s.service.Mint(s.ctx, minter, holder, math.MaxUint64)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		supply, _ := s.service.TotalSupply(s.ctx)
		s.Equal(uint64(100), supply)
	})
}

func (s *ReputationServiceSuite) TestAuthorizeChecksFreshRights() {
	s.NoError(s.service.Authorize(s.ctx, minter))

	s.auth.errs[minter] = dErrors.New(dErrors.CodePermissionRevoked, "revoked")
	s.True(dErrors.HasCode(s.service.Authorize(s.ctx, minter), dErrors.CodePermissionRevoked))
}
