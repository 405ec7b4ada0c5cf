package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"guildledger/internal/permission/models"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
)

type PermissionStoreSuite struct {
	suite.Suite
	store  *InMemory
	ctx    context.Context
	now    time.Time
	minter domain.Address
	admin  domain.Address
}

func (s *PermissionStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.minter = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	s.admin = domain.MustParseAddress("0x00000000000000000000000000000000000000ad")
}

func TestPermissionStoreSuite(t *testing.T) {
	suite.Run(t, new(PermissionStoreSuite))
}

func (s *PermissionStoreSuite) grant(asset domain.AssetID) *models.MinterGrant {
	g, err := models.NewMinterGrant(asset, s.minter, s.admin, s.now)
	s.Require().NoError(err)
	return g
}

func (s *PermissionStoreSuite) TestGrantLookups() {
	s.Run("returns ErrNotFound for unknown grant", func() {
		_, err := s.store.FindGrant(s.ctx, domain.AssetBadge, s.minter)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("saves and finds grant", func() {
		s.Require().NoError(s.store.SaveGrant(s.ctx, s.grant(domain.AssetReputation)))

		found, err := s.store.FindGrant(s.ctx, domain.AssetReputation, s.minter)
		s.Require().NoError(err)
		s.True(found.IsActive())
		s.Equal(s.admin, found.GrantedBy)
	})

	s.Run("returned grant is a copy", func() {
		found, err := s.store.FindGrant(s.ctx, domain.AssetReputation, s.minter)
		s.Require().NoError(err)
		found.ApplyRevocation(s.now)

		again, err := s.store.FindGrant(s.ctx, domain.AssetReputation, s.minter)
		s.Require().NoError(err)
		s.True(again.IsActive())
	})
}

func (s *PermissionStoreSuite) TestRevokeGrants() {
	s.Require().NoError(s.store.SaveGrant(s.ctx, s.grant(domain.AssetReputation)))
	s.Require().NoError(s.store.SaveGrant(s.ctx, s.grant(domain.AssetBadge)))

	revoked, err := s.store.RevokeGrants(s.ctx, s.minter, domain.RewardAssets(), s.now)
	s.Require().NoError(err)
	s.ElementsMatch(domain.RewardAssets(), revoked)

	again, err := s.store.RevokeGrants(s.ctx, s.minter, domain.RewardAssets(), s.now)
	s.Require().NoError(err)
	s.Empty(again, "already revoked grants are not reported twice")

	grants, err := s.store.ListGrantsByMinter(s.ctx, s.minter)
	s.Require().NoError(err)
	s.Require().Len(grants, 2)
	s.Equal(domain.AssetReputation, grants[0].Asset)
	for _, g := range grants {
		s.False(g.IsActive())
	}
}

func (s *PermissionStoreSuite) TestRollback() {
	runner := tx.NewMemory()
	s.Require().NoError(s.store.SaveGrant(s.ctx, s.grant(domain.AssetReputation)))

	err := runner.RunInTx(s.ctx, func(ctx context.Context) error {
		s.Require().NoError(s.store.SaveGrant(ctx, s.grant(domain.AssetBadge)))
		_, err := s.store.RevokeGrants(ctx, s.minter, []domain.AssetID{domain.AssetReputation}, s.now)
		s.Require().NoError(err)
		s.Require().NoError(s.store.SaveAdmin(ctx, &models.AssetAdmin{Asset: domain.AssetBadge, Admin: s.admin}))
		return errors.New("abort")
	})
	s.Require().Error(err)

	_, err = s.store.FindGrant(s.ctx, domain.AssetBadge, s.minter)
	s.ErrorIs(err, sentinel.ErrNotFound)

	rep, err := s.store.FindGrant(s.ctx, domain.AssetReputation, s.minter)
	s.Require().NoError(err)
	s.True(rep.IsActive())

	_, err = s.store.FindAdmin(s.ctx, domain.AssetBadge)
	s.ErrorIs(err, sentinel.ErrNotFound)

	grants, err := s.store.ListGrantsByMinter(s.ctx, s.minter)
	s.Require().NoError(err)
	s.Len(grants, 1)
}
