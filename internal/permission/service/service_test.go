package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"guildledger/internal/events"
	"guildledger/internal/permission/store"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	"guildledger/pkg/platform/tx"
)

var (
	owner    = domain.MustParseAddress("0x000000000000000000000000000000000000000f")
	registry = domain.MustParseAddress("0x00000000000000000000000000000000000000aa")
	guild    = domain.MustParseAddress("0x00000000000000000000000000000000000000bb")
	stranger = domain.MustParseAddress("0x00000000000000000000000000000000000000cc")
)

type PermissionServiceSuite struct {
	suite.Suite
	ctx      context.Context
	runner   *tx.Memory
	recorder *events.Recorder
	service  *Service
}

func TestPermissionServiceSuite(t *testing.T) {
	suite.Run(t, new(PermissionServiceSuite))
}

func (s *PermissionServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.runner = tx.NewMemory()
	s.recorder = &events.Recorder{}
	svc, err := New(store.NewInMemory(), s.runner, owner, WithPublisher(s.recorder))
	s.Require().NoError(err)
	s.service = svc

	for _, asset := range domain.RewardAssets() {
		s.Require().NoError(s.service.SetAdmin(s.ctx, owner, asset, registry))
	}
}

func (s *PermissionServiceSuite) TestSetAdmin() {
	s.Run("only the owner may set admins", func() {
		err := s.service.SetAdmin(s.ctx, stranger, domain.AssetBadge, stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("rejects unknown asset", func() {
		err := s.service.SetAdmin(s.ctx, owner, "gold", registry)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *PermissionServiceSuite) TestGrantAndAuthorize() {
	s.Run("never granted is unauthorized", func() {
		err := s.service.Authorize(s.ctx, domain.AssetReputation, guild)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("only the asset admin may grant", func() {
		err := s.service.Grant(s.ctx, stranger, domain.AssetReputation, guild)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

		ok, err := s.service.IsMinter(s.ctx, domain.AssetReputation, guild)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("granted minter is authorized", func() {
		s.Require().NoError(s.service.Grant(s.ctx, registry, domain.AssetReputation, guild))
		s.NoError(s.service.Authorize(s.ctx, domain.AssetReputation, guild))

		ok, err := s.service.IsMinter(s.ctx, domain.AssetBadge, guild)
		s.Require().NoError(err)
		s.False(ok, "grants are per asset")
	})

	s.Run("grant is idempotent", func() {
		s.Require().NoError(s.service.Grant(s.ctx, registry, domain.AssetReputation, guild))
		s.Equal([]events.Type{events.MinterGranted}, s.recorder.Types())
	})
}

func (s *PermissionServiceSuite) TestRevoke() {
	s.Require().NoError(s.service.Grant(s.ctx, registry, domain.AssetReputation, guild))
	s.Require().NoError(s.service.Grant(s.ctx, registry, domain.AssetBadge, guild))

	s.Run("only the asset admin may revoke", func() {
		err := s.service.Revoke(s.ctx, stranger, domain.AssetReputation, guild)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.NoError(s.service.Authorize(s.ctx, domain.AssetReputation, guild))
	})

	s.Run("revoked minter gets PermissionRevoked", func() {
		s.Require().NoError(s.service.RevokeAll(s.ctx, registry, guild, domain.RewardAssets()...))
		for _, asset := range domain.RewardAssets() {
			err := s.service.Authorize(s.ctx, asset, guild)
			s.True(dErrors.HasCode(err, dErrors.CodePermissionRevoked), "asset %s", asset)
		}
	})

	s.Run("revoke is idempotent", func() {
		before := len(s.recorder.Events())
		s.Require().NoError(s.service.Revoke(s.ctx, registry, domain.AssetBadge, guild))
		s.Require().NoError(s.service.Revoke(s.ctx, registry, domain.AssetBadge, stranger))
		s.Len(s.recorder.Events(), before)
	})

	s.Run("regrant restores rights", func() {
		s.Require().NoError(s.service.Grant(s.ctx, registry, domain.AssetBadge, guild))
		s.NoError(s.service.Authorize(s.ctx, domain.AssetBadge, guild))
	})

	s.Run("lists grants with their status", func() {
		grants, err := s.service.ListGrants(s.ctx, guild)
		s.Require().NoError(err)
		s.Require().Len(grants, 2)
		s.False(grants[0].IsActive())
		s.True(grants[1].IsActive())
	})
}

func (s *PermissionServiceSuite) TestEventsOnlyAfterCommit() {
	err := s.runner.RunInTx(s.ctx, func(ctx context.Context) error {
		s.Require().NoError(s.service.Grant(ctx, registry, domain.AssetReputation, guild))
		return errors.New("abort")
	})
	s.Require().Error(err)

	s.Empty(s.recorder.Events())
	err = s.service.Authorize(s.ctx, domain.AssetReputation, guild)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "rolled back grant must not authorize")
}
