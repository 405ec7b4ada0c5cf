package guild

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"guildledger/internal/guild/models"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
)

type GuildStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *GuildStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestGuildStoreSuite(t *testing.T) {
	suite.Run(t, new(GuildStoreSuite))
}

func (s *GuildStoreSuite) newGuild(nonce uint64) *models.Guild {
	creator := domain.MustParseAddress("0x00000000000000000000000000000000000000ff")
	master := domain.MustParseAddress("0x000000000000000000000000000000000000000a")
	g, err := models.NewGuild(domain.DeriveAddress(creator, nonce), "Guild", "A guild", domain.CategoryOther, master, nonce, time.Now())
	s.Require().NoError(err)
	return g
}

func (s *GuildStoreSuite) TestCreateAndFind() {
	g := s.newGuild(0)
	s.Require().NoError(s.store.Create(s.ctx, g))

	found, err := s.store.FindByAddress(s.ctx, g.Address)
	s.Require().NoError(err)
	s.Equal(g.Name, found.Name)

	s.ErrorIs(s.store.Create(s.ctx, g), sentinel.ErrAlreadyUsed)

	_, err = s.store.FindByAddress(s.ctx, s.newGuild(9).Address)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *GuildStoreSuite) TestListKeepsCreationOrder() {
	var want []domain.Address
	for i := range uint64(4) {
		g := s.newGuild(i)
		s.Require().NoError(s.store.Create(s.ctx, g))
		want = append(want, g.Address)
	}
	removed, err := s.store.FindByAddress(s.ctx, want[1])
	s.Require().NoError(err)
	removed.ApplyRemoval(time.Now())
	s.Require().NoError(s.store.Update(s.ctx, removed))

	all, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 4)
	for i, g := range all {
		s.Equal(want[i], g.Address)
	}
	s.False(all[1].Active, "removed guilds stay listed")

	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(4), n)
}

func (s *GuildStoreSuite) TestRollback() {
	kept := s.newGuild(0)
	s.Require().NoError(s.store.Create(s.ctx, kept))

	err := tx.NewMemory().RunInTx(s.ctx, func(ctx context.Context) error {
		s.Require().NoError(s.store.Create(ctx, s.newGuild(1)))
		g, err := s.store.FindByAddress(ctx, kept.Address)
		s.Require().NoError(err)
		g.ApplyJoin()
		s.Require().NoError(s.store.Update(ctx, g))
		return errors.New("abort")
	})
	s.Require().Error(err)

	n, _ := s.store.Count(s.ctx)
	s.Equal(uint64(1), n)
	g, err := s.store.FindByAddress(s.ctx, kept.Address)
	s.Require().NoError(err)
	s.Zero(g.MemberCount)
}
