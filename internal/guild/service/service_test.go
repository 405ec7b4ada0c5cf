package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	badgeService "guildledger/internal/badge/service"
	badgeStore "guildledger/internal/badge/store"
	"guildledger/internal/events"
	"guildledger/internal/guild/metrics"
	"guildledger/internal/guild/models"
	guildStore "guildledger/internal/guild/store/guild"
	memberStore "guildledger/internal/guild/store/member"
	taskStore "guildledger/internal/guild/store/task"
	permissionService "guildledger/internal/permission/service"
	permissionStore "guildledger/internal/permission/store"
	reputationService "guildledger/internal/reputation/service"
	reputationStore "guildledger/internal/reputation/store"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	"guildledger/pkg/platform/tx"
)

var (
	owner    = domain.MustParseAddress("0x000000000000000000000000000000000000000f")
	registry = domain.MustParseAddress("0x00000000000000000000000000000000000000aa")
	master   = domain.MustParseAddress("0x000000000000000000000000000000000000000a")
	alice    = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob      = domain.MustParseAddress("0x00000000000000000000000000000000000000b0")
)

// failingBadges rejects every mint after reputation has already been minted,
// to prove the whole completion rolls back.
type failingBadges struct{}

func (failingBadges) Mint(context.Context, domain.Address, domain.Address) (uint64, error) {
	return 0, dErrors.New(dErrors.CodeInternal, "badge store unavailable")
}

type GuildServiceSuite struct {
	suite.Suite
	ctx         context.Context
	runner      *tx.Memory
	guilds      *guildStore.InMemory
	permissions *permissionService.Service
	reputation  *reputationService.Service
	badges      *badgeService.Service
	recorder    *events.Recorder
	metrics     *metrics.Metrics
	service     *Service
	guild       domain.Address
}

func TestGuildServiceSuite(t *testing.T) {
	suite.Run(t, new(GuildServiceSuite))
}

func (s *GuildServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.runner = tx.NewMemory()
	s.recorder = &events.Recorder{}
	s.metrics = metrics.New(prometheus.NewRegistry())

	var err error
	s.permissions, err = permissionService.New(permissionStore.NewInMemory(), s.runner, owner)
	s.Require().NoError(err)
	s.reputation, err = reputationService.New(reputationStore.NewInMemory(), s.permissions, s.runner)
	s.Require().NoError(err)
	s.badges, err = badgeService.New(badgeStore.NewInMemory(), s.permissions, s.runner)
	s.Require().NoError(err)

	s.guilds = guildStore.NewInMemory()
	s.service = s.newService(s.badges)

	s.guild = domain.DeriveAddress(registry, 0)
	g, err := models.NewGuild(s.guild, "Foo", "Bar", domain.CategoryDeFi, master, 0, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.guilds.Create(s.ctx, g))

	for _, asset := range domain.RewardAssets() {
		s.Require().NoError(s.permissions.SetAdmin(s.ctx, owner, asset, registry))
		s.Require().NoError(s.permissions.Grant(s.ctx, registry, asset, s.guild))
	}
}

func (s *GuildServiceSuite) newService(badges BadgeMinter) *Service {
	svc, err := New(s.guilds, memberStore.NewInMemory(), taskStore.NewInMemory(),
		s.reputation, badges, s.runner,
		WithPublisher(s.recorder),
		WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	return svc
}

func (s *GuildServiceSuite) createTask(points int64, nft bool) uint64 {
	id, err := s.service.CreateTask(s.ctx, s.guild, master, &models.CreateTaskRequest{
		Title:        "Audit",
		Description:  "Review the vault contract",
		RewardPoints: points,
		RewardNFT:    nft,
	})
	s.Require().NoError(err)
	return id
}

func (s *GuildServiceSuite) memberCount() uint64 {
	g, err := s.guilds.FindByAddress(s.ctx, s.guild)
	s.Require().NoError(err)
	return g.MemberCount
}

func (s *GuildServiceSuite) removeGuild() {
	g, err := s.guilds.FindByAddress(s.ctx, s.guild)
	s.Require().NoError(err)
	g.ApplyRemoval(time.Now())
	s.Require().NoError(s.guilds.Update(s.ctx, g))
	s.Require().NoError(s.permissions.RevokeAll(s.ctx, registry, s.guild, domain.RewardAssets()...))
}

func (s *GuildServiceSuite) TestJoinGuild() {
	s.Run("first join increments member count", func() {
		s.Require().NoError(s.service.JoinGuild(s.ctx, s.guild, alice))
		s.Equal(uint64(1), s.memberCount())

		joined, err := s.service.IsMember(s.ctx, s.guild, alice)
		s.Require().NoError(err)
		s.True(joined)
	})

	s.Run("second join fails with AlreadyMember and keeps the count", func() {
		err := s.service.JoinGuild(s.ctx, s.guild, alice)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyMember))
		s.Equal(uint64(1), s.memberCount())
	})

	s.Run("unknown guild is not found", func() {
		err := s.service.JoinGuild(s.ctx, domain.DeriveAddress(registry, 99), bob)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("removed guild rejects joins", func() {
		s.removeGuild()
		err := s.service.JoinGuild(s.ctx, s.guild, bob)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(uint64(1), s.memberCount())
	})
}

func (s *GuildServiceSuite) TestCreateTaskOnlyByMasterOfActiveGuild() {
	s.Require().NoError(s.service.JoinGuild(s.ctx, s.guild, alice))
	req := func() *models.CreateTaskRequest {
		return &models.CreateTaskRequest{Title: "t", Description: "d", RewardPoints: 1}
	}

	for _, caller := range []domain.Address{alice, bob, registry, owner} {
		_, err := s.service.CreateTask(s.ctx, s.guild, caller, req())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "caller %s", caller)
	}

	first, err := s.service.CreateTask(s.ctx, s.guild, master, req())
	s.Require().NoError(err)
	second, err := s.service.CreateTask(s.ctx, s.guild, master, req())
	s.Require().NoError(err)
	s.Equal(uint64(1), first)
	s.Equal(uint64(2), second)

	_, err = s.service.CreateTask(s.ctx, s.guild, master, &models.CreateTaskRequest{Title: "t", Description: "d", RewardPoints: -5})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	s.removeGuild()
	_, err = s.service.CreateTask(s.ctx, s.guild, master, req())
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized), "removed guild rejects the master too")

	count, err := s.service.GetTaskCount(s.ctx, s.guild)
	s.Require().NoError(err)
	s.Equal(uint64(2), count)
}

func (s *GuildServiceSuite) TestCompleteTaskScenario() {
	s.Require().NoError(s.service.JoinGuild(s.ctx, s.guild, alice))
	s.Require().NoError(s.service.JoinGuild(s.ctx, s.guild, bob))
	taskID := s.createTask(100, true)

	result, err := s.service.CompleteTask(s.ctx, s.guild, alice, taskID)
	s.Require().NoError(err)
	s.Equal(uint64(100), result.Reputation)
	s.Require().NotNil(result.BadgeToken)

	balance, err := s.reputation.BalanceOf(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal(uint64(100), balance)

	tokens, err := s.badges.TokensOfOwner(s.ctx, alice)
	s.Require().NoError(err)
	s.Equal([]uint64{*result.BadgeToken}, tokens)

	task, err := s.service.GetTask(s.ctx, s.guild, taskID)
	s.Require().NoError(err)
	s.True(task.Completed)
	s.Equal(alice, *task.CompletedBy)

	points, err := s.service.GetMemberReputation(s.ctx, s.guild, alice)
	s.Require().NoError(err)
	s.Equal(uint64(100), points)

	// Completion is one-shot for the whole guild.
	for _, caller := range []domain.Address{alice, bob} {
		_, err := s.service.CompleteTask(s.ctx, s.guild, caller, taskID)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyCompleted))
	}
	balance, _ = s.reputation.BalanceOf(s.ctx, alice)
	s.Equal(uint64(100), balance)
	bobBalance, _ := s.reputation.BalanceOf(s.ctx, bob)
	s.Zero(bobBalance)
	supply, _ := s.badges.TotalSupply(s.ctx)
	s.Equal(uint64(1), supply)

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.TasksCompleted))
	s.Equal(float64(2), testutil.ToFloat64(s.metrics.CompletionsRejected.WithLabelValues("already_completed")))
	s.Contains(s.recorder.Types(), events.TaskCompleted)
}

func (s *GuildServiceSuite) TestCompleteTaskRejections() {
	taskID := s.createTask(10, false)

	s.Run("non-member", func() {
		_, err := s.service.CompleteTask(s.ctx, s.guild, alice, taskID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotAMember))
	})

	s.Require().NoError(s.service.JoinGuild(s.ctx, s.guild, alice))

	s.Run("task out of range", func() {
		for _, id := range []uint64{0, taskID + 1} {
			_, err := s.service.CompleteTask(s.ctx, s.guild, alice, id)
			s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		}
	})

	s.Run("removed guild cannot mint", func() {
		s.removeGuild()
		_, err := s.service.CompleteTask(s.ctx, s.guild, alice, taskID)
		s.True(dErrors.HasCode(err, dErrors.CodePermissionRevoked))

		task, err := s.service.GetTask(s.ctx, s.guild, taskID)
		s.Require().NoError(err)
		s.False(task.Completed)
	})
}

func (s *GuildServiceSuite) TestZeroRewardTaskStillChecksMintRights() {
	s.Require().NoError(s.service.JoinGuild(s.ctx, s.guild, alice))
	free := s.createTask(0, false)
	other := s.createTask(0, false)

	_, err := s.service.CompleteTask(s.ctx, s.guild, alice, free)
	s.Require().NoError(err)
	balance, _ := s.reputation.BalanceOf(s.ctx, alice)
	s.Zero(balance)

	s.removeGuild()
	_, err = s.service.CompleteTask(s.ctx, s.guild, alice, other)
	s.True(dErrors.HasCode(err, dErrors.CodePermissionRevoked))
}

func (s *GuildServiceSuite) TestFailedBadgeMintRollsBackEverything() {
	svc := s.newService(failingBadges{})
	s.Require().NoError(svc.JoinGuild(s.ctx, s.guild, alice))
	taskID, err := svc.CreateTask(s.ctx, s.guild, master, &models.CreateTaskRequest{
		Title: "Ship", Description: "Ship the release", RewardPoints: 40, RewardNFT: true,
	})
	s.Require().NoError(err)
	before := len(s.recorder.Events())

	_, err = svc.CompleteTask(s.ctx, s.guild, alice, taskID)
	s.Require().Error(err)

	task, err := svc.GetTask(s.ctx, s.guild, taskID)
	s.Require().NoError(err)
	s.False(task.Completed)

	balance, _ := s.reputation.BalanceOf(s.ctx, alice)
	s.Zero(balance, "reputation minted before the badge failure must roll back")
	points, _ := svc.GetMemberReputation(s.ctx, s.guild, alice)
	s.Zero(points)
	s.Len(s.recorder.Events(), before)
}

func (s *GuildServiceSuite) TestReads() {
	s.Run("unknown guild", func() {
		unknown := domain.DeriveAddress(registry, 42)
		_, err := s.service.GetTaskCount(s.ctx, unknown)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = s.service.IsMember(s.ctx, unknown, alice)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non-member has zero guild reputation", func() {
		points, err := s.service.GetMemberReputation(s.ctx, s.guild, bob)
		s.Require().NoError(err)
		s.Zero(points)
	})

	s.Run("lists the board in id order", func() {
		s.createTask(1, false)
		s.createTask(2, true)
		tasks, err := s.service.ListTasks(s.ctx, s.guild)
		s.Require().NoError(err)
		s.Require().Len(tasks, 2)
		s.Equal(uint64(1), tasks[0].ID)
		s.True(tasks[1].RewardNFT)
	})

	s.Run("task zero is not found", func() {
		_, err := s.service.GetTask(s.ctx, s.guild, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *GuildServiceSuite) TestConcurrentCompletionsPayOnce() {
	members := []domain.Address{alice, bob, master}
	for _, m := range members {
		s.Require().NoError(s.service.JoinGuild(s.ctx, s.guild, m))
	}
	taskID := s.createTask(25, false)

	errs := make(chan error, len(members))
	for _, m := range members {
		go func() {
			_, err := s.service.CompleteTask(s.ctx, s.guild, m, taskID)
			errs <- err
		}()
	}

	var succeeded int
	for range members {
		err := <-errs
		if err == nil {
			succeeded++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyCompleted), "unexpected error %v", err)
	}
	s.Equal(1, succeeded)

	supply, err := s.reputation.TotalSupply(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(25), supply)
}
