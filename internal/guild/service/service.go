// Package service implements guild instances: membership, the master-only
// task board, and reward payout on task completion.
//
// Every mutating call runs in one transaction. CompleteTask mints rewards
// through the reputation ledger and badge issuer inside that transaction, so
// a rejected mint leaves the task open and no balance changed.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"guildledger/internal/events"
	"guildledger/internal/guild/metrics"
	"guildledger/internal/guild/models"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
	"guildledger/pkg/requestcontext"
)

var tracer = otel.Tracer("guildledger/internal/guild")

type GuildStore interface {
	FindByAddress(ctx context.Context, address domain.Address) (*models.Guild, error)
	Update(ctx context.Context, g *models.Guild) error
}

type MemberStore interface {
	Create(ctx context.Context, m *models.Membership) error
	Find(ctx context.Context, guild, member domain.Address) (*models.Membership, error)
	Update(ctx context.Context, m *models.Membership) error
}

type TaskStore interface {
	Create(ctx context.Context, t *models.Task) error
	Find(ctx context.Context, guild domain.Address, id uint64) (*models.Task, error)
	Update(ctx context.Context, t *models.Task) error
	Count(ctx context.Context, guild domain.Address) (uint64, error)
	List(ctx context.Context, guild domain.Address) ([]*models.Task, error)
}

// ReputationMinter is the reputation ledger as seen by a guild.
type ReputationMinter interface {
	Mint(ctx context.Context, minter, to domain.Address, amount uint64) error
	Authorize(ctx context.Context, minter domain.Address) error
}

// BadgeMinter is the badge issuer as seen by a guild.
type BadgeMinter interface {
	Mint(ctx context.Context, minter, to domain.Address) (uint64, error)
}

type Service struct {
	guilds     GuildStore
	members    MemberStore
	tasks      TaskStore
	reputation ReputationMinter
	badges     BadgeMinter
	tx         tx.Runner
	logger     *slog.Logger
	publisher  events.Publisher
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(guilds GuildStore, members MemberStore, tasks TaskStore, reputation ReputationMinter, badges BadgeMinter, runner tx.Runner, opts ...Option) (*Service, error) {
	if guilds == nil || members == nil || tasks == nil {
		return nil, errors.New("guild, member and task stores are required")
	}
	if reputation == nil || badges == nil {
		return nil, errors.New("reputation and badge minters are required")
	}
	if runner == nil {
		return nil, errors.New("transaction runner is required")
	}
	s := &Service{
		guilds:     guilds,
		members:    members,
		tasks:      tasks,
		reputation: reputation,
		badges:     badges,
		tx:         runner,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// JoinGuild makes caller a member. A second join by the same principal
// fails with AlreadyMember and leaves the member count unchanged.
func (s *Service) JoinGuild(ctx context.Context, guild, caller domain.Address) error {
	ctx, span := tracer.Start(ctx, "guild.JoinGuild", trace.WithAttributes(
		attribute.String("guild", guild.String()),
	))
	defer span.End()

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		g, err := s.findGuild(ctx, guild)
		if err != nil {
			return err
		}
		if err := g.CanAdmitMembers(); err != nil {
			return err
		}

		err = s.members.Create(ctx, &models.Membership{
			Guild:    guild,
			Member:   caller,
			JoinedAt: requestcontext.Now(ctx),
		})
		if err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeAlreadyMember, "caller is already a member")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store membership")
		}

		g.ApplyJoin()
		if err := s.guilds.Update(ctx, g); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update member count")
		}

		s.afterCommit(ctx, func(ctx context.Context) {
			if s.metrics != nil {
				s.metrics.IncrementMembersJoined()
			}
			s.publish(ctx, events.MemberJoined, func(e *events.Event) {
				e.Guild = events.Addr(guild)
				e.Actor = events.Addr(caller)
			})
		})
		return nil
	})
	recordSpanError(span, err)
	return err
}

func (s *Service) IsMember(ctx context.Context, guild, principal domain.Address) (bool, error) {
	var joined bool
	err := s.tx.View(ctx, func(ctx context.Context) error {
		if _, err := s.findGuild(ctx, guild); err != nil {
			return err
		}
		_, err := s.members.Find(ctx, guild, principal)
		switch {
		case err == nil:
			joined = true
			return nil
		case errors.Is(err, sentinel.ErrNotFound):
			return nil
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
		}
	})
	return joined, err
}

// CreateTask adds a task to the guild's board. Only the master of an active
// guild may author tasks. Task ids are sequential from 1 per guild.
func (s *Service) CreateTask(ctx context.Context, guild, caller domain.Address, req *models.CreateTaskRequest) (uint64, error) {
	ctx, span := tracer.Start(ctx, "guild.CreateTask", trace.WithAttributes(
		attribute.String("guild", guild.String()),
	))
	defer span.End()

	req.Normalize()
	if err := req.Validate(); err != nil {
		recordSpanError(span, err)
		return 0, err
	}

	var taskID uint64
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		g, err := s.findGuild(ctx, guild)
		if err != nil {
			return err
		}
		if err := g.CanAuthorTasks(caller); err != nil {
			return err
		}

		count, err := s.tasks.Count(ctx, guild)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count tasks")
		}
		task, err := models.NewTask(guild, count+1, req.Title, req.Description,
			uint64(req.RewardPoints), req.RewardNFT, caller, requestcontext.Now(ctx))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid task")
		}
		if err := s.tasks.Create(ctx, task); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store task")
		}
		taskID = task.ID

		s.afterCommit(ctx, func(ctx context.Context) {
			if s.metrics != nil {
				s.metrics.IncrementTasksCreated()
			}
			s.publish(ctx, events.TaskCreated, func(e *events.Event) {
				e.Guild = events.Addr(guild)
				e.Actor = events.Addr(caller)
				e.TaskID = task.ID
				e.Amount = task.RewardPoints
			})
		})
		return nil
	})
	recordSpanError(span, err)
	if err != nil {
		return 0, err
	}
	return taskID, nil
}

// CompleteTask closes taskID for the whole guild and pays its reward to
// caller. The first successful completion wins; every later call fails with
// AlreadyCompleted. Mint rights are re-checked on every call, so a removed
// guild's completions fail with PermissionRevoked.
func (s *Service) CompleteTask(ctx context.Context, guild, caller domain.Address, taskID uint64) (*models.Completion, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "guild.CompleteTask", trace.WithAttributes(
		attribute.String("guild", guild.String()),
		attribute.Int64("task_id", int64(taskID)),
	))
	defer span.End()

	var result *models.Completion
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.findGuild(ctx, guild); err != nil {
			return err
		}
		membership, err := s.members.Find(ctx, guild, caller)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotAMember, "caller is not a member of this guild")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
		}
		task, err := s.findTask(ctx, guild, taskID)
		if err != nil {
			return err
		}
		if err := task.CanComplete(); err != nil {
			return err
		}

		// The guild mints under its own address, which holds its minter grants.
		if task.RewardPoints > 0 {
			if err := s.reputation.Mint(ctx, guild, caller, task.RewardPoints); err != nil {
				return err
			}
		} else if err := s.reputation.Authorize(ctx, guild); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		result = &models.Completion{
			Guild:       guild,
			TaskID:      taskID,
			Member:      caller,
			Reputation:  task.RewardPoints,
			CompletedAt: now,
		}
		if task.RewardNFT {
			tokenID, err := s.badges.Mint(ctx, guild, caller)
			if err != nil {
				return err
			}
			result.BadgeToken = &tokenID
		}

		task.ApplyCompletion(caller, now)
		if err := s.tasks.Update(ctx, task); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update task")
		}
		membership.ApplyReward(task.RewardPoints)
		if err := s.members.Update(ctx, membership); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update member reputation")
		}

		s.afterCommit(ctx, func(ctx context.Context) {
			if s.metrics != nil {
				s.metrics.IncrementTasksCompleted()
			}
			s.publish(ctx, events.TaskCompleted, func(e *events.Event) {
				e.Guild = events.Addr(guild)
				e.Actor = events.Addr(caller)
				e.TaskID = taskID
				e.Amount = task.RewardPoints
				if result.BadgeToken != nil {
					e.TokenID = *result.BadgeToken
				}
			})
		})
		return nil
	})
	if s.metrics != nil {
		s.metrics.ObserveCompleteTask(start)
	}
	recordSpanError(span, err)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementCompletionRejected(string(dErrors.CodeOf(err)))
		}
		s.logWarn(ctx, "task completion rejected",
			"guild", guild.String(),
			"task_id", taskID,
			"caller", caller.String(),
			"code", string(dErrors.CodeOf(err)),
		)
		return nil, err
	}
	return result, nil
}

func (s *Service) GetTask(ctx context.Context, guild domain.Address, taskID uint64) (*models.Task, error) {
	var task *models.Task
	err := s.tx.View(ctx, func(ctx context.Context) error {
		if _, err := s.findGuild(ctx, guild); err != nil {
			return err
		}
		var err error
		task, err = s.findTask(ctx, guild, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *Service) GetTaskCount(ctx context.Context, guild domain.Address) (uint64, error) {
	var n uint64
	err := s.tx.View(ctx, func(ctx context.Context) error {
		if _, err := s.findGuild(ctx, guild); err != nil {
			return err
		}
		var err error
		n, err = s.tasks.Count(ctx, guild)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count tasks")
		}
		return nil
	})
	return n, err
}

// ListTasks returns the guild's whole board in id order.
func (s *Service) ListTasks(ctx context.Context, guild domain.Address) ([]*models.Task, error) {
	var list []*models.Task
	err := s.tx.View(ctx, func(ctx context.Context) error {
		if _, err := s.findGuild(ctx, guild); err != nil {
			return err
		}
		var err error
		list, err = s.tasks.List(ctx, guild)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tasks")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

// GetMemberReputation returns the reputation member earned in this guild;
// zero for non-members.
func (s *Service) GetMemberReputation(ctx context.Context, guild, member domain.Address) (uint64, error) {
	var points uint64
	err := s.tx.View(ctx, func(ctx context.Context) error {
		if _, err := s.findGuild(ctx, guild); err != nil {
			return err
		}
		m, err := s.members.Find(ctx, guild, member)
		switch {
		case err == nil:
			points = m.Reputation
			return nil
		case errors.Is(err, sentinel.ErrNotFound):
			return nil
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
		}
	})
	return points, err
}

func (s *Service) findGuild(ctx context.Context, address domain.Address) (*models.Guild, error) {
	g, err := s.guilds.FindByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "guild not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load guild")
	}
	return g, nil
}

func (s *Service) findTask(ctx context.Context, guild domain.Address, id uint64) (*models.Task, error) {
	task, err := s.tasks.Find(ctx, guild, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "task not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load task")
	}
	return task, nil
}

func (s *Service) afterCommit(ctx context.Context, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	tx.AfterCommit(ctx, func() { fn(detached) })
}

func (s *Service) publish(ctx context.Context, t events.Type, fill func(*events.Event)) {
	if s.publisher == nil {
		return
	}
	e := events.New(ctx, t)
	fill(&e)
	s.publisher.Publish(ctx, e)
}

func (s *Service) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.WarnContext(ctx, msg, append(args, "request_id", requestcontext.RequestID(ctx))...)
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
}
