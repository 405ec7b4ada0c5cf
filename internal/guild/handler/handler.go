package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"guildledger/internal/guild/models"
	"guildledger/internal/platform/metrics"
	"guildledger/internal/platform/middleware"
	submission "guildledger/internal/submission/models"
	"guildledger/internal/transport/http/shared"
	"guildledger/pkg/domain"
	authmw "guildledger/pkg/platform/middleware/auth"
	"guildledger/pkg/requestcontext"
)

// Service defines the guild instance operations the handler drives.
type Service interface {
	JoinGuild(ctx context.Context, guild, caller domain.Address) error
	IsMember(ctx context.Context, guild, principal domain.Address) (bool, error)
	GetMemberReputation(ctx context.Context, guild, member domain.Address) (uint64, error)
	CreateTask(ctx context.Context, guild, caller domain.Address, req *models.CreateTaskRequest) (uint64, error)
	CompleteTask(ctx context.Context, guild, caller domain.Address, taskID uint64) (*models.Completion, error)
	GetTask(ctx context.Context, guild domain.Address, taskID uint64) (*models.Task, error)
	ListTasks(ctx context.Context, guild domain.Address) ([]*models.Task, error)
}

// Submitter sequences mutating calls.
type Submitter interface {
	Submit(ctx context.Context, caller domain.Address, kind submission.Kind, op func(ctx context.Context) (any, error)) (*submission.Receipt, error)
	Wait(ctx context.Context, hash string) (*submission.Receipt, error)
}

// Handler handles membership and task board endpoints of a guild.
type Handler struct {
	logger       *slog.Logger
	guilds       Service
	submitter    Submitter
	metrics      *metrics.Metrics
	jwtValidator authmw.JWTValidator
	waitTimeout  time.Duration
}

func New(
	guilds Service,
	submitter Submitter,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator authmw.JWTValidator,
	waitTimeout time.Duration) *Handler {
	return &Handler{
		logger:       logger,
		guilds:       guilds,
		submitter:    submitter,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		waitTimeout:  waitTimeout,
	}
}

// Register registers the guild routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Use(authmw.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/guilds/{guild}/members", h.handleJoinGuild)
		r.Get("/guilds/{guild}/members/{member}", h.handleGetMember)
		r.Post("/guilds/{guild}/tasks", h.handleCreateTask)
		r.Get("/guilds/{guild}/tasks", h.handleListTasks)
		r.Get("/guilds/{guild}/tasks/{id}", h.handleGetTask)
		r.Post("/guilds/{guild}/tasks/{id}/complete", h.handleCompleteTask)
	})
}

// MemberResponse is a principal's standing within one guild.
type MemberResponse struct {
	Guild      domain.Address `json:"guild"`
	Member     domain.Address `json:"member"`
	Joined     bool           `json:"joined"`
	Reputation uint64         `json:"reputation"`
}

type TaskListResponse struct {
	Tasks []*models.Task `json:"tasks"`
	Total int            `json:"total"`
}

// TaskCreatedResponse is the confirmed result of a task creation.
type TaskCreatedResponse struct {
	Guild  domain.Address `json:"guild"`
	TaskID uint64         `json:"task_id"`
}

func (h *Handler) handleJoinGuild(w http.ResponseWriter, r *http.Request) {
	caller, guild, ok := h.callerAndGuild(w, r)
	if !ok {
		return
	}
	h.submit(w, r, caller, submission.KindJoinGuild, func(ctx context.Context) (any, error) {
		if err := h.guilds.JoinGuild(ctx, guild, caller); err != nil {
			return nil, err
		}
		return MemberResponse{Guild: guild, Member: caller, Joined: true}, nil
	})
}

func (h *Handler) handleGetMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	guild, err := shared.AddressParam(r, "guild")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	member, err := shared.AddressParam(r, "member")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	joined, err := h.guilds.IsMember(ctx, guild, member)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	points, err := h.guilds.GetMemberReputation(ctx, guild, member)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, MemberResponse{Guild: guild, Member: member, Joined: joined, Reputation: points})
}

func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	caller, guild, ok := h.callerAndGuild(w, r)
	if !ok {
		return
	}
	var req models.CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "invalid create task request",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		shared.WriteError(w, err)
		return
	}

	h.submit(w, r, caller, submission.KindCreateTask, func(ctx context.Context) (any, error) {
		id, err := h.guilds.CreateTask(ctx, guild, caller, &req)
		if err != nil {
			return nil, err
		}
		return TaskCreatedResponse{Guild: guild, TaskID: id}, nil
	})
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	guild, err := shared.AddressParam(r, "guild")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	tasks, err := h.guilds.ListTasks(r.Context(), guild)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, TaskListResponse{Tasks: tasks, Total: len(tasks)})
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	guild, err := shared.AddressParam(r, "guild")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	id, err := shared.IDParam(r, "id")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	task, err := h.guilds.GetTask(r.Context(), guild, id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, task)
}

func (h *Handler) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	caller, guild, ok := h.callerAndGuild(w, r)
	if !ok {
		return
	}
	id, err := shared.IDParam(r, "id")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	h.submit(w, r, caller, submission.KindCompleteTask, func(ctx context.Context) (any, error) {
		return h.guilds.CompleteTask(ctx, guild, caller, id)
	})
}

func (h *Handler) callerAndGuild(w http.ResponseWriter, r *http.Request) (domain.Address, domain.Address, bool) {
	caller, err := shared.Caller(r.Context(), h.logger)
	if err != nil {
		shared.WriteError(w, err)
		return domain.Address{}, domain.Address{}, false
	}
	guild, err := shared.AddressParam(r, "guild")
	if err != nil {
		shared.WriteError(w, err)
		return domain.Address{}, domain.Address{}, false
	}
	return caller, guild, true
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, caller domain.Address, kind submission.Kind, op func(ctx context.Context) (any, error)) {
	receipt, err := h.submitter.Submit(r.Context(), caller, kind, op)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to submit guild operation",
			"kind", string(kind),
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteSubmission(w, r, h.submitter, receipt, h.waitTimeout)
}
