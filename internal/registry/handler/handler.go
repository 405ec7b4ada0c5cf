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

// Service defines the registry operations the handler drives.
type Service interface {
	CreateGuild(ctx context.Context, caller domain.Address, req *models.CreateGuildRequest) (*models.Guild, error)
	RemoveGuild(ctx context.Context, caller, guild domain.Address) error
	ListGuilds(ctx context.Context) ([]*models.Guild, error)
	GetGuildInfo(ctx context.Context, guild domain.Address) (*models.Guild, error)
}

// Submitter sequences mutating calls.
type Submitter interface {
	Submit(ctx context.Context, caller domain.Address, kind submission.Kind, op func(ctx context.Context) (any, error)) (*submission.Receipt, error)
	Wait(ctx context.Context, hash string) (*submission.Receipt, error)
}

// Handler handles guild registry endpoints.
type Handler struct {
	logger       *slog.Logger
	registry     Service
	submitter    Submitter
	metrics      *metrics.Metrics
	jwtValidator authmw.JWTValidator
	waitTimeout  time.Duration
}

// New creates a new registry Handler.
func New(
	registry Service,
	submitter Submitter,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator authmw.JWTValidator,
	waitTimeout time.Duration) *Handler {
	return &Handler{
		logger:       logger,
		registry:     registry,
		submitter:    submitter,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		waitTimeout:  waitTimeout,
	}
}

// Register registers the registry routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Use(authmw.RequireAuth(h.jwtValidator, h.logger))
		r.Post("/guilds", h.handleCreateGuild)
		r.Get("/guilds", h.handleListGuilds)
		r.Get("/guilds/{guild}", h.handleGetGuild)
		r.Delete("/guilds/{guild}", h.handleRemoveGuild)
	})
}

// GuildListResponse is the guild enumeration in creation order.
type GuildListResponse struct {
	Guilds []*models.Guild `json:"guilds"`
	Total  int             `json:"total"`
}

func (h *Handler) handleCreateGuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, err := shared.Caller(ctx, h.logger)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req models.CreateGuildRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid create guild request",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	// Reject malformed input before it takes a place in the sequence.
	req.Normalize()
	if err := req.Validate(); err != nil {
		shared.WriteError(w, err)
		return
	}
	if _, err := domain.ParseCategory(req.Category); err != nil {
		shared.WriteError(w, err)
		return
	}

	receipt, err := h.submitter.Submit(ctx, caller, submission.KindCreateGuild, func(ctx context.Context) (any, error) {
		return h.registry.CreateGuild(ctx, caller, &req)
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to submit guild creation",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteSubmission(w, r, h.submitter, receipt, h.waitTimeout)
}

func (h *Handler) handleListGuilds(w http.ResponseWriter, r *http.Request) {
	guilds, err := h.registry.ListGuilds(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	// Inactive guilds stay listed unless the caller filters them out.
	if r.URL.Query().Get("active") == "true" {
		active := make([]*models.Guild, 0, len(guilds))
		for _, g := range guilds {
			if g.Active {
				active = append(active, g)
			}
		}
		guilds = active
	}
	shared.WriteJSON(w, http.StatusOK, GuildListResponse{Guilds: guilds, Total: len(guilds)})
}

func (h *Handler) handleGetGuild(w http.ResponseWriter, r *http.Request) {
	guild, err := shared.AddressParam(r, "guild")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	info, err := h.registry.GetGuildInfo(r.Context(), guild)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) handleRemoveGuild(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := shared.Caller(ctx, h.logger)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	guild, err := shared.AddressParam(r, "guild")
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	receipt, err := h.submitter.Submit(ctx, caller, submission.KindRemoveGuild, func(ctx context.Context) (any, error) {
		if err := h.registry.RemoveGuild(ctx, caller, guild); err != nil {
			return nil, err
		}
		return map[string]string{"guild": guild.String()}, nil
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to submit guild removal",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteSubmission(w, r, h.submitter, receipt, h.waitTimeout)
}
