package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"guildledger/internal/permission/models"
	"guildledger/internal/platform/metrics"
	"guildledger/internal/platform/middleware"
	"guildledger/internal/transport/http/shared"
	"guildledger/pkg/domain"
)

type Service interface {
	ListGrants(ctx context.Context, principal domain.Address) ([]*models.MinterGrant, error)
}

// Handler exposes minter grants for audit. Grants are public state.
type Handler struct {
	logger      *slog.Logger
	permissions Service
	metrics     *metrics.Metrics
}

func New(permissions Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{logger: logger, permissions: permissions, metrics: metrics}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Get("/minters/{principal}", h.handleListGrants)
	})
}

type GrantsResponse struct {
	Principal domain.Address        `json:"principal"`
	Grants    []*models.MinterGrant `json:"grants"`
}

func (h *Handler) handleListGrants(w http.ResponseWriter, r *http.Request) {
	principal, err := shared.AddressParam(r, "principal")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	grants, err := h.permissions.ListGrants(r.Context(), principal)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if grants == nil {
		grants = []*models.MinterGrant{}
	}
	shared.WriteJSON(w, http.StatusOK, GrantsResponse{Principal: principal, Grants: grants})
}
