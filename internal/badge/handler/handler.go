package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"guildledger/internal/badge/models"
	"guildledger/internal/platform/metrics"
	"guildledger/internal/platform/middleware"
	"guildledger/internal/transport/http/shared"
	"guildledger/pkg/domain"
)

type Service interface {
	TokensOfOwner(ctx context.Context, owner domain.Address) ([]uint64, error)
	Get(ctx context.Context, tokenID uint64) (*models.Badge, error)
	TokenURI(ctx context.Context, tokenID uint64) (string, error)
	TotalSupply(ctx context.Context) (uint64, error)
}

// Handler serves public badge reads.
type Handler struct {
	logger  *slog.Logger
	badges  Service
	metrics *metrics.Metrics
}

func New(badges Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{logger: logger, badges: badges, metrics: metrics}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Get("/badges", h.handleTotalSupply)
		r.Get("/badges/owners/{holder}", h.handleTokensOfOwner)
		r.Get("/badges/{id}", h.handleGetBadge)
	})
}

type OwnerTokensResponse struct {
	Owner   domain.Address `json:"owner"`
	Tokens  []uint64       `json:"tokens"`
	Balance int            `json:"balance"`
}

type BadgeResponse struct {
	*models.Badge
	TokenURI string `json:"token_uri,omitempty"`
}

type SupplyResponse struct {
	TotalSupply uint64 `json:"total_supply"`
}

func (h *Handler) handleTokensOfOwner(w http.ResponseWriter, r *http.Request) {
	owner, err := shared.AddressParam(r, "holder")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	tokens, err := h.badges.TokensOfOwner(r.Context(), owner)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, OwnerTokensResponse{Owner: owner, Tokens: tokens, Balance: len(tokens)})
}

func (h *Handler) handleGetBadge(w http.ResponseWriter, r *http.Request) {
	id, err := shared.IDParam(r, "id")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	badge, err := h.badges.Get(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	uri, err := h.badges.TokenURI(r.Context(), id)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, BadgeResponse{Badge: badge, TokenURI: uri})
}

func (h *Handler) handleTotalSupply(w http.ResponseWriter, r *http.Request) {
	n, err := h.badges.TotalSupply(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, SupplyResponse{TotalSupply: n})
}
