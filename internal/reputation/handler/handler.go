package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"guildledger/internal/platform/metrics"
	"guildledger/internal/platform/middleware"
	"guildledger/internal/transport/http/shared"
	"guildledger/pkg/domain"
)

type Service interface {
	BalanceOf(ctx context.Context, holder domain.Address) (uint64, error)
	TotalSupply(ctx context.Context) (uint64, error)
}

// Handler serves public reputation balance reads.
type Handler struct {
	logger     *slog.Logger
	reputation Service
	metrics    *metrics.Metrics
}

func New(reputation Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{logger: logger, reputation: reputation, metrics: metrics}
}

// Register registers the reputation routes. Balances are public; no
// authentication is required.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Get("/reputation", h.handleTotalSupply)
		r.Get("/reputation/{holder}", h.handleBalance)
	})
}

type BalanceResponse struct {
	Holder  domain.Address `json:"holder"`
	Balance uint64         `json:"balance"`
}

type SupplyResponse struct {
	TotalSupply uint64 `json:"total_supply"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	holder, err := shared.AddressParam(r, "holder")
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	bal, err := h.reputation.BalanceOf(r.Context(), holder)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, BalanceResponse{Holder: holder, Balance: bal})
}

func (h *Handler) handleTotalSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := h.reputation.TotalSupply(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, SupplyResponse{TotalSupply: supply})
}
