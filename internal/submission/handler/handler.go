package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"guildledger/internal/platform/metrics"
	"guildledger/internal/platform/middleware"
	"guildledger/internal/submission/models"
	"guildledger/internal/transport/http/shared"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	authmw "guildledger/pkg/platform/middleware/auth"
	"guildledger/pkg/requestcontext"
)

// Service defines the receipt operations exposed over HTTP.
type Service interface {
	Get(ctx context.Context, hash string) (*models.Receipt, error)
	Wait(ctx context.Context, hash string) (*models.Receipt, error)
	Cancel(ctx context.Context, caller domain.Address, hash string) (*models.Receipt, error)
}

// Handler serves transaction receipts.
type Handler struct {
	logger       *slog.Logger
	receipts     Service
	metrics      *metrics.Metrics
	jwtValidator authmw.JWTValidator
	waitTimeout  time.Duration
}

func New(
	receipts Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator authmw.JWTValidator,
	waitTimeout time.Duration) *Handler {
	return &Handler{
		logger:       logger,
		receipts:     receipts,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		waitTimeout:  waitTimeout,
	}
}

// Register registers the receipt routes. Reads are public so clients can
// poll; cancellation needs the submitter's token.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.Get("/transactions/{hash}", h.handleGetTransaction)
		r.With(authmw.RequireAuth(h.jwtValidator, h.logger)).
			Delete("/transactions/{hash}", h.handleCancelTransaction)
	})
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	hash, err := hashParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), h.waitTimeout)
		defer cancel()
		receipt, err := h.receipts.Wait(ctx, hash)
		switch {
		case err == nil:
			shared.WriteJSON(w, http.StatusOK, receipt)
		case dErrors.HasCode(err, dErrors.CodeTimeout) && receipt != nil:
			shared.WriteJSON(w, http.StatusAccepted, receipt)
		default:
			shared.WriteError(w, err)
		}
		return
	}

	receipt, err := h.receipts.Get(r.Context(), hash)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if !receipt.Status.IsFinal() {
		status = http.StatusAccepted
	}
	shared.WriteJSON(w, status, receipt)
}

func (h *Handler) handleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, err := shared.Caller(ctx, h.logger)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	hash, err := hashParam(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	receipt, err := h.receipts.Cancel(ctx, caller, hash)
	if err != nil {
		h.logger.WarnContext(ctx, "transaction cancel rejected",
			"tx_hash", hash,
			"code", string(dErrors.CodeOf(err)),
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, receipt)
}

func hashParam(r *http.Request) (string, error) {
	hash := strings.ToLower(chi.URLParam(r, "hash"))
	if len(hash) != 66 || !strings.HasPrefix(hash, "0x") {
		return "", dErrors.New(dErrors.CodeBadRequest, "invalid transaction hash")
	}
	return hash, nil
}
