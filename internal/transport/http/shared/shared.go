// Package shared holds request parsing and response helpers used by every
// context's HTTP handler.
package shared

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"guildledger/internal/submission/models"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	"guildledger/pkg/platform/httputil"
	"guildledger/pkg/requestcontext"
)

// Submitter queues a mutating operation and lets the caller wait on it.
type Submitter interface {
	Submit(ctx context.Context, caller domain.Address, kind models.Kind, op func(ctx context.Context) (any, error)) (*models.Receipt, error)
	Wait(ctx context.Context, hash string) (*models.Receipt, error)
}

func WriteError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	httputil.WriteJSON(w, status, v)
}

// Caller returns the authenticated principal set by the auth middleware.
func Caller(ctx context.Context, logger *slog.Logger) (domain.Address, error) {
	caller, ok := requestcontext.Caller(ctx)
	if !ok {
		// This should never happen if RequireAuth middleware is configured correctly
		logger.ErrorContext(ctx, "caller missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		return domain.Address{}, dErrors.New(dErrors.CodeInternal, "authentication context error")
	}
	return caller, nil
}

// DecodeJSON reads the request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}

// AddressParam parses the named chi URL parameter as an address.
func AddressParam(r *http.Request, name string) (domain.Address, error) {
	a, err := domain.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		return domain.Address{}, dErrors.New(dErrors.CodeBadRequest, "invalid "+name+" address")
	}
	return a, nil
}

// IDParam parses the named chi URL parameter as an unsigned integer id.
// Range checks belong to the owning service, which answers not_found.
func IDParam(r *http.Request, name string) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, "invalid "+name)
	}
	return id, nil
}

// WriteSubmission answers 202 Accepted with the pending receipt. With
// ?wait=true it first blocks up to maxWait for finalization and answers
// 200 with the final receipt; a receipt still pending at the deadline is
// returned with 202.
func WriteSubmission(w http.ResponseWriter, r *http.Request, submitter Submitter, receipt *models.Receipt, maxWait time.Duration) {
	if r.URL.Query().Get("wait") != "true" {
		WriteJSON(w, http.StatusAccepted, receipt)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), maxWait)
	defer cancel()
	final, err := submitter.Wait(ctx, receipt.Hash)
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, final)
	case dErrors.HasCode(err, dErrors.CodeTimeout) && final != nil:
		WriteJSON(w, http.StatusAccepted, final)
	default:
		WriteError(w, err)
	}
}
