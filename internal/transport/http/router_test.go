package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"guildledger/internal/platform/middleware"
	ratelimit "guildledger/internal/ratelimit/middleware"
	"guildledger/internal/ratelimit/store/bucket"
	"guildledger/pkg/requestcontext"
	"guildledger/pkg/testutil"
)

type echoHandler struct{}

func (echoHandler) Register(r chi.Router) {
	r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(requestcontext.ClientName(r.Context())))
	})
	r.Post("/echo", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
}

func TestNewRouter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()

	t.Run("healthy", func(t *testing.T) {
		r := NewRouter(logger, reg, map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		}, nil)
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "status", "ok")
	})

	t.Run("degraded dependency", func(t *testing.T) {
		r := NewRouter(logger, reg, map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		}, nil)
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/health"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		r := NewRouter(logger, reg, nil, nil)
		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/metrics"))
		testutil.AssertStatusOK(t, rr)
	})

	t.Run("handlers see shared middleware", func(t *testing.T) {
		r := NewRouter(logger, reg, nil, nil, echoHandler{})
		req := testutil.NewRequest(t, http.MethodGet, "/echo")
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		rr := testutil.DoRequest(r, req)
		assert.Equal(t, "Chrome 120.0.0.0", rr.Body.String())
		assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
	})

	t.Run("writes are throttled per client", func(t *testing.T) {
		limiter := ratelimit.New(bucket.NewInMemory(), logger, 1, time.Minute)
		r := NewRouter(logger, reg, nil, limiter, echoHandler{})

		rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodPost, "/echo"))
		testutil.AssertStatus(t, rr, http.StatusAccepted)
		testutil.AssertHeader(t, rr, "X-RateLimit-Remaining", "0")
		rr = testutil.DoRequest(r, testutil.NewRequest(t, http.MethodPost, "/echo"))
		testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
		rr = testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/echo"))
		testutil.AssertStatusOK(t, rr)
	})
}
