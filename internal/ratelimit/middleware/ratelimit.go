// Package middleware throttles mutating requests per client before they
// reach the submission queue.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"guildledger/internal/ratelimit/metrics"
	"guildledger/internal/ratelimit/models"
	"guildledger/pkg/platform/circuit"
	"guildledger/pkg/platform/httputil"
	"guildledger/pkg/requestcontext"
)

// Limiter is a sliding window counter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

type Middleware struct {
	limiter  Limiter
	fallback Limiter
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	limit    int
	window   time.Duration
	disabled bool
}

type Option func(*Middleware)

// WithFallback sets the limiter used while the primary one keeps failing.
func WithFallback(l Limiter) Option {
	return func(m *Middleware) {
		m.fallback = l
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

// WithDisabled turns the middleware into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter Limiter, logger *slog.Logger, limit int, window time.Duration, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
		limit:   limit,
		window:  window,
		breaker: circuit.New("ratelimit"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Writes limits POST, PUT, PATCH and DELETE requests per client IP. Reads
// pass through untouched.
func (m *Middleware) Writes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled || !isWrite(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		result, err := m.check(ctx, w, models.WriteKey(requestcontext.ClientIP(ctx)))
		if err != nil {
			// Fail open: the sequencer's bounded queue still protects the ledger.
			m.logger.ErrorContext(ctx, "failed to check rate limit",
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
			next.ServeHTTP(w, r)
			return
		}

		addHeaders(w, result)
		if !result.Allowed {
			m.metrics.IncRejected()
			writeExceeded(w, result, requestcontext.Now(ctx))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) check(ctx context.Context, w http.ResponseWriter, key string) (*models.Result, error) {
	result, err := m.limiter.Allow(ctx, key, m.limit, m.window)
	if err == nil {
		if _, change := m.breaker.RecordSuccess(); change.Closed {
			m.logger.InfoContext(ctx, "rate limit store recovered")
		}
		return result, nil
	}

	useFallback, change := m.breaker.RecordFailure()
	if change.Opened {
		m.logger.WarnContext(ctx, "rate limit store failing; using in-memory fallback", "error", err)
	}
	if !useFallback || m.fallback == nil {
		return nil, err
	}
	m.metrics.IncDegraded()
	w.Header().Set("X-RateLimit-Status", "degraded")
	return m.fallback.Allow(ctx, key, m.limit, m.window)
}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func addHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeExceeded(w http.ResponseWriter, result *models.Result, now time.Time) {
	retry := result.RetryAfter(now)
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.ExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many write requests from this client. Please try again later.",
		RetryAfter: retry,
	})
}
