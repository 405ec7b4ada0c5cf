package jwttoken

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	authmw "guildledger/pkg/platform/middleware/auth"
	"guildledger/pkg/requestcontext"
)

func TestJWTServiceAdapterWithRequireAuth(t *testing.T) {
	adapter := NewJWTServiceAdapter(jwtService)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := authmw.RequireAuth(adapter, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, _ := requestcontext.Caller(r.Context())
		_, _ = w.Write([]byte(caller.String()))
	}))

	serve := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/guilds", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	t.Run("signed token authenticates the principal", func(t *testing.T) {
		token, err := jwtService.GenerateToken(principal, time.Hour)
		assert.NoError(t, err)

		rr := serve(token)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, principal.String(), rr.Body.String())
	})

	t.Run("token for another audience is rejected", func(t *testing.T) {
		other := NewJWTService("test-signing-key", "test-issuer", "another-api")
		token, err := other.GenerateToken(principal, time.Hour)
		assert.NoError(t, err)

		assert.Equal(t, http.StatusUnauthorized, serve(token).Code)
	})

	t.Run("token signed with another key is rejected", func(t *testing.T) {
		other := NewJWTService("other-key", "test-issuer", "test-audience")
		token, err := other.GenerateToken(principal, time.Hour)
		assert.NoError(t, err)

		assert.Equal(t, http.StatusUnauthorized, serve(token).Code)
	})
}
