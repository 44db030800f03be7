package core

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/types"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Checkout.StripeWebhookSecret = types.SecretString("whsec_test")
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(testConfig(), testLogger())
	require.NoError(t, err)
	return srv
}

// staticAuthenticator resolves one fixed token.
type staticAuthenticator struct {
	token string
	actor *types.Actor
}

func (a *staticAuthenticator) ResolveToken(ctx context.Context, token string) (*types.Actor, error) {
	if token != a.token {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid session token", nil)
	}
	return a.actor, nil
}

func TestNewServer_RequiresWebhookSecret(t *testing.T) {
	cfg := &config.Config{}
	_, err := NewServer(cfg, testLogger())
	require.Error(t, err)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	t.Run("generates", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rr.Header().Get("X-Request-Id"))
	})

	t.Run("propagates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "req_upstream")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, "req_upstream", seen)
		assert.Equal(t, "req_upstream", rr.Header().Get("X-Request-Id"))
	})
}

func TestRecoverer(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), string(types.ErrCodeInternalUnexpected))
	assert.NotContains(t, rr.Body.String(), "kaboom", "panic values must not leak to clients")
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t)
	srv.Authenticator = &staticAuthenticator{
		token: "tok_good",
		actor: &types.Actor{UserID: 1, Email: "alice@example.com"},
	}

	var gotActor types.Actor
	var hadActor bool
	handler := srv.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, hadActor = types.GetActor(r.Context())
	}))

	do := func(authHeader string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	t.Run("valid token", func(t *testing.T) {
		rr := do("Bearer tok_good")
		assert.Equal(t, http.StatusOK, rr.Code)
		require.True(t, hadActor)
		assert.Equal(t, int64(1), gotActor.UserID)
	})

	t.Run("missing header", func(t *testing.T) {
		rr := do("")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), string(types.ErrCodeAuthTokenMissing))
	})

	t.Run("malformed header", func(t *testing.T) {
		rr := do("Basic dXNlcjpwYXNz")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		rr := do("Bearer tok_bad")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, rr.Body.String(), string(types.ErrCodeAuthTokenInvalid))
	})
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "abc", extractBearerToken("Bearer abc"))
	assert.Equal(t, "abc", extractBearerToken("bearer abc"))
	assert.Equal(t, "", extractBearerToken("Bearer"))
	assert.Equal(t, "", extractBearerToken("Token abc"))
	assert.Equal(t, "", extractBearerToken(""))
}
