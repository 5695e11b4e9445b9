package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sharedauth "docfill-backend/internal/shared/auth"
	"docfill-backend/internal/users"
)

func newGoogleRouter(svc *GoogleService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	svc.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
	return resp
}

func TestStartRequiresConfiguration(t *testing.T) {
	svc := NewGoogleService("", "", "", "http://ui.test/auth", nil)
	resp := get(newGoogleRouter(svc), "/api/v1/auth/google/start")
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestStartRedirectsWithState(t *testing.T) {
	svc := NewGoogleService("client", "secret", "http://api.test/cb", "http://ui.test/auth", nil)
	resp := get(newGoogleRouter(svc), "/api/v1/auth/google/start")
	require.Equal(t, http.StatusFound, resp.Code)

	loc, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	assert.True(t, svc.stateStore.consume(state))
	assert.False(t, svc.stateStore.consume(state))
}

func TestCallbackUpsertsAccountAndRedirects(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("JWT_SECRET", "google-secret")

	accounts := users.NewService(users.NewMemoryRepo(), nil)
	svc := NewGoogleService("client", "secret", "http://api.test/cb", "http://ui.test/auth?from=google", accounts)
	svc.profile = func(_ context.Context, code string) (googleUserInfo, error) {
		require.Equal(t, "the-code", code)
		return googleUserInfo{ID: "g-1", Email: "Dev@Example.com", VerifiedEmail: true, Name: "Dev"}, nil
	}
	svc.stateStore.put("s-1", time.Now().Add(time.Minute))

	resp := get(newGoogleRouter(svc), "/api/v1/auth/google/callback?state=s-1&code=the-code")
	require.Equal(t, http.StatusFound, resp.Code)

	loc, err := url.Parse(resp.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.String(), "http://ui.test/auth?"))
	assert.Equal(t, "google", loc.Query().Get("from"))

	claims, err := sharedauth.VerifyJWT(loc.Query().Get("token"))
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", claims.Email)

	user, err := accounts.GetByID(context.Background(), claims.Subject)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
}

func TestCallbackRejectsBadState(t *testing.T) {
	svc := NewGoogleService("client", "secret", "http://api.test/cb", "http://ui.test/auth", nil)
	router := newGoogleRouter(svc)

	assert.Equal(t, http.StatusBadRequest, get(router, "/api/v1/auth/google/callback?code=x").Code)
	assert.Equal(t, http.StatusBadRequest, get(router, "/api/v1/auth/google/callback?state=unknown&code=x").Code)

	svc.stateStore.put("old", time.Now().Add(-time.Second))
	assert.Equal(t, http.StatusBadRequest, get(router, "/api/v1/auth/google/callback?state=old&code=x").Code)
}

func TestCallbackRejectsUnverifiedProfile(t *testing.T) {
	svc := NewGoogleService("client", "secret", "http://api.test/cb", "http://ui.test/auth", nil)
	router := newGoogleRouter(svc)

	svc.profile = func(context.Context, string) (googleUserInfo, error) {
		return googleUserInfo{Email: "dev@example.com"}, nil
	}
	svc.stateStore.put("s-1", time.Now().Add(time.Minute))
	assert.Equal(t, http.StatusBadGateway, get(router, "/api/v1/auth/google/callback?state=s-1&code=x").Code)

	svc.profile = func(context.Context, string) (googleUserInfo, error) {
		return googleUserInfo{}, errors.New("exchange failed")
	}
	svc.stateStore.put("s-2", time.Now().Add(time.Minute))
	assert.Equal(t, http.StatusBadGateway, get(router, "/api/v1/auth/google/callback?state=s-2&code=x").Code)
}

func TestAppendToken(t *testing.T) {
	got, err := appendToken("http://ui.test/cb?x=1", "abc")
	require.NoError(t, err)
	assert.Equal(t, "http://ui.test/cb?token=abc&x=1", got)

	_, err = appendToken("", "abc")
	assert.Error(t, err)
}
