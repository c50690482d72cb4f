package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/versefriends/backend/internal/auth"
	"github.com/versefriends/backend/internal/config"
	"github.com/versefriends/backend/internal/handlers"
)

func memoryConfig() config.Config {
	return config.Config{
		AppPort: 8080,
		Database: config.DatabaseConfig{
			Driver:      config.DriverMemory,
			MemoryUsers: 3,
		},
		JWT:       config.JWTConfig{Secret: "test-secret", Issuer: "versefriends", TTL: time.Minute},
		RateLimit: config.RateLimitConfig{Requests: 100, Window: time.Second, Burst: 100},
	}
}

func TestBuildDependenciesMemoryDriver(t *testing.T) {
	deps, cleanup, err := buildDependencies(context.Background(), memoryConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	defer cleanup()

	assert.NotNil(t, deps.Friends)
	assert.NotNil(t, deps.Users)
	assert.NotNil(t, deps.Limiter)
	assert.NotNil(t, deps.Authenticate)
	assert.NotNil(t, deps.Metrics)
	assert.NotNil(t, deps.Instrument)
	assert.Nil(t, deps.Health)

	user, err := deps.Users.SelectUserBasicInfo(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "poet-3", user.Nickname)
	assert.True(t, user.Active())
}

func TestBuildDependenciesRequiresSecret(t *testing.T) {
	cfg := memoryConfig()
	cfg.JWT.Secret = ""

	_, _, err := buildDependencies(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestWiredRouterServesFriendFlow(t *testing.T) {
	cfg := memoryConfig()
	deps, cleanup, err := buildDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	router := mux.NewRouter()
	handlers.RegisterRoutes(router, deps)

	tokens := auth.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL)
	call := func(method, path string, userID int64) int {
		token, _, err := tokens.Issue(userID)
		require.NoError(t, err)
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, call(http.MethodPost, "/friends/2", 1))
	assert.Equal(t, http.StatusOK, call(http.MethodPatch, "/friends/accept/1", 2))
	assert.Equal(t, http.StatusOK, call(http.MethodGet, "/friends", 1))
	assert.Equal(t, http.StatusNotFound, call(http.MethodPost, "/friends/99", 1))

	unauthenticated := httptest.NewRecorder()
	router.ServeHTTP(unauthenticated, httptest.NewRequest(http.MethodGet, "/friends", nil))
	assert.Equal(t, http.StatusUnauthorized, unauthenticated.Code)

	metricsRec := httptest.NewRecorder()
	router.ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), "versefriends_relationships_operations_total")
}
