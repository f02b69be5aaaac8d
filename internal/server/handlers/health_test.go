package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing() HealthChecker {
	return HealthCheckFunc(func(context.Context) error { return nil })
}

func failing(msg string) HealthChecker {
	return HealthCheckFunc(func(context.Context) error { return errors.New(msg) })
}

func serve(handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthHandlerReportsEveryChecker(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("rate_limiter", passing())
	manager.RegisterOptionalChecker("store", passing())

	rec := serve(manager.HealthHandler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, map[string]string{"rate_limiter": "healthy", "store": "healthy"}, resp.Checks)
}

func TestHealthHandlerDegradedWhenStoreDown(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("rate_limiter", passing())
	manager.RegisterOptionalChecker("store", failing("database is locked"))

	rec := serve(manager.HealthHandler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, StatusDegraded, resp.Checks["store"])
}

func TestHealthHandlerUnavailableWhenRequiredCheckFails(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("rate_limiter", failing("closed"))

	rec := serve(manager.HealthHandler, "/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)
	assert.Equal(t, "unhealthy", resp.Error.Details["status"])

	checks, ok := resp.Error.Details["checks"].(map[string]any)
	require.True(t, ok, "checks missing from details: %v", resp.Error.Details)
	assert.Equal(t, "unhealthy", checks["rate_limiter"])
}

func TestProbeSelection(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("rate_limiter", passing())
	manager.RegisterOptionalChecker("store", failing("down"))

	t.Run("liveness ignores checks", func(t *testing.T) {
		broken := NewHealthManager("dev")
		broken.RegisterChecker("rate_limiter", failing("closed"))
		rec := serve(broken.LivenessHandler, "/health/live")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ProbeResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, StatusHealthy, resp.Status)
	})

	t.Run("readiness degraded by optional", func(t *testing.T) {
		rec := serve(manager.ReadinessHandler, "/health/ready")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ProbeResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, StatusDegraded, resp.Status)
	})

	t.Run("startup skips optional", func(t *testing.T) {
		rec := serve(manager.StartupHandler, "/health/startup")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ProbeResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, StatusHealthy, resp.Status)
	})

	t.Run("readiness fails on required", func(t *testing.T) {
		broken := NewHealthManager("dev")
		broken.RegisterChecker("rate_limiter", failing("closed"))
		rec := serve(broken.ReadinessHandler, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRegisterCheckerReplacesByName(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("store", failing("down"))
	manager.RegisterOptionalChecker("store", passing())

	require.Len(t, manager.checks, 1)
	assert.True(t, manager.checks[0].optional)
}

func TestDetermineOverallStatusTreatsTimeoutAsDegraded(t *testing.T) {
	manager := NewHealthManager("dev")

	assert.Equal(t, StatusDegraded, manager.determineOverallStatus(map[string]string{"store": StatusTimeout}))
	assert.Equal(t, StatusUnhealthy, manager.determineOverallStatus(map[string]string{
		"store":        StatusTimeout,
		"rate_limiter": StatusUnhealthy,
	}))
	assert.Equal(t, StatusHealthy, manager.determineOverallStatus(nil))
}
