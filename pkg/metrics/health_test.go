package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker = newHealthChecker()
}

func TestGetHealth(t *testing.T) {
	resetHealth(t)
	SetVersion("1.0.0")

	UpdateComponent("registry", true, "")
	UpdateComponent("volume_service", true, "")

	health := GetHealth()
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Len(t, health.Components, 2)
	assert.Equal(t, "1.0.0", health.Version)

	UpdateComponent("volume_service", false, "connection refused")
	health = GetHealth()
	assert.Equal(t, StatusUnhealthy, health.Status)
	assert.Equal(t, "unhealthy: connection refused", health.Components["volume_service"])
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name       string
		setup      func()
		wantStatus string
		wantMsg    string
	}{
		{
			name:       "critical component missing",
			setup:      func() {},
			wantStatus: StatusNotReady,
			wantMsg:    "waiting for registry initialization",
		},
		{
			name:       "critical component unhealthy",
			setup:      func() { UpdateComponent("registry", false, "database locked") },
			wantStatus: StatusNotReady,
			wantMsg:    "waiting for registry",
		},
		{
			name: "non-critical failure does not block readiness",
			setup: func() {
				UpdateComponent("registry", true, "")
				UpdateComponent("volume_service", false, "timeout")
			},
			wantStatus: StatusReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			tt.setup()

			ready := GetReadiness()
			assert.Equal(t, tt.wantStatus, ready.Status)
			assert.Equal(t, tt.wantMsg, ready.Message)
		})
	}
}

func TestSetCriticalComponents(t *testing.T) {
	resetHealth(t)
	SetCriticalComponents("registry", "transport")
	UpdateComponent("registry", true, "")

	ready := GetReadiness()
	assert.Equal(t, StatusNotReady, ready.Status)
	assert.Equal(t, "not registered", ready.Components["transport"])
}

func TestProbes(t *testing.T) {
	resetHealth(t)

	var failing error
	RegisterProbe("registry", func() error { return failing })
	assert.Equal(t, StatusReady, GetReadiness().Status)

	failing = errors.New("bolt closed")
	RunProbes()
	ready := GetReadiness()
	assert.Equal(t, StatusNotReady, ready.Status)
	assert.Equal(t, "not ready: bolt closed", ready.Components["registry"])
}

func TestHandlers(t *testing.T) {
	resetHealth(t)

	rec := httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	UpdateComponent("registry", true, "")

	rec = httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, StatusHealthy, body.Status)

	UpdateComponent("registry", false, "gone")
	rec = httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
