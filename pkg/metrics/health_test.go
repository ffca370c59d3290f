package metrics

import (
	"encoding/json"
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

func registerReady() {
	for _, name := range ReadinessComponents {
		UpdateComponent(name, true, "")
	}
}

func TestUpdateComponent(t *testing.T) {
	resetHealth(t)

	UpdateComponent(ComponentUpgrade, true, "idle")

	comp, ok := Component(ComponentUpgrade)
	require.True(t, ok)
	assert.True(t, comp.Healthy)
	assert.Equal(t, "idle", comp.Message)

	UpdateComponent(ComponentUpgrade, false, "rollback failed")
	comp, _ = Component(ComponentUpgrade)
	assert.False(t, comp.Healthy)
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name      string
		unhealthy string
		want      string
	}{
		{name: "all healthy", want: "healthy"},
		{name: "rollback failed", unhealthy: ComponentUpgrade, want: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			SetVersion("0.3.0")
			registerReady()
			UpdateComponent(ComponentUpgrade, true, "")
			UpdateComponent(ComponentReward, true, "")
			if tt.unhealthy != "" {
				UpdateComponent(tt.unhealthy, false, "broken")
			}

			health := GetHealth()
			assert.Equal(t, tt.want, health.Status)
			assert.Equal(t, "0.3.0", health.Version)
			assert.Len(t, health.Components, 5)
			if tt.unhealthy != "" {
				assert.Equal(t, "unhealthy: broken", health.Components[tt.unhealthy])
				assert.Equal(t, tt.unhealthy+": broken", health.Message)
			}
		})
	}
}

func TestGetReadiness(t *testing.T) {
	t.Run("not registered", func(t *testing.T) {
		resetHealth(t)
		UpdateComponent(ComponentConfig, true, "")

		r := GetReadiness()
		assert.Equal(t, "not_ready", r.Status)
		assert.Equal(t, "not registered", r.Components[ComponentStore])
		assert.Equal(t, "waiting for "+ComponentStore, r.Message)
	})

	t.Run("unhealthy", func(t *testing.T) {
		resetHealth(t)
		registerReady()
		UpdateComponent(ComponentScheduler, false, "stopped")

		r := GetReadiness()
		assert.Equal(t, "not_ready", r.Status)
		assert.Equal(t, "not ready: stopped", r.Components[ComponentScheduler])
	})

	t.Run("ready", func(t *testing.T) {
		resetHealth(t)
		registerReady()
		// non-readiness components do not gate /ready
		UpdateComponent(ComponentReward, false, "claim failed")

		r := GetReadiness()
		assert.Equal(t, "ready", r.Status)
		assert.Empty(t, r.Message)
	})
}

func TestHandlers(t *testing.T) {
	resetHealth(t)
	mux := NewServeMux()

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	registerReady()
	rec = get("/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)

	UpdateComponent(ComponentUpgrade, false, "rollback failed")
	rec = get("/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = get("/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")

	rec = get("/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "topio_agent_")
}
