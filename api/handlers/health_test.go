package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BaSui01/skillbridge/agent/skills"
	"github.com/BaSui01/skillbridge/testutil/fixtures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func ready(t *testing.T, h *HealthHandler) (int, Readiness) {
	t.Helper()
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	var resp Readiness
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w.Code, resp
}

func manifests(ms ...*skills.Manifest) func() []*skills.Manifest {
	return func() []*skills.Manifest { return ms }
}

func TestHealthHandler_LiveReportsUptime(t *testing.T) {
	h := NewHealthHandler(zaptest.NewLogger(t))
	w := httptest.NewRecorder()
	h.HandleLive(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var live Liveness
	require.NoError(t, json.NewDecoder(w.Body).Decode(&live))
	assert.Equal(t, "alive", live.Status)
	assert.False(t, live.StartedAt.IsZero())
	assert.NotEmpty(t, live.Uptime)
}

func TestHealthHandler_ReadyReportsDispatchComponents(t *testing.T) {
	h := NewHealthHandler(zaptest.NewLogger(t))
	pinged := false
	h.Register(
		NewSkillsCheck(manifests(fixtures.CalendarManifest(), fixtures.WeatherManifest())),
		NewTransportCheck(func() int { return 3 }),
		NewStateCheck("redis", func(context.Context) error { pinged = true; return nil }),
	)

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", resp.Status)
	require.Len(t, resp.Components, 3)

	sk := resp.Components["skills"]
	assert.True(t, sk.Ready)
	assert.EqualValues(t, 2, sk.Detail["count"])
	assert.ElementsMatch(t, []any{"calendar", "weather"}, sk.Detail["ids"])

	assert.EqualValues(t, 3, resp.Components["transport"].Detail["liveClients"])
	assert.Equal(t, "redis", resp.Components["state"].Detail["backend"])
	assert.GreaterOrEqual(t, resp.Components["state"].LatencyMS, 0.0)
	assert.True(t, pinged)
}

func TestHealthHandler_NotReadyWithoutSkills(t *testing.T) {
	h := NewHealthHandler(zaptest.NewLogger(t))
	h.Register(NewSkillsCheck(manifests()), NewStateCheck("memory", nil))

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "not_ready", resp.Status)
	assert.False(t, resp.Components["skills"].Ready)
	assert.Equal(t, "no skill manifests loaded", resp.Components["skills"].Error)
	assert.True(t, resp.Components["state"].Ready)
}

func TestHealthHandler_StateBackendDown(t *testing.T) {
	h := NewHealthHandler(zaptest.NewLogger(t))
	h.Register(
		NewSkillsCheck(manifests(fixtures.CalendarManifest())),
		NewStateCheck("database", func(context.Context) error { return errors.New("connection refused") }),
	)

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	state := resp.Components["state"]
	assert.False(t, state.Ready)
	assert.Equal(t, "connection refused", state.Error)
	assert.Equal(t, "database", state.Detail["backend"])
	assert.True(t, resp.Components["skills"].Ready)
}

func TestHealthHandler_ReadyHonoursTimeout(t *testing.T) {
	h := NewHealthHandler(zaptest.NewLogger(t))
	h.Register(NewStateCheck("redis", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	w := httptest.NewRecorder()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil).WithContext(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthHandler_NoChecksIsReady(t *testing.T) {
	code, resp := ready(t, NewHealthHandler(nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Components)
}

func TestHealthHandler_Version(t *testing.T) {
	h := NewHealthHandler(nil)
	w := httptest.NewRecorder()
	h.HandleVersion("1.2.0", "2026-10-01", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "1.2.0", data["version"])
	assert.Equal(t, "abc123", data["git_commit"])
}
