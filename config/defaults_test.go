package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, HostConfig{}, cfg.Host)
	assert.NotEqual(t, DispatchConfig{}, cfg.Dispatch)
	assert.NotEqual(t, TransportConfig{}, cfg.Transport)
	assert.NotEqual(t, StateConfig{}, cfg.State)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.Equal(t, "skills", cfg.Skills.ManifestDir)
	assert.False(t, cfg.Skills.Watch)
	assert.Equal(t, 2*time.Second, cfg.Skills.WatchInterval)
}

// --- Individual Default*Config functions ---

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 3978, cfg.HTTPPort)
	assert.Equal(t, 9091, cfg.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.APIKeys)
	assert.Equal(t, 50.0, cfg.RateLimitRPS)
	assert.Equal(t, 100, cfg.RateLimitBurst)
}

func TestDefaultHostConfig(t *testing.T) {
	cfg := DefaultHostConfig()
	assert.Empty(t, cfg.AppID)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.TokenRefreshSkew)
}

func TestDefaultDispatchConfig(t *testing.T) {
	cfg := DefaultDispatchConfig()
	assert.True(t, cfg.SkillSwitchConfirmation)
	assert.Equal(t, 32, cfg.MaxCallbackHops)
	assert.Equal(t, DefaultGenericErrorText, cfg.GenericErrorText)
	assert.Contains(t, cfg.SwitchPromptTemplate, "%s")
	assert.Equal(t, 2, cfg.ConfirmMaxRetries)
}

func TestDefaultTransportConfig(t *testing.T) {
	cfg := DefaultTransportConfig()
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, 20.0, cfg.ForwardRPS)
	assert.Equal(t, 40, cfg.ForwardBurst)
	assert.Equal(t, int64(1<<20), cfg.ReadLimit)
	assert.Equal(t, 30*time.Minute, cfg.IdleTimeout)
}

func TestDefaultStateConfig(t *testing.T) {
	cfg := DefaultStateConfig()
	assert.Equal(t, "memory", cfg.Backend)
	assert.Equal(t, "skillbridge:", cfg.KeyPrefix)
	assert.Equal(t, 24*time.Hour, cfg.TTL)
}

func TestDefaultLogAndTelemetryConfig(t *testing.T) {
	log := DefaultLogConfig()
	assert.Equal(t, "info", log.Level)
	assert.Equal(t, "json", log.Format)
	assert.Equal(t, []string{"stdout"}, log.OutputPaths)

	tel := DefaultTelemetryConfig()
	assert.False(t, tel.Enabled)
	assert.Equal(t, "skillbridge", tel.ServiceName)
	assert.InDelta(t, 0.1, tel.SampleRate, 0.0001)
}
