package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "securelog.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.False(t, cfg.OTelEnabled)
	assert.Empty(t, cfg.PolicyPath)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SECURELOG_DB_PATH", "/tmp/net.db")
	t.Setenv("SECURELOG_POLICY_PATH", "policies/observed.cue")
	t.Setenv("SECURELOG_LOG_LEVEL", "debug")
	t.Setenv("SECURELOG_LOG_FORMAT", "json")
	t.Setenv("SECURELOG_POLL_INTERVAL", "1s")
	t.Setenv("SECURELOG_OTEL_ENABLED", "true")
	t.Setenv("SECURELOG_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("SECURELOG_METRICS_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Config{
		DBPath:       "/tmp/net.db",
		PolicyPath:   "policies/observed.cue",
		LogLevel:     "debug",
		LogFormat:    "json",
		PollInterval: time.Second,
		OTelEndpoint: "http://localhost:4318",
		OTelEnabled:  true,
		MetricsAddr:  ":9090",
	}, cfg)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"bad duration", "SECURELOG_POLL_INTERVAL", "soon", "parse env:"},
		{"bad bool", "SECURELOG_OTEL_ENABLED", "maybe", "parse env:"},
		{"bad level", "SECURELOG_LOG_LEVEL", "loud", "invalid log level"},
		{"bad format", "SECURELOG_LOG_FORMAT", "xml", "invalid log format"},
		{"zero interval", "SECURELOG_POLL_INTERVAL", "0s", "invalid poll interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}
