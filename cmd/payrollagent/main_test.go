package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/FaresOuhachi/HR-Payroll-Agent/api/handlers"
	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

func TestRun_Dispatch(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCode  int
		wantOut   string
		wantError string
	}{
		{"no command", nil, 2, "", "Usage: payrollagent"},
		{"help", []string{"help"}, 0, "migrate", ""},
		{"unknown", []string{"deploy"}, 2, "", `unknown command "deploy"`},
		{"version", []string{"version"}, 0, "payrollagent dev", ""},
		{"migrate usage", []string{"migrate"}, 2, "", "Database Migration Commands"},
		{"serve bad flag", []string{"serve", "--port", "1"}, 1, "", "serve: flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr)
			assert.Equal(t, tt.wantCode, code)
			assert.Contains(t, stdout.String(), tt.wantOut)
			assert.Contains(t, stderr.String(), tt.wantError)
		})
	}
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	t.Setenv("PAYROLL_STORE_BACKEND", "etcd")
	err := serveCommand(context.Background(), nil, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.backend")
}

func healthServer(t *testing.T, code int, report handlers.HealthReport) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ready" && r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(report)
	}))
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestHealthCommand(t *testing.T) {
	degraded := handlers.HealthReport{
		Status: handlers.StatusDegraded,
		Checks: map[string]handlers.ProbeResult{
			"redis": {Status: "pass", LatencyMS: 1},
			"mongo": {Status: "fail", Optional: true, Error: "server selection timeout"},
		},
	}
	addr := healthServer(t, http.StatusOK, degraded)

	var out bytes.Buffer
	require.NoError(t, healthCommand(context.Background(), []string{"--addr", addr + "/", "--ready"}, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "degraded", lines[0])
	assert.Contains(t, lines[1], "mongo")
	assert.Contains(t, lines[1], "server selection timeout")
	assert.Contains(t, lines[2], "redis")
}

func TestHealthCommand_Failures(t *testing.T) {
	addr := healthServer(t, http.StatusServiceUnavailable, handlers.HealthReport{Status: handlers.StatusUnhealthy})
	var out bytes.Buffer
	err := healthCommand(context.Background(), []string{"--addr", addr, "--ready"}, &out)
	assert.ErrorContains(t, err, "/ready returned 503")
	assert.Contains(t, out.String(), "unhealthy")

	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	err = healthCommand(context.Background(), []string{"--addr", url, "--timeout", "1s"}, &out)
	assert.ErrorContains(t, err, "probe /health")
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "json", OutputPaths: []string{path}})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "payroll-agent", entry["service"])
	assert.Contains(t, entry, "timestamp")
	assert.NotContains(t, entry, "caller")

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.ErrorContains(t, err, "log level")

	console, err := newLogger(config.LogConfig{Format: "console", OutputPaths: []string{filepath.Join(t.TempDir(), "c.log")}})
	require.NoError(t, err)
	assert.True(t, console.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, console.Core().Enabled(zapcore.DebugLevel))
}
