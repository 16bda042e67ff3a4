package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEnvConfig(t *testing.T) {
	cfg := DefaultEnvConfig()

	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.StartupGrace)
	assert.Equal(t, 50, cfg.StderrTailLines)
	assert.Equal(t, 10, cfg.BenchIterations)
	assert.Equal(t, 1, cfg.BenchConcurrency)
	assert.Equal(t, "json", cfg.ReportFormat)
	assert.NotEmpty(t, cfg.ReportDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadEnvConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadEnvConfig()

	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, 10, cfg.BenchIterations)
	assert.Equal(t, "json", cfg.ReportFormat)
}

func TestLoadEnvConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("MCP_PROBE_CALL_TIMEOUT", "5s")
	os.Setenv("MCP_PROBE_STARTUP_GRACE", "1s")
	os.Setenv("MCP_PROBE_STDERR_TAIL_LINES", "10")
	os.Setenv("MCP_PROBE_BENCH_ITERATIONS", "100")
	os.Setenv("MCP_PROBE_BENCH_CONCURRENCY", "8")
	os.Setenv("MCP_PROBE_BENCH_WARMUP", "5")
	os.Setenv("MCP_PROBE_REPORT_FORMAT", "markdown")
	os.Setenv("MCP_PROBE_REPORT_DIR", "/tmp/probe-reports")
	os.Setenv("MCP_PROBE_LOG_LEVEL", "debug")

	defer clearEnvVars(t)

	cfg := LoadEnvConfig()

	assert.Equal(t, 5*time.Second, cfg.CallTimeout)
	assert.Equal(t, time.Second, cfg.StartupGrace)
	assert.Equal(t, 10, cfg.StderrTailLines)
	assert.Equal(t, 100, cfg.BenchIterations)
	assert.Equal(t, 8, cfg.BenchConcurrency)
	assert.Equal(t, 5, cfg.BenchWarmup)
	assert.Equal(t, "markdown", cfg.ReportFormat)
	assert.Equal(t, "/tmp/probe-reports", cfg.ReportDir)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadEnvConfig_InvalidValuesIgnored(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("MCP_PROBE_CALL_TIMEOUT", "not-a-duration")
	os.Setenv("MCP_PROBE_BENCH_ITERATIONS", "-3")
	os.Setenv("MCP_PROBE_BENCH_CONCURRENCY", "zero")

	defer clearEnvVars(t)

	cfg := LoadEnvConfig()

	assert.Equal(t, 30*time.Second, cfg.CallTimeout)
	assert.Equal(t, 10, cfg.BenchIterations)
	assert.Equal(t, 1, cfg.BenchConcurrency)
}

func TestEnvConfig_ReportPath(t *testing.T) {
	cfg := &EnvConfig{ReportDir: "/var/lib/mcp-probe"}

	path := cfg.ReportPath("run-42", "json")

	assert.Equal(t, "/var/lib/mcp-probe/run-42.json", path)
}

func TestEnvConfig_EnsureReportDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &EnvConfig{ReportDir: filepath.Join(tmpDir, "reports")}

	err = cfg.EnsureReportDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.ReportDir)
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"MCP_PROBE_CALL_TIMEOUT",
		"MCP_PROBE_STARTUP_GRACE",
		"MCP_PROBE_STDERR_TAIL_LINES",
		"MCP_PROBE_BENCH_ITERATIONS",
		"MCP_PROBE_BENCH_CONCURRENCY",
		"MCP_PROBE_BENCH_WARMUP",
		"MCP_PROBE_REPORT_FORMAT",
		"MCP_PROBE_REPORT_DIR",
		"MCP_PROBE_LOG_LEVEL",
		"MCP_PROBE_LOG_FORMAT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
