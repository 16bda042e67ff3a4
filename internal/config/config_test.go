package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Session: SessionConfig{
			CallTimeout:     30 * time.Second,
			StartupGrace:    300 * time.Millisecond,
			ClientName:      "mcp-probe",
			ClientVersion:   "1.0.0",
			StderrTailLines: 50,
		},
		Benchmark: BenchmarkConfig{
			Iterations:  10,
			Concurrency: 1,
		},
		Report:  ReportConfig{Format: "json"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func clearManagerEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"MCP_PROBE_SESSION_CALL_TIMEOUT",
		"MCP_PROBE_SESSION_STARTUP_GRACE",
		"MCP_PROBE_BENCHMARK_ITERATIONS",
		"MCP_PROBE_REPORT_FORMAT",
		"MCP_PROBE_LOGGING_LEVEL",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}

func TestNewManagerDefaults(t *testing.T) {
	clearManagerEnvVars(t)

	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 30*time.Second, cfg.Session.CallTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.Session.StartupGrace)
	assert.Equal(t, "mcp-probe", cfg.Session.ClientName)
	assert.Equal(t, 50, cfg.Session.StderrTailLines)
	assert.Equal(t, 10, cfg.Benchmark.Iterations)
	assert.Equal(t, 1, cfg.Benchmark.Concurrency)
	assert.Equal(t, "json", cfg.Report.Format)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	assert.NoError(t, m.Validate())
}

func TestManagerEnvironmentOverrides(t *testing.T) {
	clearManagerEnvVars(t)

	os.Setenv("MCP_PROBE_SESSION_CALL_TIMEOUT", "5s")
	os.Setenv("MCP_PROBE_BENCHMARK_ITERATIONS", "100")
	os.Setenv("MCP_PROBE_LOGGING_LEVEL", "debug")
	defer clearManagerEnvVars(t)

	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 5*time.Second, cfg.Session.CallTimeout)
	assert.Equal(t, 100, cfg.Benchmark.Iterations)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero call timeout", func(c *Config) { c.Session.CallTimeout = 0 }},
		{"negative startup grace", func(c *Config) { c.Session.StartupGrace = -time.Second }},
		{"negative stderr tail", func(c *Config) { c.Session.StderrTailLines = -1 }},
		{"zero iterations", func(c *Config) { c.Benchmark.Iterations = 0 }},
		{"zero concurrency", func(c *Config) { c.Benchmark.Concurrency = 0 }},
		{"negative warmup", func(c *Config) { c.Benchmark.WarmupIterations = -1 }},
		{"negative throughput", func(c *Config) { c.Benchmark.TargetThroughput = -1 }},
		{"unknown report format", func(c *Config) { c.Report.Format = "yaml" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			m := &Manager{config: cfg}
			assert.Error(t, m.Validate())
		})
	}
}

func TestValidateAcceptsMarkdownFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Report.Format = "markdown"
	assert.NoError(t, (&Manager{config: cfg}).Validate())

	cfg.Report.Format = "md"
	assert.NoError(t, (&Manager{config: cfg}).Validate())
}
