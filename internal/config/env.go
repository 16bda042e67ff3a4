// This file contains the lightweight environment-only configuration used by
// the command-line entry points, where a config file lookup is unwanted.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// EnvConfig is a simplified configuration loaded from environment variables
// only. It requires no config file and uses sensible defaults.
type EnvConfig struct {
	// Session settings
	CallTimeout     time.Duration // Per-call timeout against the target
	StartupGrace    time.Duration // Delay after launch before the handshake
	StderrTailLines int           // Retained tail of the target's stderr

	// Benchmark settings
	BenchIterations  int // Measured benchmark calls
	BenchConcurrency int // Peak outstanding benchmark calls
	BenchWarmup      int // Discarded warm-up calls

	// Report settings
	ReportFormat string // Report format: json, markdown
	ReportDir    string // Directory for written reports

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultEnvConfig returns a configuration with sensible defaults.
func DefaultEnvConfig() *EnvConfig {
	homeDir, _ := os.UserHomeDir()
	reportDir := filepath.Join(homeDir, ".mcp-probe", "reports")

	return &EnvConfig{
		CallTimeout:      30 * time.Second,
		StartupGrace:     300 * time.Millisecond,
		StderrTailLines:  50,
		BenchIterations:  10,
		BenchConcurrency: 1,
		BenchWarmup:      0,
		ReportFormat:     "json",
		ReportDir:        reportDir,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// LoadEnvConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadEnvConfig() *EnvConfig {
	cfg := DefaultEnvConfig()

	// Session settings
	if v := os.Getenv("MCP_PROBE_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CallTimeout = d
		}
	}
	if v := os.Getenv("MCP_PROBE_STARTUP_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.StartupGrace = d
		}
	}
	if v := os.Getenv("MCP_PROBE_STDERR_TAIL_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.StderrTailLines = n
		}
	}

	// Benchmark settings
	if v := os.Getenv("MCP_PROBE_BENCH_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BenchIterations = n
		}
	}
	if v := os.Getenv("MCP_PROBE_BENCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BenchConcurrency = n
		}
	}
	if v := os.Getenv("MCP_PROBE_BENCH_WARMUP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.BenchWarmup = n
		}
	}

	// Report settings
	if v := os.Getenv("MCP_PROBE_REPORT_FORMAT"); v != "" {
		cfg.ReportFormat = v
	}
	if v := os.Getenv("MCP_PROBE_REPORT_DIR"); v != "" {
		cfg.ReportDir = v
	}

	// Logging
	if v := os.Getenv("MCP_PROBE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MCP_PROBE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// ReportPath returns the path for a report file named after the run ID.
func (c *EnvConfig) ReportPath(runID, extension string) string {
	return filepath.Join(c.ReportDir, runID+"."+extension)
}

// EnsureReportDir creates the report directory if it doesn't exist.
func (c *EnvConfig) EnsureReportDir() error {
	return os.MkdirAll(c.ReportDir, 0755)
}
