// Package config provides configuration management for the probe.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of a probe run. Values come from a config file,
// environment variables, or defaults, in that order of precedence.
type Config struct {
	Session   SessionConfig   `mapstructure:"session"`
	Benchmark BenchmarkConfig `mapstructure:"benchmark"`
	Report    ReportConfig    `mapstructure:"report"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SessionConfig tunes the protocol session against the target server.
type SessionConfig struct {
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	StartupGrace    time.Duration `mapstructure:"startup_grace"`
	ClientName      string        `mapstructure:"client_name"`
	ClientVersion   string        `mapstructure:"client_version"`
	StderrTailLines int           `mapstructure:"stderr_tail_lines"`
}

// BenchmarkConfig tunes the default benchmark parameters.
type BenchmarkConfig struct {
	Iterations       int     `mapstructure:"iterations"`
	Concurrency      int     `mapstructure:"concurrency"`
	WarmupIterations int     `mapstructure:"warmup_iterations"`
	TargetThroughput float64 `mapstructure:"target_throughput"`
	FailFast         bool    `mapstructure:"fail_fast"`
	MeasureBurst     bool    `mapstructure:"measure_burst"`
}

// ReportConfig selects how run reports are emitted.
type ReportConfig struct {
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// LoggingConfig tunes the probe's own logging.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Manager loads and validates the probe configuration using Viper.
type Manager struct {
	config *Config
}

// NewManager creates a configuration manager, loading configuration from all
// sources immediately.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	viper.SetConfigName("mcp-probe")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/mcp-probe/")

	viper.SetEnvPrefix("MCP_PROBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and env vars cover the common case.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Session defaults
	viper.SetDefault("session.call_timeout", "30s")
	viper.SetDefault("session.startup_grace", "300ms")
	viper.SetDefault("session.client_name", "mcp-probe")
	viper.SetDefault("session.client_version", "1.0.0")
	viper.SetDefault("session.stderr_tail_lines", 50)

	// Benchmark defaults
	viper.SetDefault("benchmark.iterations", 10)
	viper.SetDefault("benchmark.concurrency", 1)
	viper.SetDefault("benchmark.warmup_iterations", 0)
	viper.SetDefault("benchmark.target_throughput", 0)
	viper.SetDefault("benchmark.fail_fast", false)
	viper.SetDefault("benchmark.measure_burst", false)

	// Report defaults
	viper.SetDefault("report.format", "json")
	viper.SetDefault("report.output_path", "")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Session.CallTimeout <= 0 {
		return fmt.Errorf("session call timeout must be positive: %s", config.Session.CallTimeout)
	}
	if config.Session.StartupGrace < 0 {
		return fmt.Errorf("session startup grace must not be negative: %s", config.Session.StartupGrace)
	}
	if config.Session.StderrTailLines < 0 {
		return fmt.Errorf("stderr tail lines must not be negative: %d", config.Session.StderrTailLines)
	}

	if config.Benchmark.Iterations <= 0 {
		return fmt.Errorf("benchmark iterations must be positive: %d", config.Benchmark.Iterations)
	}
	if config.Benchmark.Concurrency <= 0 {
		return fmt.Errorf("benchmark concurrency must be positive: %d", config.Benchmark.Concurrency)
	}
	if config.Benchmark.WarmupIterations < 0 {
		return fmt.Errorf("benchmark warmup iterations must not be negative: %d", config.Benchmark.WarmupIterations)
	}
	if config.Benchmark.TargetThroughput < 0 {
		return fmt.Errorf("benchmark target throughput must not be negative: %f", config.Benchmark.TargetThroughput)
	}

	validFormats := map[string]bool{"json": true, "markdown": true, "md": true}
	if !validFormats[strings.ToLower(config.Report.Format)] {
		return fmt.Errorf("invalid report format: %s", config.Report.Format)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}
