// Package main provides the mcp-probe command line tool: it launches a
// target MCP server as a child process and runs conformance and performance
// checks against it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mcp-probe/internal/config"
	"github.com/mcp-probe/internal/domain"
	"github.com/mcp-probe/internal/harness"
	"github.com/mcp-probe/internal/logging"
	"github.com/mcp-probe/internal/report"
	"github.com/mcp-probe/internal/session"
)

const usageText = `Usage: mcp-probe <command> [flags] -- <target command>

Commands:
  discover   Launch the target, handshake, and list its capabilities
  smoke      Run a functional smoke batch against every discovered tool
  bench      Benchmark one tool and report latency statistics
  negative   Run negative test cases from a JSON file
  full       Run discovery, smoke tests, and a benchmark in one session

The target command is everything after the flags (or after "--"), e.g.:
  mcp-probe discover python3 server.py
  mcp-probe bench -tool echo -iterations 100 -- node dist/index.js

Environment variables (MCP_PROBE_CALL_TIMEOUT, MCP_PROBE_LOG_LEVEL, ...)
tune session, benchmark, report, and logging defaults.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	cfg := config.LoadEnvConfig()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	subcommand := os.Args[1]
	args := os.Args[2:]

	flags := flag.NewFlagSet(subcommand, flag.ExitOnError)
	formatName := flags.String("format", cfg.ReportFormat, "report format: json or markdown")
	outputPath := flags.String("output", "", "write the report to this file instead of stdout")

	var (
		parallel    *bool
		stopOnError *bool
		toolName    *string
		toolArgs    *string
		iterations  *int
		concurrency *int
		warmup      *int
		throughput  *float64
		failFast    *bool
		burst       *bool
		casesPath   *string
	)

	switch subcommand {
	case "discover":
	case "smoke", "full":
		parallel = flags.Bool("parallel", false, "dispatch smoke cases concurrently")
		stopOnError = flags.Bool("stop-on-error", false, "halt a serial smoke batch after the first failure")
		if subcommand == "full" {
			toolName = flags.String("tool", "", "tool to benchmark (default: first discovered)")
			iterations = flags.Int("iterations", cfg.BenchIterations, "measured benchmark calls")
			concurrency = flags.Int("concurrency", cfg.BenchConcurrency, "peak outstanding benchmark calls")
			warmup = flags.Int("warmup", cfg.BenchWarmup, "discarded warm-up calls")
		}
	case "bench":
		toolName = flags.String("tool", "", "tool to benchmark (default: first discovered)")
		toolArgs = flags.String("args", "", "tool arguments as a JSON object")
		iterations = flags.Int("iterations", cfg.BenchIterations, "measured benchmark calls")
		concurrency = flags.Int("concurrency", cfg.BenchConcurrency, "peak outstanding benchmark calls")
		warmup = flags.Int("warmup", cfg.BenchWarmup, "discarded warm-up calls")
		throughput = flags.Float64("throughput", 0, "pace calls to at most this many per second (0 = unpaced)")
		failFast = flags.Bool("fail-fast", false, "stop early when the tool keeps failing")
		burst = flags.Bool("burst", false, "also time one fully-concurrent burst")
	case "negative":
		casesPath = flags.String("cases", "", "path to a JSON file holding the negative cases")
	case "help", "-h", "--help":
		fmt.Print(usageText)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", subcommand, usageText)
		os.Exit(2)
	}

	if err := flags.Parse(args); err != nil {
		os.Exit(2)
	}

	target := strings.Join(flags.Args(), " ")
	if target == "" {
		fmt.Fprintf(os.Stderr, "Missing target command.\n\n%s", usageText)
		os.Exit(2)
	}

	format, err := report.ParseFormat(*formatName)
	if err != nil {
		logger.WithError(err).Fatal("Invalid report format")
	}

	opts := harness.RunOptions{Command: target}

	switch subcommand {
	case "smoke":
		opts.Smoke = true
		opts.Parallel = *parallel
		opts.StopOnError = *stopOnError
	case "bench":
		bench := &harness.BenchmarkConfig{
			ToolName:         *toolName,
			Iterations:       *iterations,
			Concurrency:      *concurrency,
			WarmupIterations: *warmup,
			TargetThroughput: *throughput,
			FailFast:         *failFast,
			MeasureBurst:     *burst,
		}
		if *toolArgs != "" {
			if err := json.Unmarshal([]byte(*toolArgs), &bench.Arguments); err != nil {
				logger.WithError(err).Fatal("Invalid -args JSON")
			}
		}
		opts.Benchmark = bench
	case "negative":
		if *casesPath == "" {
			logger.Fatal("The negative command requires -cases <file.json>")
		}
		cases, err := loadNegativeCases(*casesPath)
		if err != nil {
			logger.WithError(err).Fatal("Failed to load negative cases")
		}
		opts.NegativeCases = cases
	case "full":
		opts.Smoke = true
		opts.Parallel = *parallel
		opts.StopOnError = *stopOnError
		opts.Benchmark = &harness.BenchmarkConfig{
			ToolName:         *toolName,
			Iterations:       *iterations,
			Concurrency:      *concurrency,
			WarmupIterations: *warmup,
		}
	}

	sessOpts := session.DefaultOptions()
	sessOpts.CallTimeout = cfg.CallTimeout
	sessOpts.StartupGrace = cfg.StartupGrace
	sessOpts.StderrTailLines = cfg.StderrTailLines

	// Graceful shutdown: first signal cancels the run and the deferred close
	// tears the child process down.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping run")
		cancel()
	}()

	rep, err := harness.New(logger, sessOpts).Run(ctx, opts)
	if err != nil {
		// Launch failures get a distinct exit code so wrappers can tell a
		// broken target command from a failed run.
		if domain.IsRunFatal(err) {
			logger.WithError(err).Error("Failed to launch target")
			os.Exit(3)
		}
		logger.WithError(err).Fatal("Probe run failed")
	}

	if *outputPath != "" {
		if err := report.WriteFile(rep, format, *outputPath); err != nil {
			logger.WithError(err).Fatal("Failed to write report")
		}
		logger.WithField("path", *outputPath).Info("Report written")
		return
	}

	rendered, err := report.Render(rep, format)
	if err != nil {
		logger.WithError(err).Fatal("Failed to render report")
	}
	os.Stdout.Write(rendered)
}

// loadNegativeCases reads the negative case list from a JSON file.
func loadNegativeCases(path string) ([]harness.NegativeCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cases []harness.NegativeCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("invalid case file %s: %w", path, err)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("case file %s holds no cases", path)
	}
	return cases, nil
}
