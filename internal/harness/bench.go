package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// BenchmarkConfig configures a single-tool latency benchmark.
type BenchmarkConfig struct {
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	// Iterations is the number of measured calls.
	Iterations int `json:"iterations"`
	// Concurrency bounds peak outstanding load: calls are dispatched in
	// batches of this size, each batch awaited fully before the next.
	Concurrency int `json:"concurrency"`
	// WarmupIterations are issued first and discarded entirely; they only
	// prime the remote server.
	WarmupIterations int `json:"warmup_iterations"`
	// TargetThroughput paces calls to at most this many per second.
	// Zero means unpaced.
	TargetThroughput float64 `json:"target_throughput,omitempty"`
	// FailFast trips a circuit breaker when the tool keeps failing, ending
	// the benchmark early instead of hammering a broken target.
	FailFast bool `json:"fail_fast,omitempty"`
	// MeasureBurst additionally times one fully-concurrent burst of
	// Concurrency simultaneous calls, separate from the iteration loop.
	MeasureBurst bool `json:"measure_burst,omitempty"`
}

// BenchmarkResult is the reduced outcome of a benchmark run. Failed calls
// are counted in Errors and contribute nothing to Stats.
type BenchmarkResult struct {
	ToolName    string        `json:"tool_name"`
	Requested   int           `json:"requested"`
	Completed   int           `json:"completed"`
	Errors      int           `json:"errors"`
	Stats       LatencyStats  `json:"stats"`
	WallClock   time.Duration `json:"wall_clock"`
	Throughput  float64       `json:"throughput_ops_per_sec"`
	Interrupted bool          `json:"interrupted,omitempty"`
	Burst       *BurstResult  `json:"burst,omitempty"`
}

// BurstResult reports the aggregate wall-clock time of one fully-concurrent
// burst of simultaneous calls.
type BurstResult struct {
	Concurrency int           `json:"concurrency"`
	WallClock   time.Duration `json:"wall_clock"`
	Errors      int           `json:"errors"`
	Stats       LatencyStats  `json:"stats"`
}

// BenchmarkEngine executes repeated invocations of one tool against one
// session and reduces the latency samples to summary statistics.
type BenchmarkEngine struct {
	logger *logrus.Logger
	inv    Invoker
}

// NewBenchmarkEngine creates a benchmark engine over the given session.
func NewBenchmarkEngine(logger *logrus.Logger, inv Invoker) *BenchmarkEngine {
	return &BenchmarkEngine{logger: logger, inv: inv}
}

// Run executes the configured benchmark. An all-failed run reports zero
// statistics rather than an error; only an unusable config is rejected.
func (e *BenchmarkEngine) Run(ctx context.Context, cfg BenchmarkConfig) (*BenchmarkResult, error) {
	if cfg.ToolName == "" {
		return nil, fmt.Errorf("benchmark requires a tool name")
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	var limiter *rate.Limiter
	if cfg.TargetThroughput > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.TargetThroughput), 1)
	}

	var breaker *gobreaker.CircuitBreaker
	if cfg.FailFast {
		breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.ToolName,
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				e.logger.WithFields(logrus.Fields{
					"tool": name,
					"from": from.String(),
					"to":   to.String(),
				}).Warn("Benchmark circuit breaker state change")
			},
		})
	}

	e.logger.WithFields(logrus.Fields{
		"tool":        cfg.ToolName,
		"iterations":  cfg.Iterations,
		"concurrency": cfg.Concurrency,
		"warmup":      cfg.WarmupIterations,
	}).Info("Benchmark starting")

	// Warm-up phase: outcomes discarded entirely.
	for done := 0; done < cfg.WarmupIterations; done += cfg.Concurrency {
		batch := minInt(cfg.Concurrency, cfg.WarmupIterations-done)
		var wg sync.WaitGroup
		for i := 0; i < batch; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.inv.CallTool(ctx, cfg.ToolName, cfg.Arguments)
			}()
		}
		wg.Wait()
	}

	result := &BenchmarkResult{
		ToolName:  cfg.ToolName,
		Requested: cfg.Iterations,
	}

	samples := make([]time.Duration, 0, cfg.Iterations)
	var mu sync.Mutex

	start := time.Now()
loop:
	for done := 0; done < cfg.Iterations; done += cfg.Concurrency {
		batch := minInt(cfg.Concurrency, cfg.Iterations-done)

		var wg sync.WaitGroup
		for i := 0; i < batch; i++ {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					break loop
				}
			}

			wg.Add(1)
			go func() {
				defer wg.Done()

				callStart := time.Now()
				err := e.invoke(ctx, breaker, cfg.ToolName, cfg.Arguments)
				elapsed := time.Since(callStart)

				mu.Lock()
				defer mu.Unlock()
				result.Completed++
				if err != nil {
					result.Errors++
					return
				}
				samples = append(samples, elapsed)
			}()
		}
		wg.Wait()

		if breaker != nil && breaker.State() == gobreaker.StateOpen {
			result.Interrupted = true
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	result.WallClock = time.Since(start)
	result.Stats = ComputeLatencyStats(samples)
	if result.WallClock > 0 {
		result.Throughput = float64(result.Completed) / result.WallClock.Seconds()
	}

	if cfg.MeasureBurst && !result.Interrupted {
		result.Burst = e.MeasureBurst(ctx, cfg.ToolName, cfg.Arguments, cfg.Concurrency)
	}

	e.logger.WithFields(logrus.Fields{
		"tool":      cfg.ToolName,
		"completed": result.Completed,
		"errors":    result.Errors,
		"p95":       result.Stats.P95,
	}).Info("Benchmark complete")

	return result, nil
}

// MeasureBurst times a single fully-concurrent burst of `concurrency`
// simultaneous calls, reporting aggregate wall-clock time. Failed calls are
// counted in the result, never raised.
func (e *BenchmarkEngine) MeasureBurst(ctx context.Context, toolName string, args map[string]interface{}, concurrency int) *BurstResult {
	if concurrency <= 0 {
		concurrency = 1
	}

	burst := &BurstResult{Concurrency: concurrency}
	samples := make([]time.Duration, 0, concurrency)
	var mu sync.Mutex

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			callStart := time.Now()
			res, err := e.inv.CallTool(ctx, toolName, args)
			elapsed := time.Since(callStart)

			mu.Lock()
			defer mu.Unlock()
			if err != nil || res.IsError {
				burst.Errors++
				return
			}
			samples = append(samples, elapsed)
		}()
	}
	wg.Wait()

	burst.WallClock = time.Since(start)
	burst.Stats = ComputeLatencyStats(samples)

	return burst
}

// invoke runs one measured call, optionally through the circuit breaker. A
// protocol-successful result carrying the tool's error flag counts as a
// failed call.
func (e *BenchmarkEngine) invoke(ctx context.Context, breaker *gobreaker.CircuitBreaker, toolName string, args map[string]interface{}) error {
	call := func() error {
		res, err := e.inv.CallTool(ctx, toolName, args)
		if err != nil {
			return err
		}
		if res.IsError {
			return fmt.Errorf("%s: tool reported an error result", toolName)
		}
		return nil
	}

	if breaker == nil {
		return call()
	}

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, call()
	})
	return err
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
