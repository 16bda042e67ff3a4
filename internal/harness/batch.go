// Package harness contains the test-orchestration engines built on top of a
// protocol session: batch execution, latency benchmarking, and negative-case
// validation.
package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mcp-probe/internal/domain"
)

// Invoker is the slice of the protocol session the orchestration engines
// need. *session.Session satisfies it.
type Invoker interface {
	ListTools(ctx context.Context) ([]domain.ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*domain.ToolResult, error)
}

// Mode selects how batch cases are scheduled.
type Mode int

// Batch execution modes.
const (
	ModeSerial Mode = iota
	ModeParallel
)

// TestCase is one functional test input.
type TestCase struct {
	Label     string                 `json:"label,omitempty"`
	ToolName  string                 `json:"tool_name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// BatchConfig configures one batch run. StopOnError halts a serial run after
// the first failing case; in parallel mode it has no effect, since cases
// already in flight cannot be meaningfully stopped.
type BatchConfig struct {
	Mode        Mode
	StopOnError bool
}

// BatchResult aggregates one batch run. Cases preserve input order. Aborted
// marks a serial run truncated by StopOnError; unexecuted cases are omitted
// from Cases, not marked skipped.
type BatchResult struct {
	Total     int                     `json:"total"`
	Successes int                     `json:"successes"`
	Failures  int                     `json:"failures"`
	Aborted   bool                    `json:"aborted,omitempty"`
	Cases     []domain.TestCaseResult `json:"cases"`
	WallClock time.Duration           `json:"wall_clock"`
}

// BatchRunner executes a list of test cases against one session.
type BatchRunner struct {
	logger *logrus.Logger
	inv    Invoker
}

// NewBatchRunner creates a batch runner over the given session.
func NewBatchRunner(logger *logrus.Logger, inv Invoker) *BatchRunner {
	return &BatchRunner{logger: logger, inv: inv}
}

// Run executes the cases. Individual case failures never surface as errors;
// only a failure to resolve the tool allow-list (the session being unusable)
// aborts the run.
func (b *BatchRunner) Run(ctx context.Context, cases []TestCase, cfg BatchConfig) (*BatchResult, error) {
	tools, err := b.inv.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tool allow-list: %w", err)
	}
	known := make(map[string]bool, len(tools))
	for _, tool := range tools {
		known[tool.Name] = true
	}

	start := time.Now()
	result := &BatchResult{}

	if cfg.Mode == ModeParallel {
		result.Cases = b.runParallel(ctx, cases, known)
	} else {
		result.Cases, result.Aborted = b.runSerial(ctx, cases, known, cfg.StopOnError)
	}

	result.WallClock = time.Since(start)
	result.Total = len(result.Cases)
	for _, c := range result.Cases {
		if c.Success {
			result.Successes++
		} else {
			result.Failures++
		}
	}

	b.logger.WithFields(logrus.Fields{
		"total":     result.Total,
		"successes": result.Successes,
		"failures":  result.Failures,
		"aborted":   result.Aborted,
	}).Info("Batch run complete")

	return result, nil
}

func (b *BatchRunner) runSerial(ctx context.Context, cases []TestCase, known map[string]bool, stopOnError bool) ([]domain.TestCaseResult, bool) {
	results := make([]domain.TestCaseResult, 0, len(cases))
	for _, tc := range cases {
		res := b.runCase(ctx, tc, known)
		results = append(results, res)
		if stopOnError && !res.Success {
			return results, true
		}
	}
	return results, false
}

func (b *BatchRunner) runParallel(ctx context.Context, cases []TestCase, known map[string]bool) []domain.TestCaseResult {
	results := make([]domain.TestCaseResult, len(cases))

	var wg sync.WaitGroup
	for i, tc := range cases {
		if !known[tc.ToolName] {
			// Unknown tools are rejected locally, never sent to the session.
			results[i] = b.unknownToolResult(tc)
			continue
		}
		wg.Add(1)
		go func(i int, tc TestCase) {
			defer wg.Done()
			results[i] = b.runCase(ctx, tc, known)
		}(i, tc)
	}
	wg.Wait()

	return results
}

func (b *BatchRunner) runCase(ctx context.Context, tc TestCase, known map[string]bool) domain.TestCaseResult {
	if !known[tc.ToolName] {
		return b.unknownToolResult(tc)
	}

	start := time.Now()
	response, err := b.inv.CallTool(ctx, tc.ToolName, tc.Arguments)
	elapsed := time.Since(start)

	result := domain.TestCaseResult{
		Label:     tc.Label,
		ToolName:  tc.ToolName,
		Arguments: tc.Arguments,
		Elapsed:   elapsed,
	}

	switch {
	case err != nil:
		result.Error = err.Error()
	case response.IsError:
		result.Response = response
		result.Error = "tool reported an error result"
	default:
		result.Success = true
		result.Response = response
	}

	return result
}

func (b *BatchRunner) unknownToolResult(tc TestCase) domain.TestCaseResult {
	return domain.TestCaseResult{
		Label:     tc.Label,
		ToolName:  tc.ToolName,
		Arguments: tc.Arguments,
		Success:   false,
		Error:     fmt.Errorf("%w: %s", domain.ErrUnknownTool, tc.ToolName).Error(),
	}
}
