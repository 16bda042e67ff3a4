package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mcp-probe/internal/command"
	"github.com/mcp-probe/internal/domain"
	"github.com/mcp-probe/internal/schema"
	"github.com/mcp-probe/internal/session"
)

// RunOptions selects which engines a full conformance run executes against
// the target.
type RunOptions struct {
	// Command is the raw launch string for the target server.
	Command string
	// Smoke enables the functional smoke batch with generated arguments.
	Smoke bool
	// Parallel switches the smoke batch to concurrent dispatch.
	Parallel bool
	// StopOnError halts a serial smoke batch after the first failure.
	StopOnError bool
	// Benchmark, when non-nil, runs the latency benchmark. An empty
	// ToolName benchmarks the first discovered tool.
	Benchmark *BenchmarkConfig
	// NegativeCases, when non-empty, runs the negative-case validator.
	NegativeCases []NegativeCase
}

// RunReport is the structured output of one full run, consumed by the
// report renderers.
type RunReport struct {
	RunID      string                      `json:"run_id"`
	Command    string                      `json:"command"`
	StartedAt  time.Time                   `json:"started_at"`
	Duration   time.Duration               `json:"duration"`
	Server     *domain.ServerInfo          `json:"server,omitempty"`
	Tools      []domain.ToolDescriptor     `json:"tools"`
	Resources  *session.ResourceList       `json:"resources,omitempty"`
	Prompts    *session.PromptList         `json:"prompts,omitempty"`
	Schema     []schema.CheckResult        `json:"schema_checks,omitempty"`
	Smoke      *BatchResult                `json:"smoke,omitempty"`
	Benchmark  *BenchmarkResult            `json:"benchmark,omitempty"`
	Negative   []domain.NegativeCaseResult `json:"negative,omitempty"`
	StderrTail []string                    `json:"stderr_tail,omitempty"`
}

// Harness drives one full conformance run: one session per run, released on
// every exit path before the report is returned.
type Harness struct {
	logger   *logrus.Logger
	sessOpts session.Options
}

// New creates a harness whose sessions use the given options.
func New(logger *logrus.Logger, sessOpts session.Options) *Harness {
	return &Harness{logger: logger, sessOpts: sessOpts}
}

// Run connects to the target, performs discovery and the selected engines,
// and returns the structured report. Run-level setup failures (launch,
// handshake) surface as errors; per-case failures live inside the report.
func (h *Harness) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	spec, err := command.Parse(opts.Command)
	if err != nil {
		return nil, err
	}

	report := &RunReport{
		RunID:     uuid.NewString(),
		Command:   spec.String(),
		StartedAt: time.Now().UTC(),
	}

	log := h.logger.WithField("run_id", report.RunID)
	log.WithField("command", report.Command).Info("Conformance run starting")

	sess := session.New(h.logger, h.sessOpts)
	if err := sess.Connect(ctx, spec); err != nil {
		return nil, err
	}
	defer func() {
		sess.Close()
		report.StderrTail = sess.StderrTail()
		report.Duration = time.Since(report.StartedAt)
	}()

	info, err := sess.Initialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	report.Server = info

	tools, err := sess.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("tool discovery failed: %w", err)
	}
	report.Tools = tools

	if report.Resources, err = sess.ListResources(ctx); err != nil {
		return nil, fmt.Errorf("resource discovery failed: %w", err)
	}
	if report.Prompts, err = sess.ListPrompts(ctx); err != nil {
		return nil, fmt.Errorf("prompt discovery failed: %w", err)
	}

	generator, err := schema.NewGenerator(h.logger, len(tools)+16)
	if err != nil {
		return nil, err
	}

	examples := make(map[string]map[string]interface{}, len(tools))
	for _, tool := range tools {
		example := generator.ExampleArguments(tool)
		examples[tool.Name] = example
		report.Schema = append(report.Schema, schema.CheckTool(tool, example))
	}

	if opts.Smoke {
		cases := make([]TestCase, 0, len(tools))
		for _, tool := range tools {
			cases = append(cases, TestCase{
				Label:     "smoke " + tool.Name,
				ToolName:  tool.Name,
				Arguments: examples[tool.Name],
			})
		}

		cfg := BatchConfig{Mode: ModeSerial, StopOnError: opts.StopOnError}
		if opts.Parallel {
			cfg.Mode = ModeParallel
		}

		report.Smoke, err = NewBatchRunner(h.logger, sess).Run(ctx, cases, cfg)
		if err != nil {
			return nil, err
		}
	}

	if opts.Benchmark != nil {
		benchCfg := *opts.Benchmark
		if benchCfg.ToolName == "" && len(tools) > 0 {
			benchCfg.ToolName = tools[0].Name
			benchCfg.Arguments = examples[benchCfg.ToolName]
		}
		if benchCfg.ToolName != "" {
			report.Benchmark, err = NewBenchmarkEngine(h.logger, sess).Run(ctx, benchCfg)
			if err != nil {
				return nil, err
			}
		}
	}

	if len(opts.NegativeCases) > 0 {
		report.Negative = NewNegativeValidator(h.logger, sess).Run(ctx, opts.NegativeCases)
	}

	log.Info("Conformance run complete")
	return report, nil
}
