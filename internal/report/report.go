// Package report renders a harness run report as machine-readable JSON or
// human-readable Markdown.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcp-probe/internal/harness"
)

// Format selects a rendering.
type Format string

// Supported output formats.
const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unknown report format: %s", name)
	}
}

// Render produces the report in the requested format.
func Render(r *harness.RunReport, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return RenderJSON(r)
	case FormatMarkdown:
		return []byte(RenderMarkdown(r)), nil
	default:
		return nil, fmt.Errorf("unknown report format: %s", format)
	}
}

// RenderJSON serializes the report with indentation for direct consumption.
func RenderJSON(r *harness.RunReport) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteFile renders the report and writes it to path, creating parent
// directories as needed.
func WriteFile(r *harness.RunReport, format Format, path string) error {
	data, err := Render(r, format)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// RenderMarkdown renders the report as a Markdown document.
func RenderMarkdown(r *harness.RunReport) string {
	var doc strings.Builder

	doc.WriteString("# Conformance Run Report\n\n")
	doc.WriteString(fmt.Sprintf("- **Run ID:** %s\n", r.RunID))
	doc.WriteString(fmt.Sprintf("- **Command:** `%s`\n", r.Command))
	doc.WriteString(fmt.Sprintf("- **Started:** %s\n", r.StartedAt.Format(time.RFC3339)))
	doc.WriteString(fmt.Sprintf("- **Duration:** %s\n", r.Duration.Round(time.Millisecond)))
	if r.Server != nil {
		doc.WriteString(fmt.Sprintf("- **Server:** %s %s (protocol %s)\n", r.Server.Name, r.Server.Version, r.Server.ProtocolVersion))
	}
	doc.WriteString("\n")

	doc.WriteString(buildDiscoverySection(r))

	if len(r.Schema) > 0 {
		doc.WriteString(buildSchemaSection(r))
	}
	if r.Smoke != nil {
		doc.WriteString(buildSmokeSection(r.Smoke))
	}
	if r.Benchmark != nil {
		doc.WriteString(buildBenchmarkSection(r.Benchmark))
	}
	if len(r.Negative) > 0 {
		doc.WriteString(buildNegativeSection(r))
	}
	if len(r.StderrTail) > 0 {
		doc.WriteString("## Server Stderr (tail)\n\n```\n")
		for _, line := range r.StderrTail {
			doc.WriteString(line)
			doc.WriteString("\n")
		}
		doc.WriteString("```\n\n")
	}

	return doc.String()
}

func buildDiscoverySection(r *harness.RunReport) string {
	var section strings.Builder

	section.WriteString(fmt.Sprintf("## Discovery\n\n%d tool(s) discovered.\n\n", len(r.Tools)))
	if len(r.Tools) > 0 {
		section.WriteString("| Tool | Description |\n|------|-------------|\n")
		for _, tool := range r.Tools {
			section.WriteString(fmt.Sprintf("| %s | %s |\n", tool.Name, sanitizeCell(tool.Description)))
		}
		section.WriteString("\n")
	}

	if r.Resources != nil {
		section.WriteString(capabilityLine("Resources", r.Resources.Supported, len(r.Resources.Resources), r.Resources.Reason))
	}
	if r.Prompts != nil {
		section.WriteString(capabilityLine("Prompts", r.Prompts.Supported, len(r.Prompts.Prompts), r.Prompts.Reason))
	}
	section.WriteString("\n")

	return section.String()
}

func capabilityLine(label string, supported bool, count int, reason string) string {
	if supported {
		return fmt.Sprintf("- **%s:** supported, %d listed\n", label, count)
	}
	if reason != "" {
		return fmt.Sprintf("- **%s:** not supported (%s)\n", label, reason)
	}
	return fmt.Sprintf("- **%s:** not supported\n", label)
}

func buildSchemaSection(r *harness.RunReport) string {
	var section strings.Builder

	valid := 0
	for _, check := range r.Schema {
		if check.SchemaValid && check.ExampleValid {
			valid++
		}
	}

	section.WriteString(fmt.Sprintf("## Schema Checks\n\n%d/%d tools passed schema validation.\n\n", valid, len(r.Schema)))
	for _, check := range r.Schema {
		if check.SchemaValid && check.ExampleValid {
			continue
		}
		if !check.SchemaValid {
			section.WriteString(fmt.Sprintf("- `%s`: invalid schema: %s\n", check.ToolName, check.SchemaError))
		} else {
			section.WriteString(fmt.Sprintf("- `%s`: generated example rejected: %s\n", check.ToolName, check.ExampleError))
		}
	}
	section.WriteString("\n")

	return section.String()
}

func buildSmokeSection(batch *harness.BatchResult) string {
	var section strings.Builder

	section.WriteString("## Smoke Tests\n\n")
	section.WriteString(fmt.Sprintf("%d/%d cases passed in %s.\n", batch.Successes, batch.Total, batch.WallClock.Round(time.Millisecond)))
	if batch.Aborted {
		section.WriteString("Run aborted after the first failure; remaining cases were not executed.\n")
	}
	section.WriteString("\n")

	if batch.Failures > 0 {
		section.WriteString("| Case | Tool | Error |\n|------|------|-------|\n")
		for _, c := range batch.Cases {
			if c.Success {
				continue
			}
			label := c.Label
			if label == "" {
				label = c.ToolName
			}
			section.WriteString(fmt.Sprintf("| %s | %s | %s |\n", label, c.ToolName, sanitizeCell(c.Error)))
		}
		section.WriteString("\n")
	}

	return section.String()
}

func buildBenchmarkSection(bench *harness.BenchmarkResult) string {
	var section strings.Builder

	section.WriteString(fmt.Sprintf("## Benchmark: %s\n\n", bench.ToolName))
	section.WriteString(fmt.Sprintf("%d/%d calls completed, %d errors, %.1f ops/sec over %s.\n\n",
		bench.Completed, bench.Requested, bench.Errors, bench.Throughput, bench.WallClock.Round(time.Millisecond)))
	if bench.Interrupted {
		section.WriteString("Benchmark was interrupted early by the failure circuit breaker.\n\n")
	}

	if bench.Stats.Count > 0 {
		section.WriteString("| Metric | Value |\n|--------|-------|\n")
		section.WriteString(fmt.Sprintf("| Min | %s |\n", bench.Stats.Min))
		section.WriteString(fmt.Sprintf("| Mean | %s |\n", bench.Stats.Mean))
		section.WriteString(fmt.Sprintf("| P50 | %s |\n", bench.Stats.P50))
		section.WriteString(fmt.Sprintf("| P90 | %s |\n", bench.Stats.P90))
		section.WriteString(fmt.Sprintf("| P95 | %s |\n", bench.Stats.P95))
		section.WriteString(fmt.Sprintf("| P99 | %s |\n", bench.Stats.P99))
		section.WriteString(fmt.Sprintf("| Max | %s |\n", bench.Stats.Max))
		section.WriteString(fmt.Sprintf("| StdDev | %s |\n", bench.Stats.StdDev))
		section.WriteString("\n")
	} else {
		section.WriteString("No latency statistics: every measured call failed.\n\n")
	}

	if bench.Burst != nil {
		section.WriteString(fmt.Sprintf("Burst of %d concurrent calls finished in %s with %d errors.\n\n",
			bench.Burst.Concurrency, bench.Burst.WallClock.Round(time.Millisecond), bench.Burst.Errors))
	}

	return section.String()
}

func buildNegativeSection(r *harness.RunReport) string {
	var section strings.Builder

	passed := 0
	for _, nc := range r.Negative {
		if nc.Passed {
			passed++
		}
	}

	section.WriteString(fmt.Sprintf("## Negative Cases\n\n%d/%d cases behaved as expected.\n\n", passed, len(r.Negative)))
	section.WriteString("| Case | Tool | Result | Detail |\n|------|------|--------|--------|\n")
	for _, nc := range r.Negative {
		label := nc.Label
		if label == "" {
			label = nc.ToolName
		}
		verdict := "pass"
		if !nc.Passed {
			verdict = "fail"
		}
		section.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", label, nc.ToolName, verdict, sanitizeCell(nc.MatchReason)))
	}
	section.WriteString("\n")

	return section.String()
}

// sanitizeCell keeps multi-line or pipe-bearing text from breaking table rows.
func sanitizeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "|", "\\|")
	return s
}
