// Package server exposes the probe's engines as MCP tools, so the probe can
// itself be driven by an MCP client over stdio.
package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/mcp-probe/internal/config"
	"github.com/mcp-probe/internal/harness"
	"github.com/mcp-probe/internal/session"
)

// Server wraps the harness behind an MCP server.
type Server struct {
	config    *config.Config
	mcpServer *mcp.Server
	harness   *harness.Harness
	logger    *logrus.Logger
}

// NewServer creates the probe MCP server and registers its tools.
func NewServer(cfg *config.Config, logger *logrus.Logger) *Server {
	sessOpts := session.DefaultOptions()
	sessOpts.CallTimeout = cfg.Session.CallTimeout
	sessOpts.StartupGrace = cfg.Session.StartupGrace
	sessOpts.StderrTailLines = cfg.Session.StderrTailLines
	if cfg.Session.ClientName != "" {
		sessOpts.ClientName = cfg.Session.ClientName
	}
	if cfg.Session.ClientVersion != "" {
		sessOpts.ClientVersion = cfg.Session.ClientVersion
	}

	serverInfo := &mcp.Implementation{
		Name:    "mcp-probe",
		Version: "v1.0.0",
	}
	mcpServer := mcp.NewServer(serverInfo, nil)

	s := &Server{
		config:    cfg,
		mcpServer: mcpServer,
		harness:   harness.New(logger, sessOpts),
		logger:    logger,
	}
	s.registerTools()

	return s
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting probe MCP server on stdio")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "probe_discover",
		Description: "Launch a target MCP server, perform the handshake, and report its tools, resources, prompts, and schema checks",
	}, s.handleDiscover)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "probe_smoke",
		Description: "Run a functional smoke batch against every tool of a target MCP server using generated example arguments",
	}, s.handleSmoke)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "probe_benchmark",
		Description: "Benchmark one tool of a target MCP server and report latency statistics",
	}, s.handleBenchmark)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "probe_negative",
		Description: "Run negative test cases against a target MCP server and verify the expected failures occur",
	}, s.handleNegative)

	s.logger.WithField("tool_count", 4).Info("Registered probe tools")
}

// DiscoverParams defines parameters for the probe_discover tool.
type DiscoverParams struct {
	Command string `json:"command"`
}

// SmokeParams defines parameters for the probe_smoke tool.
type SmokeParams struct {
	Command     string `json:"command"`
	Parallel    bool   `json:"parallel,omitempty"`
	StopOnError bool   `json:"stop_on_error,omitempty"`
}

// BenchmarkParams defines parameters for the probe_benchmark tool.
type BenchmarkParams struct {
	Command          string                 `json:"command"`
	ToolName         string                 `json:"tool_name,omitempty"`
	Arguments        map[string]interface{} `json:"arguments,omitempty"`
	Iterations       int                    `json:"iterations,omitempty"`
	Concurrency      int                    `json:"concurrency,omitempty"`
	WarmupIterations int                    `json:"warmup_iterations,omitempty"`
}

// NegativeParams defines parameters for the probe_negative tool.
type NegativeParams struct {
	Command string                 `json:"command"`
	Cases   []harness.NegativeCase `json:"cases"`
}

func (s *Server) handleDiscover(ctx context.Context, req *mcp.CallToolRequest, params DiscoverParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "probe_discover").Info("Tool invoked")

	if params.Command == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("command is required")), nil, nil
	}

	return s.runReport(ctx, harness.RunOptions{Command: params.Command})
}

func (s *Server) handleSmoke(ctx context.Context, req *mcp.CallToolRequest, params SmokeParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "probe_smoke").Info("Tool invoked")

	if params.Command == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("command is required")), nil, nil
	}

	return s.runReport(ctx, harness.RunOptions{
		Command:     params.Command,
		Smoke:       true,
		Parallel:    params.Parallel,
		StopOnError: params.StopOnError,
	})
}

func (s *Server) handleBenchmark(ctx context.Context, req *mcp.CallToolRequest, params BenchmarkParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "probe_benchmark").Info("Tool invoked")

	if params.Command == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("command is required")), nil, nil
	}

	bench := &harness.BenchmarkConfig{
		ToolName:         params.ToolName,
		Arguments:        params.Arguments,
		Iterations:       params.Iterations,
		Concurrency:      params.Concurrency,
		WarmupIterations: params.WarmupIterations,
	}
	if bench.Iterations <= 0 {
		bench.Iterations = s.config.Benchmark.Iterations
	}
	if bench.Concurrency <= 0 {
		bench.Concurrency = s.config.Benchmark.Concurrency
	}
	if bench.WarmupIterations <= 0 {
		bench.WarmupIterations = s.config.Benchmark.WarmupIterations
	}

	return s.runReport(ctx, harness.RunOptions{
		Command:   params.Command,
		Benchmark: bench,
	})
}

func (s *Server) handleNegative(ctx context.Context, req *mcp.CallToolRequest, params NegativeParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "probe_negative").Info("Tool invoked")

	if params.Command == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("command is required")), nil, nil
	}
	if len(params.Cases) == 0 {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("cases must not be empty")), nil, nil
	}

	return s.runReport(ctx, harness.RunOptions{
		Command:       params.Command,
		NegativeCases: params.Cases,
	})
}

// runReport executes one harness run and wraps the report for the client.
// Run-level failures come back as error results, not protocol errors, so the
// client sees what went wrong.
func (s *Server) runReport(ctx context.Context, opts harness.RunOptions) (*mcp.CallToolResult, any, error) {
	rep, err := s.harness.Run(ctx, opts)
	if err != nil {
		return s.createErrorResult("Probe run failed", err), nil, nil
	}

	data, err := json.Marshal(rep)
	if err != nil {
		return s.createErrorResult("Failed to serialize report", err), nil, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, rep, nil
}

// createErrorResult builds an error-flagged tool result.
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	s.logger.WithError(err).Warn(message)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("%s: %v", message, err)},
		},
	}
}
