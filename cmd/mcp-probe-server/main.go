// Package main provides the MCP-server entry point for the probe: the same
// conformance and benchmark engines, exposed as MCP tools over stdio so an
// MCP client can drive probes of other servers.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcp-probe/internal/config"
	"github.com/mcp-probe/internal/logging"
	"github.com/mcp-probe/internal/server"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	cfg := configManager.GetConfig()

	// Logs go to stderr; stdout carries the protocol.
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Starting mcp-probe server on stdio")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down")
		cancel()
	}()

	srv := server.NewServer(cfg, logger)
	if err := srv.Run(ctx); err != nil {
		logger.WithError(err).Fatal("MCP server failed")
	}

	logger.Info("mcp-probe server stopped")
}
