// ABOUTME: MCP command starts the Model Context Protocol server
// ABOUTME: Lets LLM agents ingest documents and study them via stdio
package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/harper/distill/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs Distill as an MCP (Model Context Protocol) server, giving LLM
agents tools to ingest documents, query lessons and hold tutoring
conversations over stdio.

Logs go to stderr; stdout carries the protocol.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically called by an MCP client)
  distill mcp

  # Configure in claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "distill": {
  #       "command": "distill",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, appOptions{janitor: true})
	if err != nil {
		return err
	}
	defer a.Close()

	server := mcpserver.NewMCPServer(
		"Distill",
		versionInfo.Version,
	)

	handlers := mcp.RegisterTools(server, a.orch, mcp.Options{
		Catalog:     a.catalog,
		DefaultUser: userID,
		Logger:      a.logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info("MCP server starting on stdio", "store", a.cfg.Store, "offline", a.cfg.Offline())

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received, waiting for in-flight calls")
		handlers.Shutdown()
		a.logger.Info("shutdown complete")
	case err := <-serverErr:
		handlers.Shutdown()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	return nil
}
