package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	guardmcp "github.com/relayguard/relayguard/internal/mcp"
)

var (
	mcpAllowlist    string
	mcpSessionIndex string
	mcpPriceURL     string
	mcpAuditLog     string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpAllowlist, "allowlist", "", "Path to adapter allowlist YAML")
	mcpCmd.Flags().StringVar(&mcpSessionIndex, "session-index", "", "Base URL of the session index service")
	mcpCmd.Flags().StringVar(&mcpPriceURL, "price-url", "", "ETH/USD price endpoint for advisory USD figures")
	mcpCmd.Flags().StringVar(&mcpAuditLog, "audit-log", "", "Path to verdict audit log JSONL file")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs relayguard as an MCP (Model Context Protocol) server over stdio.\nExposes read-only tools: check, session, allowlist. Nothing is submitted.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := guardmcp.Config{
		AllowlistPath:   mcpAllowlist,
		SessionIndexURL: mcpSessionIndex,
		PriceURL:        mcpPriceURL,
		AuditLogPath:    mcpAuditLog,
	}

	srv, err := guardmcp.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down MCP server...")
		cancel()
	}()

	fmt.Fprintln(os.Stderr, "relayguard MCP server running on stdio")
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
