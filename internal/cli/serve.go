package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relayguard/relayguard/internal/allowlist"
	"github.com/relayguard/relayguard/internal/server"
)

var (
	serveAddr         string
	serveAllowlist    string
	serveSessionIndex string
	serveRelayer      string
	servePriceURL     string
	serveLedger       string
	serveAuditLog     string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveAllowlist, "allowlist", "", "Path to adapter allowlist YAML")
	serveCmd.Flags().StringVar(&serveSessionIndex, "session-index", "", "Base URL of the session index service")
	serveCmd.Flags().StringVar(&serveRelayer, "relayer", "", "Base URL of the relayer (omit for validate-only mode)")
	serveCmd.Flags().StringVar(&servePriceURL, "price-url", "", "ETH/USD price endpoint for advisory USD figures")
	serveCmd.Flags().StringVar(&serveLedger, "ledger", "", "Path to the SQLite execution ledger (required with --relayer)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to verdict audit log JSONL file")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP policy server",
	Long:  "Runs relayguard as an HTTP API. Every execution request is validated,\nevaluated against the allowlist, session, and spend caps, and only then\nhanded to the relayer. Supports hot-reload of the allowlist file.",
	RunE:  runServe,
}

// resolveAllowlistPath maps an empty flag to the default location, so the
// server and the file watcher agree on which file they are talking about.
func resolveAllowlistPath(path string) string {
	if path == "" {
		return allowlist.DefaultPath()
	}
	return path
}

func runServe(cmd *cobra.Command, args []string) error {
	allowlistPath := resolveAllowlistPath(serveAllowlist)

	cfg := server.Config{
		Addr:            serveAddr,
		AllowlistPath:   allowlistPath,
		SessionIndexURL: serveSessionIndex,
		RelayerURL:      serveRelayer,
		PriceURL:        servePriceURL,
		LedgerPath:      serveLedger,
		AuditLogPath:    serveAuditLog,
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer srv.Close()

	// Hot-reload watcher for the allowlist file
	reloader, err := server.NewReloader(srv, []string{allowlistPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: hot-reload disabled: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nShutting down policy server...")
		cancel()
	}()

	fmt.Fprintf(os.Stderr, "relayguard policy server listening on %s\n", serveAddr)
	if serveRelayer == "" {
		fmt.Fprintln(os.Stderr, "no relayer configured: execution requests will be refused, validate-only works")
	}
	fmt.Fprintf(os.Stderr, "Allowlist: %s (hot-reload enabled)\n", allowlistPath)
	fmt.Fprintln(os.Stderr)

	return srv.Start(ctx)
}
