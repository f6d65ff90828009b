// Package mcp exposes relayguard over the Model Context Protocol so agent
// runtimes can pre-flight plans, inspect sessions, and read the adapter
// allowlist as tools. The MCP surface is strictly read-only: it never
// submits a transaction.
package mcp

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relayguard/relayguard/internal/allowlist"
	"github.com/relayguard/relayguard/internal/audit"
	"github.com/relayguard/relayguard/internal/estimate"
	"github.com/relayguard/relayguard/internal/policy"
	"github.com/relayguard/relayguard/internal/session"
)

// Config holds MCP server configuration.
type Config struct {
	AllowlistPath   string
	SessionIndexURL string
	PriceURL        string
	AuditLogPath    string
}

// Server wraps the MCP SDK server with relayguard policy tools.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *policy.Engine
	oracle    session.Oracle
	allow     *allowlist.Allowlist
	auditLog  *audit.Log
}

// New creates an MCP server with loaded allowlist and registered tools.
func New(cfg Config) (*Server, error) {
	allow, err := allowlist.Load(cfg.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load allowlist: %w", err)
	}

	var oracle session.Oracle
	if cfg.SessionIndexURL != "" {
		oracle = session.NewClient(cfg.SessionIndexURL, 0)
	}

	var prices estimate.PriceFunc
	if cfg.PriceURL != "" {
		prices = estimate.HTTPPrice(cfg.PriceURL, 0)
	}

	var auditLog *audit.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	s := &Server{
		engine:   policy.NewEngine(oracle, prices),
		oracle:   oracle,
		allow:    allow,
		auditLog: auditLog,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "relayguard",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close closes the audit log if configured.
func (s *Server) Close() error {
	if s.auditLog != nil {
		return s.auditLog.Close()
	}
	return nil
}

func (s *Server) recordAudit(draftID, user, sessionID, decision, code, reason, spendWei string) {
	if s.auditLog != nil {
		s.auditLog.Record(audit.Entry{
			Timestamp:     time.Now().UTC().Format(audit.TimestampFormat),
			DraftID:       draftID,
			User:          user,
			SessionID:     sessionID,
			Decision:      decision,
			Code:          code,
			Reason:        reason,
			SpendWei:      spendWei,
			AllowlistHash: s.allow.Hash(),
			ValidateOnly:  true,
		})
	}
}

// registerTools adds all relayguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "relayguard_check",
		Description: "Check whether a relayed execution plan would be allowed, without submitting anything (dry-run). Denials include the code and details.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "relayguard_session",
		Description: "Fetch the current delegation status for a session: active flag, owner, spend budget and amount spent.",
	}, s.handleSession)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "relayguard_allowlist",
		Description: "List the adapter contracts plans are allowed to call, with the allowlist content hash.",
	}, s.handleAllowlist)
}
