// Package server exposes the policy engine over HTTP. Every execution
// request flows through the same pipeline: structural validation, policy
// evaluation, and (unless validate-only) ledger-guarded submission. The
// allowlist is hot-reloadable; evaluation always runs against an immutable
// snapshot taken at request start.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relayguard/relayguard/internal/allowlist"
	"github.com/relayguard/relayguard/internal/audit"
	"github.com/relayguard/relayguard/internal/estimate"
	"github.com/relayguard/relayguard/internal/ledger"
	"github.com/relayguard/relayguard/internal/model"
	"github.com/relayguard/relayguard/internal/policy"
	"github.com/relayguard/relayguard/internal/relay"
	"github.com/relayguard/relayguard/internal/session"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr            string
	AllowlistPath   string
	SessionIndexURL string
	RelayerURL      string
	PriceURL        string
	LedgerPath      string
	AuditLogPath    string
}

// Server is the relayguard HTTP API.
type Server struct {
	cfg    Config
	engine *policy.Engine
	oracle session.Oracle
	guard  *relay.Guard
	ledger *ledger.Ledger

	mu       sync.RWMutex
	allow    *allowlist.Allowlist
	auditLog *audit.Log

	srv *http.Server
	now func() time.Time
}

// New creates a server with loaded allowlist and wired collaborators.
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

	s := &Server{
		cfg:    cfg,
		engine: policy.NewEngine(oracle, prices),
		oracle: oracle,
		allow:  allow,
		now:    time.Now,
	}

	if cfg.RelayerURL != "" {
		if cfg.LedgerPath == "" {
			return nil, fmt.Errorf("relayer configured without a ledger path")
		}
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			return nil, err
		}
		s.ledger = l
		s.guard = relay.NewGuard(l, relay.NewHTTPSubmitter(cfg.RelayerURL, 0), oracle)
	}

	if cfg.AuditLogPath != "" {
		s.auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	s.srv = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.routes(),
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/relay/execute", s.handleExecute)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSession)
	mux.HandleFunc("GET /v1/allowlist", s.handleAllowlist)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start begins listening. Blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	err = s.srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Close releases the audit log and ledger.
func (s *Server) Close() error {
	var errs []error
	if s.auditLog != nil {
		errs = append(errs, s.auditLog.Close())
	}
	if s.ledger != nil {
		errs = append(errs, s.ledger.Close())
	}
	return errors.Join(errs...)
}

// ReloadAllowlist atomically swaps the adapter allowlist.
// Called by the hot-reloader on file change.
func (s *Server) ReloadAllowlist() error {
	allow, err := allowlist.Load(s.cfg.AllowlistPath)
	if err != nil {
		return fmt.Errorf("failed to reload allowlist: %w", err)
	}
	s.mu.Lock()
	s.allow = allow
	s.mu.Unlock()
	return nil
}

func (s *Server) snapshot() *allowlist.Allowlist {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allow
}

type executeRequest struct {
	DraftID     string                `json:"draftId,omitempty"`
	UserAddress string                `json:"userAddress,omitempty"`
	SessionID   string                `json:"sessionId,omitempty"`
	Plan        *model.Plan           `json:"plan"`
	Override    *model.PolicyOverride `json:"policyOverride,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, model.CodePlanInvalid, "malformed request body", nil)
		return
	}
	if req.Plan == nil {
		writeError(w, http.StatusBadRequest, model.CodePlanInvalid, "missing plan", nil)
		return
	}

	draftID := req.DraftID
	if draftID == "" {
		draftID = uuid.NewString()
	}
	validateOnly := r.URL.Query().Get("validateOnly") == "true"

	// The top-level user must agree with the plan it claims to authorize.
	if req.UserAddress != "" && !model.SameAddress(req.UserAddress, req.Plan.User) {
		writeError(w, http.StatusBadRequest, model.CodePlanInvalid,
			"userAddress does not match plan user",
			map[string]any{"draftId": draftID, "userAddress": model.NormalizeAddress(req.UserAddress), "planUser": model.NormalizeAddress(req.Plan.User)})
		return
	}

	if err := req.Plan.Validate(s.now()); err != nil {
		var pe *model.PlanError
		if errors.As(err, &pe) {
			writeError(w, http.StatusBadRequest, pe.Code, pe.Message, map[string]any{"draftId": draftID})
			return
		}
		writeError(w, http.StatusBadRequest, model.CodePlanInvalid, err.Error(), map[string]any{"draftId": draftID})
		return
	}

	allow := s.snapshot()
	result, err := s.engine.Evaluate(r.Context(), req.Plan, allow, req.SessionID, req.Override)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
		return
	}

	// Diagnostic re-walk for the audit figure; the engine already did the
	// priced estimate, so skip a second price lookup.
	est := estimate.Plan(r.Context(), req.Plan, nil)
	spendWei := ""
	if est.SpendWei != nil {
		spendWei = est.SpendWei.String()
	}

	if !result.Allowed {
		s.recordVerdict(draftID, req, result, spendWei, "", validateOnly)
		writeDenial(w, draftID, result)
		return
	}

	if validateOnly {
		s.recordVerdict(draftID, req, result, spendWei, "", true)
		writeJSON(w, http.StatusOK, map[string]any{
			"draftId":    draftID,
			"wouldAllow": true,
		})
		return
	}

	if s.guard == nil {
		writeError(w, http.StatusServiceUnavailable, relay.CodeRelayUnavailable, "no relayer configured", map[string]any{"draftId": draftID})
		return
	}

	txHash, err := s.guard.Execute(r.Context(), req.Plan, req.SessionID, est.SpendWei)
	if err != nil {
		var se *relay.SubmitError
		if errors.As(err, &se) {
			denied := model.Deny(se.Code, se.Message, se.Details)
			s.recordVerdict(draftID, req, denied, spendWei, "", false)
			writeError(w, submitStatus(se.Code), se.Code, se.Message, withDraft(se.Details, draftID))
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), map[string]any{"draftId": draftID})
		return
	}

	s.recordVerdict(draftID, req, result, spendWei, txHash, false)
	writeJSON(w, http.StatusOK, map[string]any{
		"draftId": draftID,
		"txHash":  txHash,
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if s.oracle == nil {
		writeError(w, http.StatusServiceUnavailable, model.CodeSessionLookup, "no session index configured", nil)
		return
	}
	id := r.PathValue("id")
	status, err := s.oracle.SessionStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusBadGateway, model.CodeSessionLookup, err.Error(), nil)
		return
	}
	if status == nil {
		status = &model.SessionStatus{Status: model.SessionNotCreated}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAllowlist(w http.ResponseWriter, r *http.Request) {
	allow := s.snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"adapters": allow.Adapters(),
		"hash":     allow.Hash(),
		"count":    allow.Len(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) recordVerdict(draftID string, req executeRequest, result model.PolicyResult, spendWei, txHash string, validateOnly bool) {
	if s.auditLog == nil {
		return
	}
	decision := audit.DecisionDeny
	if result.Allowed {
		decision = audit.DecisionAllow
	}
	s.auditLog.Record(audit.Entry{
		DraftID:       draftID,
		User:          model.NormalizeAddress(req.Plan.User),
		SessionID:     req.SessionID,
		Decision:      decision,
		Code:          result.Code,
		Reason:        result.Message,
		SpendWei:      spendWei,
		AllowlistHash: s.snapshot().Hash(),
		TxHash:        txHash,
		ValidateOnly:  validateOnly,
	})
}

func submitStatus(code string) int {
	switch code {
	case relay.CodeNonceReplayed:
		return http.StatusConflict
	case relay.CodeRelayUnavailable:
		return http.StatusServiceUnavailable
	case model.CodeSessionLookup, relay.CodeRelayFailed:
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}

func withDraft(details map[string]any, draftID string) map[string]any {
	out := map[string]any{"draftId": draftID}
	for k, v := range details {
		out[k] = v
	}
	return out
}

func writeDenial(w http.ResponseWriter, draftID string, result model.PolicyResult) {
	writeError(w, http.StatusBadRequest, result.Code, result.Message, withDraft(result.Details, draftID))
}

func writeError(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	body := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	if len(details) > 0 {
		body["error"].(map[string]any)["details"] = details
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
