package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/relayguard/relayguard/internal/estimate"
	"github.com/relayguard/relayguard/internal/model"
)

// --- Input/Output types ---

// CheckInput defines parameters for the relayguard_check tool.
type CheckInput struct {
	SessionID string                `json:"sessionId,omitempty" jsonschema:"session delegation to evaluate against"`
	Plan      *model.Plan           `json:"plan" jsonschema:"execution plan: user, nonce, deadline, actions"`
	Override  *model.PolicyOverride `json:"override,omitempty" jsonschema:"optional cap override or session-check skip"`
}

// CheckOutput contains the dry-run verdict.
type CheckOutput struct {
	DraftID    string         `json:"draft_id"`
	WouldAllow bool           `json:"would_allow"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	SpendWei   string         `json:"spend_wei,omitempty"`
}

// SessionInput defines parameters for the relayguard_session tool.
type SessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"session identifier to look up"`
}

// SessionOutput describes a delegation snapshot.
type SessionOutput struct {
	Status    string `json:"status"`
	Active    bool   `json:"active"`
	Owner     string `json:"owner,omitempty"`
	Executor  string `json:"executor,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	MaxSpend  string `json:"max_spend,omitempty"`
	Spent     string `json:"spent,omitempty"`
}

// AllowlistInput is empty, the tool takes no parameters.
type AllowlistInput struct{}

// AllowlistOutput lists allowed adapter contracts.
type AllowlistOutput struct {
	Adapters []string `json:"adapters"`
	Hash     string   `json:"hash"`
	Count    int      `json:"count"`
}

// --- Handlers ---

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	draftID := uuid.NewString()

	if input.Plan == nil {
		out := CheckOutput{
			DraftID: draftID,
			Code:    model.CodePlanInvalid,
			Message: "missing plan",
		}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	if err := input.Plan.Validate(time.Now()); err != nil {
		out := CheckOutput{DraftID: draftID, Message: err.Error()}
		if pe, ok := err.(*model.PlanError); ok {
			out.Code = pe.Code
			out.Message = pe.Message
		}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	result, err := s.engine.Evaluate(ctx, input.Plan, s.allow, input.SessionID, input.Override)
	if err != nil {
		return nil, CheckOutput{}, err
	}

	est := estimate.Plan(ctx, input.Plan, nil)
	spendWei := ""
	if est.SpendWei != nil {
		spendWei = est.SpendWei.String()
	}

	decision := "deny"
	if result.Allowed {
		decision = "allow"
	}
	s.recordAudit(draftID, model.NormalizeAddress(input.Plan.User), input.SessionID, decision, result.Code, result.Message, spendWei)

	out := CheckOutput{
		DraftID:    draftID,
		WouldAllow: result.Allowed,
		Code:       result.Code,
		Message:    result.Message,
		Details:    result.Details,
		SpendWei:   spendWei,
	}
	if !result.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleSession(ctx context.Context, req *mcpsdk.CallToolRequest, input SessionInput) (*mcpsdk.CallToolResult, SessionOutput, error) {
	if s.oracle == nil {
		out := SessionOutput{Status: string(model.SessionNotCreated)}
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	status, err := s.oracle.SessionStatus(ctx, input.SessionID)
	if err != nil {
		return nil, SessionOutput{}, err
	}
	if status == nil {
		return nil, SessionOutput{Status: string(model.SessionNotCreated)}, nil
	}

	return nil, SessionOutput{
		Status:    string(status.Status),
		Active:    status.Active,
		Owner:     status.Owner,
		Executor:  status.Executor,
		ExpiresAt: status.ExpiresAt,
		MaxSpend:  status.MaxSpend,
		Spent:     status.Spent,
	}, nil
}

func (s *Server) handleAllowlist(ctx context.Context, req *mcpsdk.CallToolRequest, input AllowlistInput) (*mcpsdk.CallToolResult, AllowlistOutput, error) {
	return nil, AllowlistOutput{
		Adapters: s.allow.Adapters(),
		Hash:     s.allow.Hash(),
		Count:    s.allow.Len(),
	}, nil
}
