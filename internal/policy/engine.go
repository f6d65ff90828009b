// Package policy decides whether a relayed execution request may proceed.
// The engine is a pure decision function: every evaluation takes all required
// state (plan, allowlist, oracle, override) as explicit parameters, holds no
// ambient session cache, and never mutates anything it reads.
package policy

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/relayguard/relayguard/internal/allowlist"
	"github.com/relayguard/relayguard/internal/estimate"
	"github.com/relayguard/relayguard/internal/model"
	"github.com/relayguard/relayguard/internal/session"
)

// Engine evaluates plans against the adapter allowlist, the delegated
// session, and the spend policy. Safe for concurrent use; it carries no
// per-call state.
type Engine struct {
	oracle session.Oracle
	prices estimate.PriceFunc
	now    func() time.Time
}

// NewEngine creates an engine. prices is optional (best-effort USD figures
// only); oracle may be nil only if every evaluation skips the session stage.
func NewEngine(oracle session.Oracle, prices estimate.PriceFunc) *Engine {
	return &Engine{
		oracle: oracle,
		prices: prices,
		now:    time.Now,
	}
}

// Evaluate runs the policy pipeline for one plan.
//
// Stage order (must not be changed):
//  1. Adapter allowlist — cheapest check, blocks arbitrary contract calls
//     before any session or spend work.
//  2. Session check — delegation active, unexpired, owned by the plan's user.
//     Skipped only by an explicit override.SkipSessionCheck.
//  3. Spend determinability and cap — undeterminable spend is denied outright;
//     determinable spend must fit the effective cap.
//
// Each stage is terminal on failure. Policy outcomes are always returned as a
// structured result; the error return is reserved for configuration bugs
// (nil allowlist, missing oracle) that callers must treat as fatal, not as
// user-facing denials.
func (e *Engine) Evaluate(ctx context.Context, plan *model.Plan, allow *allowlist.Allowlist, sessionID string, override *model.PolicyOverride) (model.PolicyResult, error) {
	if plan == nil {
		return model.PolicyResult{}, fmt.Errorf("policy: nil plan")
	}
	if allow == nil {
		return model.PolicyResult{}, fmt.Errorf("policy: nil allowlist")
	}

	// Stage 1: adapter allowlist. First unmatched adapter is terminal.
	for _, a := range plan.Actions {
		if !allow.Contains(a.Adapter) {
			return model.Deny(
				model.CodeAdapterNotAllowed,
				fmt.Sprintf("adapter %s is not allowlisted", model.NormalizeAddress(a.Adapter)),
				map[string]any{
					"adapter":         model.NormalizeAddress(a.Adapter),
					"allowedAdapters": allow.Adapters(),
				},
			), nil
		}
	}

	// Stage 2: session check. A spend-cap override does not imply skipping
	// this stage; the caller must ask for the bypass explicitly.
	var status *model.SessionStatus
	skipSession := override != nil && override.SkipSessionCheck
	if !skipSession {
		if e.oracle == nil {
			return model.PolicyResult{}, fmt.Errorf("policy: session oracle not configured")
		}

		var err error
		status, err = e.oracle.SessionStatus(ctx, sessionID)
		if err != nil {
			// Oracle failure is not a policy opinion about the session,
			// but it must still fail closed.
			return model.Deny(
				model.CodeSessionLookup,
				fmt.Sprintf("session lookup failed for %s", sessionID),
				map[string]any{"sessionId": sessionID, "cause": err.Error()},
			), nil
		}

		if verdict, ok := checkSession(plan, sessionID, status, e.now()); !ok {
			return verdict, nil
		}
	}

	// Stage 3: spend determinability and cap.
	est := estimate.Plan(ctx, plan, e.prices)
	if !est.Determinable {
		return model.Deny(
			model.CodeUndeterminedSpend,
			"plan contains at least one action whose spend cannot be bounded",
			map[string]any{
				"spendLowerBoundWei": est.SpendWei.String(),
				"instrumentType":     string(est.Instrument),
			},
		), nil
	}

	capWei, verdict := effectiveCap(status, override, est)
	if capWei == nil {
		return verdict, nil
	}

	if est.SpendWei.Cmp(capWei) > 0 {
		return model.Deny(
			model.CodePolicyExceeded,
			fmt.Sprintf("plan spend %s wei exceeds remaining budget %s wei", est.SpendWei, capWei),
			map[string]any{
				"spendAttempted": est.SpendWei.String(),
				"remaining":      capWei.String(),
			},
		), nil
	}

	return model.Allow(), nil
}

// checkSession validates the delegation snapshot against the plan.
// Returns (verdict, false) on denial.
func checkSession(plan *model.Plan, sessionID string, status *model.SessionStatus, now time.Time) (model.PolicyResult, bool) {
	if status == nil {
		return model.Deny(
			model.CodeSessionNotActive,
			fmt.Sprintf("session %s was never created", sessionID),
			map[string]any{"sessionId": sessionID, "status": string(model.SessionNotCreated)},
		), false
	}

	if !status.Usable(now) {
		return model.Deny(
			model.CodeSessionNotActive,
			fmt.Sprintf("session %s is not active", sessionID),
			map[string]any{
				"sessionId": sessionID,
				"status":    string(status.Status),
				"active":    status.Active,
				"expiresAt": status.ExpiresAt,
			},
		), false
	}

	if !model.SameAddress(plan.User, status.Owner) {
		return model.Deny(
			model.CodeSessionMismatch,
			"plan user does not match session owner",
			map[string]any{
				"user":  model.NormalizeAddress(plan.User),
				"owner": model.NormalizeAddress(status.Owner),
			},
		), false
	}

	return model.PolicyResult{}, true
}

// effectiveCap resolves the spend cap: an explicit override wins, otherwise
// the session's remaining budget. Any parse failure, or a bypassed session
// with no override cap, fails closed as POLICY_EXCEEDED — never open.
func effectiveCap(status *model.SessionStatus, override *model.PolicyOverride, est model.SpendEstimate) (*big.Int, model.PolicyResult) {
	if override != nil && override.MaxSpendUnits != "" {
		capWei, err := model.ParseWei(override.MaxSpendUnits)
		if err != nil {
			return nil, model.Deny(
				model.CodePolicyExceeded,
				fmt.Sprintf("unparseable override cap %q", override.MaxSpendUnits),
				map[string]any{
					"spendAttempted": est.SpendWei.String(),
					"remaining":      "0",
					"cause":          err.Error(),
				},
			)
		}
		return capWei, model.PolicyResult{}
	}

	if status == nil {
		return nil, model.Deny(
			model.CodePolicyExceeded,
			"session check skipped and no override cap supplied: no spend budget available",
			map[string]any{
				"spendAttempted": est.SpendWei.String(),
				"remaining":      "0",
			},
		)
	}

	maxSpend, err := model.ParseWei(status.MaxSpend)
	if err == nil {
		var spent *big.Int
		spent, err = model.ParseWei(status.Spent)
		if err == nil {
			remaining := new(big.Int).Sub(maxSpend, spent)
			if remaining.Sign() < 0 {
				remaining.SetInt64(0)
			}
			return remaining, model.PolicyResult{}
		}
	}

	return nil, model.Deny(
		model.CodePolicyExceeded,
		"session spend figures are unparseable",
		map[string]any{
			"spendAttempted": est.SpendWei.String(),
			"remaining":      "0",
			"cause":          err.Error(),
		},
	)
}
