package policy

import (
	"context"

	"github.com/relayguard/relayguard/internal/allowlist"
	"github.com/relayguard/relayguard/internal/model"
)

// Validation is the dry-run verdict. WouldAllow mirrors Result.Allowed; the
// caller contract is that a validate-only evaluation never leads to a
// transaction submission and its response never carries a transaction hash.
type Validation struct {
	WouldAllow bool               `json:"wouldAllow"`
	Result     model.PolicyResult `json:"result"`
}

// ValidateOnly runs the exact evaluation pipeline with no side effects.
// The engine itself has none, so this is a contract marker for callers
// (pre-flight UX, integration harnesses) rather than a special code path.
func (e *Engine) ValidateOnly(ctx context.Context, plan *model.Plan, allow *allowlist.Allowlist, sessionID string, override *model.PolicyOverride) (Validation, error) {
	result, err := e.Evaluate(ctx, plan, allow, sessionID, override)
	if err != nil {
		return Validation{}, err
	}
	return Validation{WouldAllow: result.Allowed, Result: result}, nil
}
