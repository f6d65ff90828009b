package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"

	"github.com/relayguard/relayguard/internal/ledger"
	"github.com/relayguard/relayguard/internal/model"
	"github.com/relayguard/relayguard/internal/session"
)

// Guard serializes the path between a policy allow and the broadcast. It
// reserves the (session, nonce) pair first, then re-checks the spend budget
// against a fresh session status plus whatever other executions are already
// in flight for the same session. Two concurrent requests that each passed
// the policy check against the same stale spent figure cannot both clear
// this second gate.
type Guard struct {
	ledger    *ledger.Ledger
	submitter Submitter
	oracle    session.Oracle
}

// NewGuard wires the guard. oracle may be nil when no session index is
// configured; the budget re-check is then skipped and only nonce replay
// protection applies.
func NewGuard(l *ledger.Ledger, s Submitter, o session.Oracle) *Guard {
	return &Guard{ledger: l, submitter: s, oracle: o}
}

// Execute reserves, re-checks, submits and records the plan. spendWei is the
// determinable lower bound the policy engine computed; it is what gets
// charged against the session budget for the in-flight window.
func (g *Guard) Execute(ctx context.Context, plan *model.Plan, sessionID string, spendWei *big.Int) (string, error) {
	if plan == nil {
		return "", errors.New("relay: nil plan")
	}
	if spendWei == nil {
		spendWei = new(big.Int)
	}

	if err := g.ledger.Reserve(ctx, sessionID, plan.Nonce, plan.User, spendWei); err != nil {
		if errors.Is(err, ledger.ErrDuplicateNonce) {
			// Idempotent replay: if the earlier attempt made it on-chain,
			// hand back its hash instead of an error.
			if hash, herr := g.ledger.TxHash(ctx, sessionID, plan.Nonce); herr == nil && hash != "" {
				return hash, nil
			}
			return "", &SubmitError{
				Code:    CodeNonceReplayed,
				Message: fmt.Sprintf("nonce %s already in flight for session", plan.Nonce),
			}
		}
		return "", err
	}

	if err := g.recheckBudget(ctx, sessionID, plan.Nonce, spendWei); err != nil {
		g.release(ctx, sessionID, plan.Nonce)
		return "", err
	}

	hash, err := g.submitter.Submit(ctx, plan, sessionID)
	if err != nil {
		g.release(ctx, sessionID, plan.Nonce)
		return "", err
	}

	if err := g.ledger.MarkSubmitted(ctx, sessionID, plan.Nonce, hash); err != nil {
		// The transaction is out; losing the record is a bookkeeping
		// failure, not a reason to report the submission as failed.
		return hash, nil
	}
	return hash, nil
}

func (g *Guard) recheckBudget(ctx context.Context, sessionID, nonce string, spendWei *big.Int) error {
	if g.oracle == nil || sessionID == "" {
		return nil
	}

	status, err := g.oracle.SessionStatus(ctx, sessionID)
	if err != nil {
		return &SubmitError{Code: model.CodeSessionLookup, Message: err.Error()}
	}
	if status == nil {
		return nil
	}

	maxSpend, err := model.ParseWei(status.MaxSpend)
	if err != nil {
		return &SubmitError{Code: model.CodePolicyExceeded, Message: "session max spend unparseable"}
	}
	spent, err := model.ParseWei(status.Spent)
	if err != nil {
		return &SubmitError{Code: model.CodePolicyExceeded, Message: "session spent figure unparseable"}
	}

	pending, err := g.ledger.PendingSpend(ctx, sessionID, nonce)
	if err != nil {
		return err
	}

	remaining := new(big.Int).Sub(maxSpend, spent)
	remaining.Sub(remaining, pending)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}

	if spendWei.Cmp(remaining) > 0 {
		return &SubmitError{
			Code:    model.CodePolicyExceeded,
			Message: "spend would exceed session budget after in-flight executions",
			Details: map[string]any{
				"spendAttempted":  spendWei.String(),
				"remaining":       remaining.String(),
				"pendingInFlight": pending.String(),
			},
		}
	}
	return nil
}

func (g *Guard) release(ctx context.Context, sessionID, nonce string) {
	if err := g.ledger.Release(ctx, sessionID, nonce); err != nil {
		log.Printf("relay: release %s/%s failed: %v", sessionID, nonce, err)
	}
}
