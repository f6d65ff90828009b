// Package session resolves on-chain delegation state. The policy engine
// consumes the Oracle as an injected capability; it never mutates session
// state itself — spend accounting happens out-of-band after submission.
package session

import (
	"context"

	"github.com/relayguard/relayguard/internal/model"
)

// Oracle looks up the delegation snapshot for a session.
//
// A nil status with a nil error means the session was never created.
// An error means the lookup itself failed; callers must fail closed and must
// not retry inside the policy path.
type Oracle interface {
	SessionStatus(ctx context.Context, sessionID string) (*model.SessionStatus, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, sessionID string) (*model.SessionStatus, error)

func (f Func) SessionStatus(ctx context.Context, sessionID string) (*model.SessionStatus, error) {
	return f(ctx, sessionID)
}
