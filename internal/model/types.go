package model

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ActionType identifies what kind of on-chain operation a plan step performs.
// The enum is closed: values outside the known set decode as "present but
// undeterminable", never as an error.
type ActionType uint8

const (
	ActionSwap       ActionType = 0
	ActionWrap       ActionType = 1
	ActionPull       ActionType = 2
	ActionLendSupply ActionType = 3
	ActionLendBorrow ActionType = 4
	ActionEventBuy   ActionType = 5
	ActionProof      ActionType = 6
	ActionPerp       ActionType = 7
	ActionEvent      ActionType = 8
)

// Known reports whether t is inside the closed enum.
func (t ActionType) Known() bool {
	return t <= ActionEvent
}

func (t ActionType) String() string {
	switch t {
	case ActionSwap:
		return "swap"
	case ActionWrap:
		return "wrap"
	case ActionPull:
		return "pull"
	case ActionLendSupply:
		return "lend_supply"
	case ActionLendBorrow:
		return "lend_borrow"
	case ActionEventBuy:
		return "event_buy"
	case ActionProof:
		return "proof"
	case ActionPerp:
		return "perp"
	case ActionEvent:
		return "event"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Action is one step of a plan: a call into an adapter contract with opaque
// ABI-encoded call data (0x-prefixed hex).
type Action struct {
	Type    ActionType `json:"actionType"`
	Adapter string     `json:"adapter"`
	Data    string     `json:"data"`
}

// Plan is an ordered sequence of actions representing one atomic proposed
// transaction on behalf of User.
type Plan struct {
	User     string   `json:"user"`
	Nonce    string   `json:"nonce"`
	Deadline int64    `json:"deadline"`
	Actions  []Action `json:"actions"`
}

// Caller-error codes surfaced before the policy engine runs.
const (
	CodePlanInvalid = "PLAN_INVALID"
	CodePlanExpired = "PLAN_EXPIRED"
)

// PlanError is a caller error detected during structural validation.
// It is distinct from a policy denial: the plan never reached the engine.
type PlanError struct {
	Code    string
	Message string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validate rejects structurally meaningless plans before policy evaluation:
// zero actions, malformed user address, or a deadline already in the past.
func (p *Plan) Validate(now time.Time) error {
	if len(p.Actions) == 0 {
		return &PlanError{Code: CodePlanInvalid, Message: "plan has no actions"}
	}
	if !IsAddress(p.User) {
		return &PlanError{Code: CodePlanInvalid, Message: fmt.Sprintf("invalid user address %q", p.User)}
	}
	for i, a := range p.Actions {
		if !IsAddress(a.Adapter) {
			return &PlanError{Code: CodePlanInvalid, Message: fmt.Sprintf("action %d: invalid adapter address %q", i, a.Adapter)}
		}
	}
	if p.Deadline > 0 && p.Deadline < now.Unix() {
		return &PlanError{Code: CodePlanExpired, Message: fmt.Sprintf("plan deadline %d is in the past", p.Deadline)}
	}
	return nil
}

// SessionState is the single source of truth for a delegation's lifecycle.
type SessionState string

const (
	SessionActive     SessionState = "active"
	SessionExpired    SessionState = "expired"
	SessionRevoked    SessionState = "revoked"
	SessionNotCreated SessionState = "not_created"
)

// SessionStatus is a point-in-time snapshot of an on-chain delegation.
// MaxSpend and Spent are wei encoded as decimal strings.
type SessionStatus struct {
	Active    bool         `json:"active"`
	Owner     string       `json:"owner"`
	Executor  string       `json:"executor"`
	ExpiresAt int64        `json:"expiresAt"`
	MaxSpend  string       `json:"maxSpend"`
	Spent     string       `json:"spent"`
	Status    SessionState `json:"status"`
}

// Usable reports whether the session can authorize execution at the given
// time. Status is authoritative; the Active flag and the expiry timestamp are
// cross-checked so a stale flag or a stale status can each independently fail
// the session closed.
func (s *SessionStatus) Usable(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != SessionActive || !s.Active {
		return false
	}
	if s.ExpiresAt > 0 && s.ExpiresAt < now.Unix() {
		return false
	}
	return true
}

// Instrument classifies what kind of economic exposure a plan represents.
type Instrument string

const (
	InstrumentSwap  Instrument = "swap"
	InstrumentPerp  Instrument = "perp"
	InstrumentDefi  Instrument = "defi"
	InstrumentEvent Instrument = "event"
)

// SpendEstimate is the spend estimator's output. When Determinable is false,
// SpendWei is a non-authoritative lower bound, never "no spend".
type SpendEstimate struct {
	SpendWei     *big.Int
	SpendUSD     float64
	HasUSD       bool
	Determinable bool
	Instrument   Instrument
}

// PolicyOverride is a test/ops escape hatch. MaxSpendUnits replaces the
// session-derived spend cap; SkipSessionCheck bypasses the oracle lookup.
// The two are independent: an explicit cap does not imply skipping the
// session stage.
type PolicyOverride struct {
	MaxSpendUnits    string `json:"maxSpendUnits,omitempty"`
	SkipSessionCheck bool   `json:"skipSessionCheck,omitempty"`
}

// Policy denial codes. Every denial carries exactly one.
const (
	CodeAdapterNotAllowed = "ADAPTER_NOT_ALLOWED"
	CodeSessionNotActive  = "SESSION_NOT_ACTIVE"
	CodeSessionMismatch   = "SESSION_USER_MISMATCH"
	CodeSessionLookup     = "SESSION_LOOKUP_FAILED"
	CodeUndeterminedSpend = "POLICY_UNDETERMINED_SPEND"
	CodePolicyExceeded    = "POLICY_EXCEEDED"
)

// PolicyResult is the policy engine's verdict. Allowed implies Code and
// Message are empty; a denial always carries a Code and enough Details for
// the caller to explain the rejection without re-deriving it.
type PolicyResult struct {
	Allowed bool           `json:"allowed"`
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Deny builds a denial verdict.
func Deny(code, message string, details map[string]any) PolicyResult {
	return PolicyResult{Allowed: false, Code: code, Message: message, Details: details}
}

// Allow is the single success verdict.
func Allow() PolicyResult {
	return PolicyResult{Allowed: true}
}

// IsAddress reports whether s looks like a 20-byte EVM address
// (0x-prefixed, 40 hex characters).
func IsAddress(s string) bool {
	if len(s) != 42 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// NormalizeAddress lower-cases an address for canonical comparison.
func NormalizeAddress(s string) string {
	return strings.ToLower(s)
}

// SameAddress compares two addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// ParseWei parses a non-negative decimal wei amount. Used for session caps,
// spent-to-date figures, and override caps; any parse failure must be treated
// by callers as fail-closed, never as zero.
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty wei value")
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei value %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative wei value %q", s)
	}
	return n, nil
}
