package relayguard

import "fmt"

// Action is one step of an execution plan.
type Action struct {
	Type    int    `json:"actionType"`
	Adapter string `json:"adapter"`
	Data    string `json:"data"`
}

// Action type values, mirroring the server's closed enum.
const (
	ActionSwap = iota
	ActionWrap
	ActionPull
	ActionLendSupply
	ActionLendBorrow
	ActionEventBuy
	ActionProof
	ActionPerp
	ActionEvent
)

// Plan is an ordered action sequence to be executed atomically for User.
type Plan struct {
	User     string   `json:"user"`
	Nonce    string   `json:"nonce"`
	Deadline int64    `json:"deadline"`
	Actions  []Action `json:"actions"`
}

// Override is the test/ops escape hatch forwarded verbatim to the server.
type Override struct {
	MaxSpendUnits    string `json:"maxSpendUnits,omitempty"`
	SkipSessionCheck bool   `json:"skipSessionCheck,omitempty"`
}

// ExecuteRequest is the body of POST /v1/relay/execute.
type ExecuteRequest struct {
	DraftID     string    `json:"draftId,omitempty"`
	UserAddress string    `json:"userAddress,omitempty"`
	SessionID   string    `json:"sessionId,omitempty"`
	Plan        Plan      `json:"plan"`
	Override    *Override `json:"policyOverride,omitempty"`
}

// ExecuteResult is a successful execution response.
type ExecuteResult struct {
	DraftID string `json:"draftId"`
	TxHash  string `json:"txHash"`
}

// ValidateResult is a successful dry-run response. It never carries a
// transaction hash.
type ValidateResult struct {
	DraftID    string `json:"draftId"`
	WouldAllow bool   `json:"wouldAllow"`
}

// SessionStatus mirrors the server's delegation snapshot.
type SessionStatus struct {
	Active    bool   `json:"active"`
	Owner     string `json:"owner"`
	Executor  string `json:"executor"`
	ExpiresAt int64  `json:"expiresAt"`
	MaxSpend  string `json:"maxSpend"`
	Spent     string `json:"spent"`
	Status    string `json:"status"`
}

// Allowlist is the server's adapter allowlist snapshot.
type Allowlist struct {
	Adapters []string `json:"adapters"`
	Hash     string   `json:"hash"`
	Count    int      `json:"count"`
}

// DenialError carries a structured refusal from the server: a policy
// denial, a plan validation failure, or a submission-stage rejection.
type DenialError struct {
	StatusCode int
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

func (e *DenialError) Error() string {
	return fmt.Sprintf("relayguard denied (%s): %s", e.Code, e.Message)
}
