package audit

// Entry is one verdict line in the hash-chained JSONL audit log.
// All fields are flat (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp     string `json:"ts"`
	DraftID       string `json:"draft_id"`
	User          string `json:"user"`
	SessionID     string `json:"session_id,omitempty"`
	Decision      string `json:"decision"`
	Code          string `json:"code,omitempty"`
	Reason        string `json:"reason,omitempty"`
	SpendWei      string `json:"spend_wei,omitempty"`
	AllowlistHash string `json:"allowlist_hash,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	ValidateOnly  bool   `json:"validate_only,omitempty"`
	PrevHash      string `json:"prev_hash"`
}

// Decision values.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)
