// Package relay carries an approved plan to the relayer for on-chain
// submission. The policy engine decides; this package acts. The Guard
// reserves the nonce and re-checks the spend budget between verdict and
// broadcast, closing the window where two concurrent requests could both
// pass against a stale spent figure.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/relayguard/relayguard/internal/model"
)

// Submitter broadcasts an approved plan and returns the transaction hash.
type Submitter interface {
	Submit(ctx context.Context, plan *model.Plan, sessionID string) (string, error)
}

// SubmitError is a structured submission failure that maps to a client-facing
// error code rather than a bare 5xx.
type SubmitError struct {
	Code    string
	Message string
	Details map[string]any
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Submission error codes.
const (
	CodeNonceReplayed    = "NONCE_REPLAYED"
	CodeRelayUnavailable = "RELAY_UNAVAILABLE"
	CodeRelayFailed      = "RELAY_FAILED"
)

// HTTPSubmitter posts plans to the relayer service, which owns key material
// and RPC failover. Transport-level retry is the relayer's concern, not ours.
type HTTPSubmitter struct {
	endpoint string
	http     *http.Client
}

// NewHTTPSubmitter creates a submitter for the relayer endpoint.
func NewHTTPSubmitter(endpoint string, timeout time.Duration) *HTTPSubmitter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSubmitter{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
	}
}

type submitRequest struct {
	SessionID string      `json:"sessionId"`
	Plan      *model.Plan `json:"plan"`
}

type submitResponse struct {
	TxHash string `json:"txHash"`
	Error  string `json:"error,omitempty"`
}

// Submit posts the plan to the relayer and returns the broadcast hash.
func (s *HTTPSubmitter) Submit(ctx context.Context, plan *model.Plan, sessionID string) (string, error) {
	body, err := json.Marshal(submitRequest{SessionID: sessionID, Plan: plan})
	if err != nil {
		return "", fmt.Errorf("relay: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+"/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("relay: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", &SubmitError{Code: CodeRelayUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", &SubmitError{Code: CodeRelayFailed, Message: fmt.Sprintf("undecodable relayer response (%d)", resp.StatusCode)}
	}

	if resp.StatusCode != http.StatusOK {
		msg := sr.Error
		if msg == "" {
			msg = fmt.Sprintf("relayer returned %d", resp.StatusCode)
		}
		return "", &SubmitError{Code: CodeRelayFailed, Message: msg}
	}
	if sr.TxHash == "" {
		return "", &SubmitError{Code: CodeRelayFailed, Message: "relayer returned no transaction hash"}
	}
	return sr.TxHash, nil
}
