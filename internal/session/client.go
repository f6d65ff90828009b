package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/relayguard/relayguard/internal/model"
)

// Client is an HTTP Oracle backed by the session-index service, which tracks
// delegation state from chain events. The hard timeout keeps a hung index
// from stalling the policy pipeline; a timeout surfaces as a lookup error,
// which the engine treats as a fail-closed denial.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a session-index client. A non-positive timeout defaults
// to 3 seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// SessionStatus fetches the delegation snapshot. 404 means the session was
// never created and maps to (nil, nil); every other failure is a lookup error.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*model.SessionStatus, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session: empty session id")
	}

	endpoint := c.baseURL + "/v1/sessions/" + url.PathEscape(sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("session: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: lookup %s: %w", sessionID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var st model.SessionStatus
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return nil, fmt.Errorf("session: decode status: %w", err)
		}
		return &st, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("session: index returned %d for %s", resp.StatusCode, sessionID)
	}
}
