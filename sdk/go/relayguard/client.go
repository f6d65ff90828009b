package relayguard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a thin HTTP client for the relayguard API.
// Safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	cfg := clientConfig{
		timeout:   10 * time.Second,
		userAgent: "relayguard-go/0.1",
	}
	for _, o := range opts {
		o(&cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      hc,
		userAgent: cfg.userAgent,
	}
}

// Execute submits a plan for policy evaluation and relayed execution.
// A refusal of any kind is returned as *DenialError.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	var out ExecuteResult
	if err := c.post(ctx, "/v1/relay/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate runs the full policy pipeline without submitting anything.
func (c *Client) Validate(ctx context.Context, req ExecuteRequest) (*ValidateResult, error) {
	var out ValidateResult
	err := c.post(ctx, "/v1/relay/execute?validateOnly=true", req, &out)
	if err != nil {
		var denial *DenialError
		// A denial still answers the question the caller asked.
		if errors.As(err, &denial) {
			return &ValidateResult{WouldAllow: false}, err
		}
		return nil, err
	}
	return &out, nil
}

// Session fetches the delegation status for a session.
func (c *Client) Session(ctx context.Context, sessionID string) (*SessionStatus, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("relayguard: empty session id")
	}
	var out SessionStatus
	if err := c.get(ctx, "/v1/sessions/"+url.PathEscape(sessionID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Allowlist fetches the current adapter allowlist and its content hash.
func (c *Client) Allowlist(ctx context.Context) (*Allowlist, error) {
	var out Allowlist
	if err := c.get(ctx, "/v1/allowlist", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Healthy reports whether the server answers its health check.
func (c *Client) Healthy(ctx context.Context) bool {
	var out map[string]any
	return c.get(ctx, "/healthz", &out) == nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("relayguard: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("relayguard: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("relayguard: build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("relayguard: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var wrapper struct {
			Error DenialError `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil || wrapper.Error.Code == "" {
			return fmt.Errorf("relayguard: server returned %d", resp.StatusCode)
		}
		denial := wrapper.Error
		denial.StatusCode = resp.StatusCode
		return &denial
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("relayguard: decode response: %w", err)
	}
	return nil
}
