package relayguard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testPlan() Plan {
	return Plan{
		User:  "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Nonce: "1",
		Actions: []Action{
			{Type: ActionSwap, Adapter: "0x1111111111111111111111111111111111111111", Data: "0x"},
		},
	}
}

func TestExecuteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/relay/execute" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req ExecuteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.SessionID != "sess-1" {
			t.Errorf("sessionId = %q", req.SessionID)
		}
		json.NewEncoder(w).Encode(ExecuteResult{DraftID: "d-1", TxHash: "0xfeed"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Execute(context.Background(), ExecuteRequest{SessionID: "sess-1", Plan: testPlan()})
	if err != nil {
		t.Fatal(err)
	}
	if result.TxHash != "0xfeed" {
		t.Errorf("txHash = %q", result.TxHash)
	}
}

func TestExecuteWireFieldNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["userAddress"] != "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
			t.Errorf("userAddress = %v", body["userAddress"])
		}
		if _, ok := body["policyOverride"]; !ok {
			t.Error("expected override under policyOverride")
		}
		json.NewEncoder(w).Encode(ExecuteResult{DraftID: "d-1", TxHash: "0x1"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Execute(context.Background(), ExecuteRequest{
		UserAddress: "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		SessionID:   "sess-1",
		Plan:        testPlan(),
		Override:    &Override{SkipSessionCheck: true},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestExecuteDenialSurfacesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"code":    "ADAPTER_NOT_ALLOWED",
				"message": "adapter not on allowlist",
				"details": map[string]any{"adapter": "0xdead"},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Execute(context.Background(), ExecuteRequest{Plan: testPlan()})

	var denial *DenialError
	if !errors.As(err, &denial) {
		t.Fatalf("expected DenialError, got %v", err)
	}
	if denial.Code != "ADAPTER_NOT_ALLOWED" {
		t.Errorf("code = %q", denial.Code)
	}
	if denial.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", denial.StatusCode)
	}
	if denial.Details["adapter"] != "0xdead" {
		t.Errorf("details = %v", denial.Details)
	}
}

func TestValidateSetsQueryFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("validateOnly") != "true" {
			t.Error("expected validateOnly=true")
		}
		json.NewEncoder(w).Encode(ValidateResult{DraftID: "d-1", WouldAllow: true})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Validate(context.Background(), ExecuteRequest{Plan: testPlan()})
	if err != nil {
		t.Fatal(err)
	}
	if !result.WouldAllow {
		t.Error("expected wouldAllow")
	}
}

func TestValidateDenialStillReportsVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "POLICY_EXCEEDED", "message": "over budget"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.Validate(context.Background(), ExecuteRequest{Plan: testPlan()})
	if err == nil {
		t.Fatal("expected error")
	}
	if result == nil || result.WouldAllow {
		t.Fatalf("expected wouldAllow=false result, got %+v", result)
	}
	var denial *DenialError
	if !errors.As(err, &denial) || denial.Code != "POLICY_EXCEEDED" {
		t.Fatalf("expected POLICY_EXCEEDED denial, got %v", err)
	}
}

func TestSessionLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/sess-1" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(SessionStatus{Active: true, Status: "active", MaxSpend: "1000"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	status, err := c.Session(context.Background(), "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if !status.Active || status.MaxSpend != "1000" {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestSessionEmptyID(t *testing.T) {
	c := New("http://example.invalid")
	if _, err := c.Session(context.Background(), ""); err == nil {
		t.Error("expected error for empty session id")
	}
}

func TestAllowlistFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Allowlist{
			Adapters: []string{"0x1111111111111111111111111111111111111111"},
			Hash:     "sha256:abc",
			Count:    1,
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	al, err := c.Allowlist(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if al.Count != 1 || al.Hash != "sha256:abc" {
		t.Errorf("unexpected allowlist: %+v", al)
	}
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	if !New(srv.URL).Healthy(context.Background()) {
		t.Error("expected healthy")
	}
	if New("http://127.0.0.1:1").Healthy(context.Background()) {
		t.Error("expected unhealthy for unreachable server")
	}
}

func TestUndecodableErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Execute(context.Background(), ExecuteRequest{Plan: testPlan()})
	if err == nil {
		t.Fatal("expected error")
	}
	var denial *DenialError
	if errors.As(err, &denial) {
		t.Fatal("garbage body must not produce a DenialError")
	}
}
