package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relayguard/relayguard/internal/model"
)

func TestClientFetchesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions/sess-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{
			"active": true,
			"owner": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			"executor": "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			"expiresAt": 1900000000,
			"maxSpend": "1000000000000000000",
			"spent": "0",
			"status": "active"
		}`)
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL, time.Second).SessionStatus(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st == nil {
		t.Fatal("expected status")
	}
	if st.Status != model.SessionActive {
		t.Errorf("status = %s, want active", st.Status)
	}
	if st.MaxSpend != "1000000000000000000" {
		t.Errorf("maxSpend = %s", st.MaxSpend)
	}
}

func TestClientNotFoundMeansNotCreated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL, time.Second).SessionStatus(context.Background(), "missing")
	if err != nil {
		t.Fatalf("404 must not be an error, got %v", err)
	}
	if st != nil {
		t.Error("404 must map to a nil (not_created) status")
	}
}

func TestClientServerErrorIsLookupFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second).SessionStatus(context.Background(), "sess-1"); err == nil {
		t.Error("expected lookup failure on 500")
	}
}

func TestClientEmptySessionID(t *testing.T) {
	if _, err := NewClient("http://localhost:1", time.Second).SessionStatus(context.Background(), ""); err == nil {
		t.Error("expected error for empty session id")
	}
}

func TestMemoryOracle(t *testing.T) {
	m := NewMemory()
	m.Set("s1", &model.SessionStatus{Active: true, Status: model.SessionActive})

	st, err := m.SessionStatus(context.Background(), "s1")
	if err != nil || st == nil || st.Status != model.SessionActive {
		t.Errorf("got %+v, %v", st, err)
	}

	st, err = m.SessionStatus(context.Background(), "unknown")
	if err != nil || st != nil {
		t.Errorf("unknown id must be (nil, nil), got %+v, %v", st, err)
	}
}
