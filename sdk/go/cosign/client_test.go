package cosign

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientRunLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/session":
			var req struct {
				Wallet string `json:"wallet"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decode connect request: %v", err)
			}
			_ = json.NewEncoder(w).Encode(Session{Wallet: req.Wallet, Address: "0x1111111111111111111111111111111111111111"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/runs":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(Run{ID: "run-1", Stage: "idle"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/runs/run-1/create":
			_ = json.NewEncoder(w).Encode(Run{ID: "run-1", Stage: "tx_created"})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/runs/run-1/logs":
			_ = json.NewEncoder(w).Encode([]LogEntry{{Seq: 1, Level: "INFO", Message: "ok"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()

	session, err := client.Connect(ctx, "primary")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if session.Wallet != "primary" {
		t.Fatalf("unexpected session: %+v", session)
	}

	run, err := client.CreateRun(ctx, RunRequest{})
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if run.ID != "run-1" || run.Stage != "idle" {
		t.Fatalf("unexpected run: %+v", run)
	}

	run, err = client.CreateTransaction(ctx, run.ID)
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if run.Stage != "tx_created" {
		t.Fatalf("unexpected stage: %s", run.Stage)
	}

	entries, err := client.Logs(ctx, run.ID)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "ok" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"code":  "RUN_NOT_FOUND",
			"error": "流程运行不存在",
		})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetRun(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Code != "RUN_NOT_FOUND" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("://bad", nil); err == nil {
		t.Fatal("invalid base url must be rejected")
	}
}
