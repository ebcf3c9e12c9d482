package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"CoSign-Relay/internal/chain/simulated"
	"CoSign-Relay/internal/config"
	"CoSign-Relay/internal/flow"
	"CoSign-Relay/internal/relay"
	"CoSign-Relay/internal/script"
	"CoSign-Relay/internal/wallet"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	keyring := wallet.NewKeyring()
	if _, err := keyring.Generate("primary"); err != nil {
		t.Fatalf("generate primary: %v", err)
	}
	secondary, err := keyring.Generate("secondary")
	if err != nil {
		t.Fatalf("generate secondary: %v", err)
	}

	sim := simulated.NewChain(simulated.WithConfirmAfter(0))
	walletSvc := wallet.NewService(keyring, sim)

	cfg := config.FlowConfig{
		SecondarySigners:       []string{secondary.Hex()},
		TransferAmount:         100,
		ReturnAmount:           50,
		DepositAmount:          1000,
		ExpirySeconds:          300,
		ConfirmIntervalSeconds: 1,
		ConfirmTimeoutSeconds:  30,
	}
	coordinator := flow.NewCoordinator(cfg, flow.NewMemoryStore(), relay.NewMemoryStore(),
		walletSvc, script.Static([]byte{0x01, 0x02}), flow.WithChainID(4))

	return NewServer(":0", coordinator, walletSvc), secondary.Hex()
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response %s: %v", rec.Body.String(), err)
		}
	}
	return rec
}

func TestSessionEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/session", "", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("no session must map to %d, got %d", http.StatusConflict, rec.Code)
	}

	var session wallet.Session
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/session", `{"wallet":"primary"}`, &session)
	if rec.Code != http.StatusOK {
		t.Fatalf("connect status: %d body %s", rec.Code, rec.Body.String())
	}
	if session.Wallet != "primary" {
		t.Fatalf("unexpected session: %+v", session)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/session", `{"wallet":"missing"}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown wallet must map to 404, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/session", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("disconnect status: %d", rec.Code)
	}
}

func TestRunLifecycleOverHTTP(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	doJSON(t, handler, http.MethodPost, "/api/v1/session", `{"wallet":"primary"}`, nil)

	var run flow.Run
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/runs", `{}`, &run)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create run status: %d body %s", rec.Code, rec.Body.String())
	}
	if run.Stage != flow.StageIdle {
		t.Fatalf("new run stage: %s", run.Stage)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/runs/"+run.ID+"/create", "", &run)
	if rec.Code != http.StatusOK {
		t.Fatalf("step 1 status: %d body %s", rec.Code, rec.Body.String())
	}
	if run.Stage != flow.StageTxCreated {
		t.Fatalf("stage after step 1: %s", run.Stage)
	}

	doJSON(t, handler, http.MethodPost, "/api/v1/session", `{"wallet":"secondary"}`, nil)
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/runs/"+run.ID+"/countersign", "", &run)
	if rec.Code != http.StatusOK || run.Stage != flow.StageCountersigned {
		t.Fatalf("step 2: code %d stage %s", rec.Code, run.Stage)
	}

	doJSON(t, handler, http.MethodPost, "/api/v1/session", `{"wallet":"primary"}`, nil)
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/runs/"+run.ID+"/submit", "", &run)
	if rec.Code != http.StatusOK || run.Stage != flow.StageSubmitted {
		t.Fatalf("step 3: code %d stage %s body %s", rec.Code, run.Stage, rec.Body.String())
	}
	if run.TxHash == "" {
		t.Fatal("tx hash missing in response")
	}

	var entries []flow.Entry
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/runs/"+run.ID+"/logs", "", &entries)
	if rec.Code != http.StatusOK || len(entries) == 0 {
		t.Fatalf("logs: code %d entries %d", rec.Code, len(entries))
	}

	var runs []flow.Run
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/runs", "", &runs)
	if rec.Code != http.StatusOK || len(runs) != 1 {
		t.Fatalf("list runs: code %d count %d", rec.Code, len(runs))
	}
}

func TestRunDetailErrors(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/runs/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run must map to 404, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/runs/missing/create", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("step on unknown run must map to 404, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/runs", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unsupported method: got %d", rec.Code)
	}
}
