package cosign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the CoSign Relay REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Session describes the active wallet session on the server.
type Session struct {
	Wallet      string    `json:"wallet"`
	Address     string    `json:"address"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Run mirrors the server side view of a choreography run.
type Run struct {
	ID          string    `json:"id"`
	Stage       string    `json:"stage"`
	Primary     string    `json:"primary"`
	Secondaries []string  `json:"secondaries"`
	TxHash      string    `json:"tx_hash,omitempty"`
	ErrorCode   string    `json:"error_code,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LogEntry is a single record from a run's log stream.
type LogEntry struct {
	Seq     int       `json:"seq"`
	At      time.Time `json:"at"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// RunRequest is the payload used to create a new run. Empty fields fall back
// to the server side defaults.
type RunRequest struct {
	Primary     string   `json:"primary,omitempty"`
	Secondaries []string `json:"secondaries,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("cosign api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("cosign api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the CoSign Relay API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Connect establishes a wallet session on the server.
func (c *Client) Connect(ctx context.Context, walletName string) (Session, error) {
	var session Session
	payload := struct {
		Wallet string `json:"wallet"`
	}{Wallet: walletName}
	if err := c.post(ctx, "/api/v1/session", payload, &session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// Disconnect tears down the active wallet session.
func (c *Client) Disconnect(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/session", nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ActiveSession returns the current wallet session, if any.
func (c *Client) ActiveSession(ctx context.Context) (Session, error) {
	var session Session
	if err := c.get(ctx, "/api/v1/session", &session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// CreateRun registers a new choreography run.
func (c *Client) CreateRun(ctx context.Context, req RunRequest) (Run, error) {
	var run Run
	if err := c.post(ctx, "/api/v1/runs", req, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns all known runs ordered by creation time.
func (c *Client) ListRuns(ctx context.Context) ([]Run, error) {
	var runs []Run
	if err := c.get(ctx, "/api/v1/runs", &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun fetches a single run by identifier.
func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID), &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// CreateTransaction triggers the first step: the primary signer constructs the
// transaction and places it on the relay.
func (c *Client) CreateTransaction(ctx context.Context, runID string) (Run, error) {
	return c.step(ctx, runID, "create")
}

// Countersign triggers the second step for the active wallet session.
func (c *Client) Countersign(ctx context.Context, runID string) (Run, error) {
	return c.step(ctx, runID, "countersign")
}

// Submit triggers the final step: assemble the signed transaction and submit
// it to the chain.
func (c *Client) Submit(ctx context.Context, runID string) (Run, error) {
	return c.step(ctx, runID, "submit")
}

// Logs returns the run's log stream in append order.
func (c *Client) Logs(ctx context.Context, runID string) ([]LogEntry, error) {
	var entries []LogEntry
	if err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(runID)+"/logs", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) step(ctx context.Context, runID, action string) (Run, error) {
	var run Run
	endpoint := "/api/v1/runs/" + url.PathEscape(runID) + "/" + action
	if err := c.post(ctx, endpoint, nil, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
