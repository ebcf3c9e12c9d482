package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"CoSign-Relay/internal/chain"
)

// Config describes how to reach a transaction submission endpoint.
type Config struct {
	Name    string
	BaseURL string
	Timeout time.Duration
	Notes   string
}

// Client implements the chain.Client interface against a REST style node
// endpoint: transactions are submitted as hex artifacts and their status is
// polled by hash.
type Client struct {
	name       string
	notes      string
	baseURL    *url.URL
	httpClient *http.Client
}

type submitRequest struct {
	Payload string `json:"payload"`
}

type submitResponse struct {
	Hash string `json:"hash"`
}

// NewClient validates the endpoint configuration and returns a ready client.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, errors.New("未配置节点地址")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("解析节点地址失败: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		name:       cfg.Name,
		notes:      cfg.Notes,
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// SubmitTransaction posts the fully signed transaction to the node.
func (c *Client) SubmitTransaction(ctx context.Context, signed *chain.SignedTransaction) (common.Hash, error) {
	if c == nil || c.httpClient == nil {
		return common.Hash{}, errors.New("未初始化的节点客户端")
	}
	raw, err := signed.ToBinary()
	if err != nil {
		return common.Hash{}, err
	}

	body, err := json.Marshal(submitRequest{Payload: chain.EncodeArtifact(raw)})
	if err != nil {
		return common.Hash{}, fmt.Errorf("编码提交请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/v1/transactions"), bytes.NewReader(body))
	if err != nil {
		return common.Hash{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("提交交易失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return common.Hash{}, fmt.Errorf("节点拒绝交易: %s", readErrorBody(resp.Body, resp.Status))
	}

	var result submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return common.Hash{}, fmt.Errorf("解析提交响应失败: %w", err)
	}
	if result.Hash == "" {
		return common.Hash{}, errors.New("节点未返回交易哈希")
	}
	return common.HexToHash(result.Hash), nil
}

// TransactionStatus queries the node for a transaction's confirmation state.
func (c *Client) TransactionStatus(ctx context.Context, hash common.Hash) (*chain.Confirmation, error) {
	if c == nil || c.httpClient == nil {
		return nil, errors.New("未初始化的节点客户端")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/v1/transactions/"+hash.Hex()), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("查询交易状态失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, chain.ErrTransactionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("查询交易状态异常: %s", readErrorBody(resp.Body, resp.Status))
	}

	var confirmation chain.Confirmation
	if err := json.NewDecoder(resp.Body).Decode(&confirmation); err != nil {
		return nil, fmt.Errorf("解析交易状态失败: %w", err)
	}
	return &confirmation, nil
}

// Close releases resources held by the client.
func (c *Client) Close() {
	if c != nil && c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
	}
}

func (c *Client) endpoint(path string) string {
	rel := *c.baseURL
	rel.Path = strings.TrimSuffix(rel.Path, "/") + path
	return rel.String()
}

func readErrorBody(body io.Reader, fallback string) string {
	raw, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil || len(bytes.TrimSpace(raw)) == 0 {
		return fallback
	}
	return strings.TrimSpace(string(raw))
}

var _ chain.Client = (*Client)(nil)
