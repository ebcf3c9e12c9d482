package script

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"CoSign-Relay/internal/chain"
	xerrors "CoSign-Relay/internal/errors"
)

// 脚本下载体积上限，防御异常响应。
const maxScriptBytes = 4 << 20

// Fetcher 获取指定地址的脚本字节码。
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetchFunc 让普通函数实现 Fetcher 接口。
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// Fetch 实现 Fetcher 接口。
func (f FetchFunc) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

// Static 返回一个固定字节码的 Fetcher，测试用。
func Static(bytecode []byte) Fetcher {
	return FetchFunc(func(context.Context, string) ([]byte, error) {
		return append([]byte(nil), bytecode...), nil
	})
}

// HTTPFetcher 通过 HTTP GET 下载脚本。响应体可以是原始二进制，
// 也可以是十六进制文本（允许 0x 前缀）。
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher 创建 HTTPFetcher。
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch 下载脚本字节码。
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "脚本地址不能为空")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构造脚本请求失败")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeNetworkFailure, err, "下载脚本失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, xerrors.New(xerrors.CodeNetworkFailure,
			fmt.Sprintf("下载脚本失败: 状态码 %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScriptBytes+1))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeNetworkFailure, err, "读取脚本响应失败")
	}
	if len(body) > maxScriptBytes {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "脚本体积超过上限")
	}
	if len(body) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "脚本响应为空")
	}

	// 十六进制文本响应直接解码为字节码。
	trimmed := strings.TrimSpace(string(body))
	if decoded, err := chain.DecodeArtifact(trimmed); err == nil {
		return decoded, nil
	}
	return body, nil
}

var _ Fetcher = (*HTTPFetcher)(nil)
