package relay

import (
	"context"

	xerrors "CoSign-Relay/internal/errors"
)

// 中继存储相关错误码。
const (
	CodeEmptySlot xerrors.Code = "RELAY_EMPTY_SLOT"
)

// ErrEmptySlot 表示请求的中继槽位尚未写入。
var ErrEmptySlot = xerrors.New(CodeEmptySlot, "中继槽位为空")

func init() {
	xerrors.Register(CodeEmptySlot, xerrors.Attributes{
		Message:   "relay slot is empty",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// AuthenticatorEntry 表示某个副签名人写入的授权工件。
type AuthenticatorEntry struct {
	Signer   string `json:"signer"`
	Artifact string `json:"artifact"`
	StoredAt int64  `json:"stored_at"`
}

// Store 抽象了流程运行之间传递工件的中继存储。
// 每个流程运行拥有一个交易槽位和一组按写入顺序排列的授权槽位。
type Store interface {
	// PutTransaction 写入（或覆盖）交易工件。
	PutTransaction(ctx context.Context, runID, artifact string) error
	// Transaction 读取交易工件，槽位为空时返回 ErrEmptySlot。
	Transaction(ctx context.Context, runID string) (string, error)
	// PutAuthenticator 写入指定签名人的授权工件，同一签名人重复写入会覆盖。
	PutAuthenticator(ctx context.Context, runID, signer, artifact string) error
	// Authenticators 按首次写入顺序返回全部授权工件。
	Authenticators(ctx context.Context, runID string) ([]AuthenticatorEntry, error)
	// ClearAuthenticators 仅清空授权槽位，交易槽位保持不变。
	ClearAuthenticators(ctx context.Context, runID string) error
	// Clear 清空指定流程运行的全部槽位。
	Clear(ctx context.Context, runID string) error
	Close() error
}
