package chain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "CoSign-Relay/internal/errors"
)

// ErrTransactionNotFound 表示节点尚未见到指定交易。
var ErrTransactionNotFound = xerrors.New(xerrors.CodeNotFound, "交易不存在")

// Confirmation 表示一笔交易在链上的终态查询结果。
type Confirmation struct {
	Hash        common.Hash `json:"hash"`
	Pending     bool        `json:"pending"`
	Success     bool        `json:"success"`
	VMStatus    string      `json:"vm_status"`
	BlockNumber uint64      `json:"block_number"`
}

// Client defines the common interface that any chain implementation must
// provide so higher layers can submit multi-agent transactions and poll
// their confirmation uniformly.
type Client interface {
	SubmitTransaction(ctx context.Context, signed *SignedTransaction) (common.Hash, error)
	TransactionStatus(ctx context.Context, hash common.Hash) (*Confirmation, error)
	Close()
}

// WaitForTransaction 轮询交易状态直至出现终态结果或超时。
func WaitForTransaction(ctx context.Context, client Client, hash common.Hash, interval, timeout time.Duration) (*Confirmation, error) {
	if interval <= 0 {
		interval = time.Second
	}
	if timeout <= 0 {
		timeout = time.Minute
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		confirmation, err := client.TransactionStatus(waitCtx, hash)
		if err == nil && !confirmation.Pending {
			return confirmation, nil
		}
		if err != nil && xerrors.CodeOf(err) != xerrors.CodeNotFound {
			return nil, err
		}
		select {
		case <-waitCtx.Done():
			return nil, xerrors.Wrap(xerrors.CodeTimeout, waitCtx.Err(), "等待交易确认超时",
				xerrors.WithMetadata("tx_hash", hash.Hex()))
		case <-ticker.C:
		}
	}
}
