package simulated

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"CoSign-Relay/internal/chain"
)

// Chain 是一个内存中的模拟链，用于测试完整的签名与提交链路。
// 提交时会校验交易过期时间以及全部签名人的授权证明。
type Chain struct {
	mu           sync.Mutex
	transactions map[common.Hash]*record
	blockHeight  uint64

	confirmAfter int
	submitErr    error
	vmFailure    string
	now          func() time.Time
}

type record struct {
	signed       *chain.SignedTransaction
	pollsLeft    int
	confirmation chain.Confirmation
}

// Option 配置模拟链行为。
type Option func(*Chain)

// WithConfirmAfter 指定交易在第几次状态查询后进入终态。
func WithConfirmAfter(polls int) Option {
	return func(c *Chain) {
		if polls >= 0 {
			c.confirmAfter = polls
		}
	}
}

// WithSubmitError 让后续提交直接失败，用于测试提交错误路径。
func WithSubmitError(err error) Option {
	return func(c *Chain) {
		c.submitErr = err
	}
}

// WithVMFailure 让交易在确认时携带失败的执行状态。
func WithVMFailure(status string) Option {
	return func(c *Chain) {
		c.vmFailure = status
	}
}

// WithClock 注入时间源，便于测试过期逻辑。
func WithClock(now func() time.Time) Option {
	return func(c *Chain) {
		if now != nil {
			c.now = now
		}
	}
}

// NewChain 创建模拟链实例。
func NewChain(opts ...Option) *Chain {
	c := &Chain{
		transactions: make(map[common.Hash]*record),
		confirmAfter: 1,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// SubmitTransaction 校验签名集合并接受交易。
func (c *Chain) SubmitTransaction(_ context.Context, signed *chain.SignedTransaction) (common.Hash, error) {
	if c == nil {
		return common.Hash{}, errors.New("未初始化的模拟链")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.submitErr != nil {
		return common.Hash{}, c.submitErr
	}
	if err := signed.Validate(); err != nil {
		return common.Hash{}, err
	}

	tx := signed.Raw
	if uint64(c.now().Unix()) > tx.ExpirationUnix {
		return common.Hash{}, errors.New("交易已过期")
	}

	message, err := tx.SigningMessage()
	if err != nil {
		return common.Hash{}, err
	}
	if err := signed.SenderAuthenticator.Verify(message, tx.Sender); err != nil {
		return common.Hash{}, fmt.Errorf("主签名人授权无效: %w", err)
	}
	for i, auth := range signed.SecondaryAuthenticators {
		if err := auth.Verify(message, tx.SecondarySigners[i]); err != nil {
			return common.Hash{}, fmt.Errorf("副签名人 %s 授权无效: %w", tx.SecondarySigners[i].Hex(), err)
		}
	}

	hash, err := signed.Hash()
	if err != nil {
		return common.Hash{}, err
	}
	if _, ok := c.transactions[hash]; ok {
		return common.Hash{}, fmt.Errorf("交易已提交过: %s", hash.Hex())
	}

	c.blockHeight++
	success := c.vmFailure == ""
	vmStatus := "Executed successfully"
	if !success {
		vmStatus = c.vmFailure
	}
	c.transactions[hash] = &record{
		signed:    signed,
		pollsLeft: c.confirmAfter,
		confirmation: chain.Confirmation{
			Hash:        hash,
			Success:     success,
			VMStatus:    vmStatus,
			BlockNumber: c.blockHeight,
		},
	}
	return hash, nil
}

// TransactionStatus 返回交易确认状态，未达到确认轮数前保持 pending。
func (c *Chain) TransactionStatus(_ context.Context, hash common.Hash) (*chain.Confirmation, error) {
	if c == nil {
		return nil, errors.New("未初始化的模拟链")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.transactions[hash]
	if !ok {
		return nil, chain.ErrTransactionNotFound
	}
	if rec.pollsLeft > 0 {
		rec.pollsLeft--
		return &chain.Confirmation{Hash: hash, Pending: true}, nil
	}
	confirmation := rec.confirmation
	return &confirmation, nil
}

// SubmittedCount 返回已接受的交易数量，测试用。
func (c *Chain) SubmittedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.transactions)
}

// Transaction 返回已提交的签名交易，测试用。
func (c *Chain) Transaction(hash common.Hash) (*chain.SignedTransaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.transactions[hash]
	if !ok {
		return nil, false
	}
	return rec.signed, true
}

// Close 对模拟链无需操作。
func (c *Chain) Close() {}

var _ chain.Client = (*Chain)(nil)
