package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"CoSign-Relay/internal/chain"
	xerrors "CoSign-Relay/internal/errors"
	"CoSign-Relay/pkg/logger"
)

// 钱包会话相关错误码。
const (
	CodeNotConnected  xerrors.Code = "NOT_CONNECTED"
	CodeUnknownWallet xerrors.Code = "WALLET_UNKNOWN"
)

var (
	// ErrNotConnected 表示当前没有活跃的签名会话。
	ErrNotConnected = xerrors.New(CodeNotConnected, "未连接钱包")
	// ErrUnknownWallet 表示密钥环中不存在请求的签名人。
	ErrUnknownWallet = xerrors.New(CodeUnknownWallet, "未知的钱包名称")
)

func init() {
	xerrors.Register(CodeNotConnected, xerrors.Attributes{
		Message:   "no active wallet session",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeUnknownWallet, xerrors.Attributes{
		Message:   "wallet not found in keyring",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Session 表示一次活跃的钱包连接。
type Session struct {
	Wallet      string         `json:"wallet"`
	Address     common.Address `json:"address"`
	ConnectedAt time.Time      `json:"connected_at"`
}

// Service 负责会话管理，并代表当前会话执行签名与提交。
type Service struct {
	mu       sync.RWMutex
	keyring  *Keyring
	client   chain.Client
	registry Registry
	active   *Session
	audit    *slog.Logger
}

// ServiceOption 定义 Service 的可选配置。
type ServiceOption func(*Service)

// WithRegistry 配置签名人注册表，连接成功后记录连接历史。
func WithRegistry(registry Registry) ServiceOption {
	return func(s *Service) { s.registry = registry }
}

// NewService 构造钱包会话服务。
func NewService(keyring *Keyring, client chain.Client, opts ...ServiceOption) *Service {
	s := &Service{
		keyring: keyring,
		client:  client,
		audit:   logger.Audit(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Connect 以指定名称的签名人建立会话，重复连接会替换当前会话。
func (s *Service) Connect(ctx context.Context, walletName string) (*Session, error) {
	if s == nil || s.keyring == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "钱包服务未初始化")
	}
	signer, ok := s.keyring.Signer(walletName)
	if !ok {
		return nil, ErrUnknownWallet
	}

	session := &Session{
		Wallet:      signer.Name,
		Address:     signer.Address,
		ConnectedAt: time.Now(),
	}

	s.mu.Lock()
	s.active = session
	s.mu.Unlock()

	// 注册表写入失败不影响已建立的会话
	if s.registry != nil {
		record := Record{
			Name:            session.Wallet,
			Address:         session.Address,
			RegisteredAt:    session.ConnectedAt,
			LastConnectedAt: session.ConnectedAt,
		}
		if err := s.registry.Save(ctx, record); err != nil {
			s.audit.Warn("记录签名人连接失败",
				slog.String("wallet", session.Wallet),
				slog.Any("error", err),
			)
		}
	}

	s.audit.Info("钱包已连接",
		slog.String("wallet", session.Wallet),
		slog.String("address", session.Address.Hex()),
	)
	snapshot := *session
	return &snapshot, nil
}

// Disconnect 断开当前会话，无会话时为空操作。
func (s *Service) Disconnect() {
	if s == nil {
		return
	}
	s.mu.Lock()
	session := s.active
	s.active = nil
	s.mu.Unlock()

	if session != nil {
		s.audit.Info("钱包已断开", slog.String("wallet", session.Wallet))
	}
}

// Active 返回当前会话快照。
func (s *Service) Active() (*Session, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil, false
	}
	snapshot := *s.active
	return &snapshot, true
}

// SignTransaction 用当前会话的私钥对交易的签名消息签名。
func (s *Service) SignTransaction(_ context.Context, tx *chain.RawTransaction) (*chain.Authenticator, error) {
	signer, err := s.activeSigner()
	if err != nil {
		return nil, err
	}

	message, err := tx.SigningMessage()
	if err != nil {
		return nil, err
	}
	signature, err := crypto.Sign(message, signer.key)
	if err != nil {
		return nil, fmt.Errorf("签名失败: %w", err)
	}
	return &chain.Authenticator{
		PublicKey: crypto.FromECDSAPub(&signer.key.PublicKey),
		Signature: signature,
	}, nil
}

// SubmitTransaction 将完整签名的交易提交到链上。
func (s *Service) SubmitTransaction(ctx context.Context, signed *chain.SignedTransaction) (common.Hash, error) {
	if _, err := s.activeSigner(); err != nil {
		return common.Hash{}, err
	}
	if s.client == nil {
		return common.Hash{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置链客户端")
	}
	hash, err := s.client.SubmitTransaction(ctx, signed)
	if err != nil {
		return common.Hash{}, err
	}
	s.audit.Info("交易已提交",
		slog.String("tx_hash", hash.Hex()),
		slog.Int("secondary_signers", len(signed.SecondaryAuthenticators)),
	)
	return hash, nil
}

// Client 返回底层链客户端。
func (s *Service) Client() chain.Client {
	if s == nil {
		return nil
	}
	return s.client
}

func (s *Service) activeSigner() (*Signer, error) {
	if s == nil || s.keyring == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "钱包服务未初始化")
	}
	s.mu.RLock()
	session := s.active
	s.mu.RUnlock()
	if session == nil {
		return nil, ErrNotConnected
	}
	signer, ok := s.keyring.Signer(session.Wallet)
	if !ok {
		return nil, ErrUnknownWallet
	}
	return signer, nil
}
