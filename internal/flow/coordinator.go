package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"CoSign-Relay/internal/chain"
	"CoSign-Relay/internal/config"
	xerrors "CoSign-Relay/internal/errors"
	"CoSign-Relay/internal/observability/alerting"
	"CoSign-Relay/internal/observability/metrics"
	"CoSign-Relay/internal/relay"
	"CoSign-Relay/internal/script"
	"CoSign-Relay/internal/wallet"
	"CoSign-Relay/pkg/logger"
)

// 三个编排步骤的名称，用于日志与指标。
const (
	StepCreateTransaction = "create_transaction"
	StepCountersign       = "countersign"
	StepSubmit            = "submit"
)

// Coordinator 驱动三步编排。步骤内部的失败不会通过返回值向上传播，
// 而是写入运行状态与日志流；返回 error 仅表示运行不存在或入参非法。
// 所有步骤由同一把互斥锁串行化，保证阶段转换与中继写入的原子性。
type Coordinator struct {
	mu      sync.Mutex
	cfg     config.FlowConfig
	runs    Store
	relay   relay.Store
	wallet  *wallet.Service
	fetcher script.Fetcher

	notifier relay.Producer
	alerts   alerting.Dispatcher
	chainID  uint64
	now      func() time.Time
	log      *slog.Logger

	streamMu sync.Mutex
	streams  map[string]*Stream
}

// Option 定义 Coordinator 的可选配置。
type Option func(*Coordinator)

// WithNotifier 配置中继事件通知队列，投递失败只记日志。
func WithNotifier(producer relay.Producer) Option {
	return func(c *Coordinator) { c.notifier = producer }
}

// WithAlerts 配置告警分发器。
func WithAlerts(dispatcher alerting.Dispatcher) Option {
	return func(c *Coordinator) { c.alerts = dispatcher }
}

// WithChainID 指定构造交易时写入的链 ID。
func WithChainID(chainID uint64) Option {
	return func(c *Coordinator) { c.chainID = chainID }
}

// WithClock 注入时钟，测试用。
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCoordinator 构造编排器。
func NewCoordinator(cfg config.FlowConfig, runs Store, relayStore relay.Store,
	walletSvc *wallet.Service, fetcher script.Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:     cfg,
		runs:    runs,
		relay:   relayStore,
		wallet:  walletSvc,
		fetcher: fetcher,
		now:     time.Now,
		log:     logger.Named("flow"),
		streams: make(map[string]*Stream),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// CreateRun 新建一次流程运行。primary 为空时取当前钱包会话地址；
// secondaries 为空时取配置中的默认副签名人列表。
func (c *Coordinator) CreateRun(ctx context.Context, primary string, secondaries []string) (*Run, error) {
	primaryAddr, err := c.resolvePrimary(primary)
	if err != nil {
		return nil, err
	}

	if len(secondaries) == 0 {
		secondaries = c.cfg.SecondarySigners
	}
	if len(secondaries) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "缺少副签名人地址")
	}
	secondaryAddrs := make([]common.Address, 0, len(secondaries))
	for _, raw := range secondaries {
		if !common.IsHexAddress(raw) {
			return nil, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("非法的副签名人地址: %s", raw))
		}
		secondaryAddrs = append(secondaryAddrs, common.HexToAddress(raw))
	}

	now := c.now()
	run := &Run{
		ID:          uuid.NewString(),
		Stage:       StageIdle,
		Primary:     primaryAddr,
		Secondaries: secondaryAddrs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.runs.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	c.streamFor(run.ID).Info("流程已创建，主签名人 %s，副签名人 %d 名",
		primaryAddr.Hex(), len(secondaryAddrs))
	c.log.Info("流程已创建",
		slog.String("run_id", run.ID),
		slog.String("primary", primaryAddr.Hex()),
		slog.Int("secondaries", len(secondaryAddrs)),
	)
	return run.Clone(), nil
}

// Run 返回指定运行状态。
func (c *Coordinator) Run(ctx context.Context, runID string) (*Run, error) {
	return c.runs.GetRun(ctx, runID)
}

// Runs 返回全部运行状态。
func (c *Coordinator) Runs(ctx context.Context) ([]*Run, error) {
	return c.runs.ListRuns(ctx)
}

// Logs 返回指定运行的日志流快照。
func (c *Coordinator) Logs(ctx context.Context, runID string) ([]Entry, error) {
	if _, err := c.runs.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return c.streamFor(runID).Entries(), nil
}

// CreateTransaction 是第一步：主签名人构造交易并放入中继。
// 可以在任意阶段重新执行，重新执行会覆盖交易槽位并作废已有授权。
func (c *Coordinator) CreateTransaction(ctx context.Context, runID string) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, err := c.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	stream := c.streamFor(runID)

	session, ok := c.wallet.Active()
	if !ok {
		return c.fail(ctx, run, stream, StepCreateTransaction, wallet.CodeNotConnected, wallet.ErrNotConnected), nil
	}
	if c.cfg.EnforceRoles && session.Address != run.Primary {
		return c.fail(ctx, run, stream, StepCreateTransaction, CodeSignerMismatch,
			fmt.Errorf("当前会话 %s 不是主签名人 %s", session.Address.Hex(), run.Primary.Hex())), nil
	}

	bytecode, err := c.fetcher.Fetch(ctx, c.cfg.ScriptURL)
	if err != nil {
		return c.fail(ctx, run, stream, StepCreateTransaction, CodeConstructionFailure,
			fmt.Errorf("获取脚本失败: %w", err)), nil
	}

	tx := &chain.RawTransaction{
		Sender:           run.Primary,
		SecondarySigners: append([]common.Address(nil), run.Secondaries...),
		Bytecode:         bytecode,
		Arguments: []chain.Argument{
			chain.U64Argument(c.cfg.TransferAmount),
			chain.U64Argument(c.cfg.ReturnAmount),
			chain.AddressArgument(run.Primary),
			chain.AddressArgument(run.Secondaries[0]),
			chain.U64Argument(c.cfg.DepositAmount),
		},
		ExpirationUnix: uint64(c.now().Unix() + c.cfg.ExpirySeconds),
		ChainID:        c.chainID,
	}
	raw, err := tx.ToBinary()
	if err != nil {
		return c.fail(ctx, run, stream, StepCreateTransaction, CodeConstructionFailure, err), nil
	}
	artifact := chain.EncodeArtifact(raw)

	// 重新执行第一步意味着重新开始整轮签名。先写交易再作废旧授权：
	// 写入失败时中继保持原样，旧交易与旧授权仍然可用。
	if err := c.relay.PutTransaction(ctx, runID, artifact); err != nil {
		return c.fail(ctx, run, stream, StepCreateTransaction, CodeConstructionFailure, err), nil
	}
	if err := c.relay.ClearAuthenticators(ctx, runID); err != nil {
		return c.fail(ctx, run, stream, StepCreateTransaction, CodeConstructionFailure, err), nil
	}

	run.Stage = StageTxCreated
	run.TxHash = ""
	c.clearFailure(run)
	if err := c.saveRun(ctx, run); err != nil {
		return nil, err
	}

	stream.Info("交易已构造并放入中继，过期时间 %d", tx.ExpirationUnix)
	metrics.ObserveFlowStep(StepCreateTransaction, "ok")
	c.publish(ctx, relay.Notice{RunID: runID, Event: relay.EventTransactionReady})
	c.log.Info("交易已放入中继", slog.String("run_id", runID))
	return run.Clone(), nil
}

// Countersign 是第二步：副签名人从中继取出交易、签名并写回授权。
// 每个副签名人各执行一次，全部完成后阶段推进到 countersigned。
func (c *Coordinator) Countersign(ctx context.Context, runID string) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, err := c.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	stream := c.streamFor(runID)

	session, ok := c.wallet.Active()
	if !ok {
		return c.fail(ctx, run, stream, StepCountersign, wallet.CodeNotConnected, wallet.ErrNotConnected), nil
	}
	if c.cfg.EnforceRoles && !containsAddress(run.Secondaries, session.Address) {
		return c.fail(ctx, run, stream, StepCountersign, CodeSignerMismatch,
			fmt.Errorf("当前会话 %s 不在副签名人列表中", session.Address.Hex())), nil
	}

	artifact, err := c.relay.Transaction(ctx, runID)
	if errors.Is(err, relay.ErrEmptySlot) {
		return c.fail(ctx, run, stream, StepCountersign, CodeMissingTransaction, ErrMissingTransaction), nil
	}
	if err != nil {
		// 槽位为空之外的错误是存储故障，不能当作交易缺失。
		return c.fail(ctx, run, stream, StepCountersign, xerrors.CodeStorageFailure,
			fmt.Errorf("读取中继交易失败: %w", err)), nil
	}
	tx, err := decodeTransactionArtifact(artifact)
	if err != nil {
		return c.fail(ctx, run, stream, StepCountersign, CodeSignatureFailure,
			fmt.Errorf("中继交易工件损坏: %w", err)), nil
	}

	auth, err := c.wallet.SignTransaction(ctx, tx)
	if err != nil {
		return c.fail(ctx, run, stream, StepCountersign, CodeSignatureFailure, err), nil
	}
	authRaw, err := auth.ToBinary()
	if err != nil {
		return c.fail(ctx, run, stream, StepCountersign, CodeSignatureFailure, err), nil
	}
	if err := c.relay.PutAuthenticator(ctx, runID, session.Address.Hex(), chain.EncodeArtifact(authRaw)); err != nil {
		return c.fail(ctx, run, stream, StepCountersign, CodeSignatureFailure, err), nil
	}

	entries, err := c.relay.Authenticators(ctx, runID)
	if err != nil {
		return c.fail(ctx, run, stream, StepCountersign, xerrors.CodeStorageFailure,
			fmt.Errorf("读取中继授权失败: %w", err)), nil
	}

	c.clearFailure(run)
	if len(entries) >= len(run.Secondaries) {
		run.Stage = StageCountersigned
		stream.Info("全部 %d 名副签名人已签名，等待提交", len(run.Secondaries))
		c.publish(ctx, relay.Notice{RunID: runID, Event: relay.EventCountersigned})
	} else {
		stream.Info("副签名人 %s 已签名（%d/%d）",
			session.Address.Hex(), len(entries), len(run.Secondaries))
	}
	if err := c.saveRun(ctx, run); err != nil {
		return nil, err
	}

	metrics.ObserveFlowStep(StepCountersign, "ok")
	c.log.Info("副签名已写入中继",
		slog.String("run_id", runID),
		slog.String("signer", session.Address.Hex()),
		slog.Int("collected", len(entries)),
	)
	return run.Clone(), nil
}

// Submit 是第三步：主签名人从中继取出交易与授权，补上自己的签名，
// 提交上链并等待确认。
func (c *Coordinator) Submit(ctx context.Context, runID string) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, err := c.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	stream := c.streamFor(runID)

	session, ok := c.wallet.Active()
	if !ok {
		return c.fail(ctx, run, stream, StepSubmit, wallet.CodeNotConnected, wallet.ErrNotConnected), nil
	}
	if c.cfg.EnforceRoles && session.Address != run.Primary {
		return c.fail(ctx, run, stream, StepSubmit, CodeSignerMismatch,
			fmt.Errorf("当前会话 %s 不是主签名人 %s", session.Address.Hex(), run.Primary.Hex())), nil
	}

	// 提交阶段缺少任何工件都按工件不完整处理，存储故障单独上报。
	artifact, err := c.relay.Transaction(ctx, runID)
	if errors.Is(err, relay.ErrEmptySlot) {
		return c.fail(ctx, run, stream, StepSubmit, CodeMissingArtifacts, ErrMissingArtifacts), nil
	}
	if err != nil {
		return c.fail(ctx, run, stream, StepSubmit, xerrors.CodeStorageFailure,
			fmt.Errorf("读取中继交易失败: %w", err)), nil
	}
	tx, err := decodeTransactionArtifact(artifact)
	if err != nil {
		return c.fail(ctx, run, stream, StepSubmit, CodeSubmissionFailure,
			fmt.Errorf("中继交易工件损坏: %w", err)), nil
	}

	entries, err := c.relay.Authenticators(ctx, runID)
	if err != nil {
		return c.fail(ctx, run, stream, StepSubmit, xerrors.CodeStorageFailure,
			fmt.Errorf("读取中继授权失败: %w", err)), nil
	}
	if len(entries) < len(run.Secondaries) {
		return c.fail(ctx, run, stream, StepSubmit, CodeMissingArtifacts,
			fmt.Errorf("副签名人授权不完整: %d/%d", len(entries), len(run.Secondaries))), nil
	}
	secondaryAuths, err := orderAuthenticators(run.Secondaries, entries)
	if err != nil {
		return c.fail(ctx, run, stream, StepSubmit, CodeMissingArtifacts, err), nil
	}

	senderAuth, err := c.wallet.SignTransaction(ctx, tx)
	if err != nil {
		return c.fail(ctx, run, stream, StepSubmit, CodeSignatureFailure, err), nil
	}

	signed := &chain.SignedTransaction{
		Raw:                     tx,
		SenderAuthenticator:     senderAuth,
		SecondaryAuthenticators: secondaryAuths,
	}
	hash, err := c.wallet.SubmitTransaction(ctx, signed)
	if err != nil {
		return c.fail(ctx, run, stream, StepSubmit, CodeSubmissionFailure, err), nil
	}
	run.TxHash = hash.Hex()
	stream.Info("交易已提交，哈希 %s", hash.Hex())

	confirmation, err := chain.WaitForTransaction(ctx, c.wallet.Client(), hash,
		time.Duration(c.cfg.ConfirmIntervalSeconds)*time.Second,
		time.Duration(c.cfg.ConfirmTimeoutSeconds)*time.Second)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeTimeout {
			return c.fail(ctx, run, stream, StepSubmit, CodeConfirmationTimeout,
				fmt.Errorf("等待交易 %s 确认超时", hash.Hex())), nil
		}
		return c.fail(ctx, run, stream, StepSubmit, CodeSubmissionFailure, err), nil
	}

	run.Stage = StageSubmitted
	c.clearFailure(run)
	if err := c.saveRun(ctx, run); err != nil {
		return nil, err
	}

	if confirmation.Success {
		stream.Info("交易已确认，区块 %d", confirmation.BlockNumber)
	} else {
		// 上链但执行失败：阶段仍推进，失败原因记录在日志流中。
		stream.Error("交易已上链但执行失败: %s", confirmation.VMStatus)
	}
	metrics.ObserveFlowStep(StepSubmit, "ok")
	c.publish(ctx, relay.Notice{RunID: runID, Event: relay.EventSubmitted})
	c.log.Info("交易已确认",
		slog.String("run_id", runID),
		slog.String("tx_hash", hash.Hex()),
		slog.Bool("success", confirmation.Success),
	)
	return run.Clone(), nil
}

func (c *Coordinator) resolvePrimary(primary string) (common.Address, error) {
	if primary != "" {
		if !common.IsHexAddress(primary) {
			return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("非法的主签名人地址: %s", primary))
		}
		return common.HexToAddress(primary), nil
	}
	session, ok := c.wallet.Active()
	if !ok {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument,
			"未指定主签名人地址且没有活跃钱包会话")
	}
	return session.Address, nil
}

// fail 统一记录一次步骤失败：写入运行状态、追加一条 ERROR 日志、
// 上报指标并按错误码属性触发告警。阶段保持不变。
func (c *Coordinator) fail(ctx context.Context, run *Run, stream *Stream, step string, code xerrors.Code, cause error) *Run {
	message := cause.Error()
	run.ErrorCode = code
	run.LastError = message
	run.UpdatedAt = c.now()
	if err := c.runs.SaveRun(ctx, run); err != nil {
		c.log.Error("保存失败状态出错", slog.String("run_id", run.ID), slog.Any("error", err))
	}

	stream.Error("%s", message)
	metrics.ObserveFlowStep(step, string(code))
	c.log.Warn("流程步骤失败",
		slog.String("run_id", run.ID),
		slog.String("step", step),
		slog.String("code", string(code)),
		slog.String("error", message),
	)

	if c.alerts != nil && xerrors.AttributesOf(code).Alert {
		event := alerting.Event{
			Code:       code,
			Message:    message,
			Severity:   xerrors.AttributesOf(code).Severity,
			RunID:      run.ID,
			Step:       step,
			OccurredAt: c.now(),
		}
		if err := c.alerts.Notify(ctx, event); err != nil {
			c.log.Warn("发送告警失败", slog.Any("error", err))
		}
	}
	return run.Clone()
}

func (c *Coordinator) clearFailure(run *Run) {
	run.ErrorCode = ""
	run.LastError = ""
}

func (c *Coordinator) saveRun(ctx context.Context, run *Run) error {
	run.UpdatedAt = c.now()
	return c.runs.SaveRun(ctx, run)
}

func (c *Coordinator) publish(ctx context.Context, notice relay.Notice) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Publish(ctx, notice); err != nil {
		c.log.Warn("投递中继通知失败",
			slog.String("run_id", notice.RunID),
			slog.String("event", notice.Event),
			slog.Any("error", err),
		)
	}
}

func (c *Coordinator) streamFor(runID string) *Stream {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()
	stream, ok := c.streams[runID]
	if !ok {
		stream = NewStream()
		c.streams[runID] = stream
	}
	return stream
}

func decodeTransactionArtifact(artifact string) (*chain.RawTransaction, error) {
	raw, err := chain.DecodeArtifact(artifact)
	if err != nil {
		return nil, err
	}
	return chain.RawTransactionFromBinary(raw)
}

// orderAuthenticators 把中继中的授权按交易声明的副签名人顺序排列。
func orderAuthenticators(secondaries []common.Address, entries []relay.AuthenticatorEntry) ([]*chain.Authenticator, error) {
	bySigner := make(map[common.Address]*chain.Authenticator, len(entries))
	for _, entry := range entries {
		if !common.IsHexAddress(entry.Signer) {
			return nil, fmt.Errorf("非法的授权签名人标识: %s", entry.Signer)
		}
		raw, err := chain.DecodeArtifact(entry.Artifact)
		if err != nil {
			return nil, fmt.Errorf("授权工件损坏: %w", err)
		}
		auth, err := chain.AuthenticatorFromBinary(raw)
		if err != nil {
			return nil, fmt.Errorf("授权工件损坏: %w", err)
		}
		bySigner[common.HexToAddress(entry.Signer)] = auth
	}

	ordered := make([]*chain.Authenticator, 0, len(secondaries))
	for _, signer := range secondaries {
		auth, ok := bySigner[signer]
		if !ok {
			return nil, fmt.Errorf("缺少副签名人 %s 的授权", signer.Hex())
		}
		ordered = append(ordered, auth)
	}
	return ordered, nil
}

func containsAddress(list []common.Address, target common.Address) bool {
	for _, addr := range list {
		if addr == target {
			return true
		}
	}
	return false
}
