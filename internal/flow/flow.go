package flow

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "CoSign-Relay/internal/errors"
)

// Stage 表示一次流程运行所处的阶段。
type Stage string

const (
	StageIdle          Stage = "idle"
	StageTxCreated     Stage = "tx_created"
	StageCountersigned Stage = "countersigned"
	StageSubmitted     Stage = "submitted"
)

// 流程相关错误码。
const (
	CodeMissingTransaction  xerrors.Code = "MISSING_TRANSACTION"
	CodeMissingArtifacts    xerrors.Code = "MISSING_ARTIFACTS"
	CodeConstructionFailure xerrors.Code = "CONSTRUCTION_FAILURE"
	CodeSignatureFailure    xerrors.Code = "SIGNATURE_FAILURE"
	CodeSubmissionFailure   xerrors.Code = "SUBMISSION_FAILURE"
	CodeConfirmationTimeout xerrors.Code = "CONFIRMATION_TIMEOUT"
	CodeSignerMismatch      xerrors.Code = "SIGNER_MISMATCH"
	CodeRunNotFound         xerrors.Code = "RUN_NOT_FOUND"
)

var (
	// ErrMissingTransaction 表示中继交易槽位为空。
	ErrMissingTransaction = xerrors.New(CodeMissingTransaction, "中继中没有待签交易")
	// ErrMissingArtifacts 表示提交所需的工件不完整。
	ErrMissingArtifacts = xerrors.New(CodeMissingArtifacts, "中继中缺少提交所需的工件")
	// ErrRunNotFound 表示流程运行不存在。
	ErrRunNotFound = xerrors.New(CodeRunNotFound, "流程运行不存在")
)

func init() {
	xerrors.Register(CodeMissingTransaction, xerrors.Attributes{
		Message:  "relay transaction slot is empty",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeMissingArtifacts, xerrors.Attributes{
		Message:  "relay artifacts incomplete for submission",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeConstructionFailure, xerrors.Attributes{
		Message:  "transaction construction failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeSignatureFailure, xerrors.Attributes{
		Message:  "signing or storing authenticator failed",
		Severity: xerrors.SeverityWarning,
		Alert:    true,
	})
	xerrors.Register(CodeSubmissionFailure, xerrors.Attributes{
		Message:   "transaction submission failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeConfirmationTimeout, xerrors.Attributes{
		Message:   "transaction confirmation timed out",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeSignerMismatch, xerrors.Attributes{
		Message:  "active wallet does not match step role",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeRunNotFound, xerrors.Attributes{
		Message:  "flow run not found",
		Severity: xerrors.SeverityInfo,
	})
}

// Run 记录一次流程运行的可观察状态。失败不会让阶段回退，
// 只会把错误码与描述写入 ErrorCode 与 LastError。
type Run struct {
	ID          string           `json:"id"`
	Stage       Stage            `json:"stage"`
	Primary     common.Address   `json:"primary"`
	Secondaries []common.Address `json:"secondaries"`
	TxHash      string           `json:"tx_hash,omitempty"`
	ErrorCode   xerrors.Code     `json:"error_code,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Clone 返回运行状态的深拷贝。
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Secondaries = append([]common.Address(nil), r.Secondaries...)
	return &clone
}
