package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"CoSign-Relay/deploy/migrations"
	xerrors "CoSign-Relay/internal/errors"
	"CoSign-Relay/internal/flow"
)

// FlowStore 将流程运行状态落库到 MySQL。
type FlowStore struct {
	db *sql.DB
}

// NewFlowStore 创建连接池并应用迁移。
func NewFlowStore(ctx context.Context, cfg Config) (*FlowStore, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化流程存储失败")
	}
	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "应用数据库迁移失败")
	}
	return &FlowStore{db: db}, nil
}

// SaveRun 新建或覆盖运行状态。
func (s *FlowStore) SaveRun(ctx context.Context, run *flow.Run) error {
	if run == nil || run.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "运行状态缺少 ID")
	}
	secondaries, err := encodeSecondaries(run.Secondaries)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO flow_runs
        (id, stage, primary_signer, secondary_signers, tx_hash, error_code, last_error, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
        stage = VALUES(stage), tx_hash = VALUES(tx_hash), error_code = VALUES(error_code),
        last_error = VALUES(last_error), updated_at = VALUES(updated_at)`

	if _, err := s.db.ExecContext(ctx, stmt,
		run.ID,
		string(run.Stage),
		run.Primary.Hex(),
		secondaries,
		run.TxHash,
		string(run.ErrorCode),
		run.LastError,
		run.CreatedAt.UnixMilli(),
		run.UpdatedAt.UnixMilli(),
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入流程运行失败")
	}
	return nil
}

// GetRun 按 ID 读取运行状态。
func (s *FlowStore) GetRun(ctx context.Context, id string) (*flow.Run, error) {
	const query = `SELECT id, stage, primary_signer, secondary_signers, tx_hash, error_code, last_error, created_at, updated_at
        FROM flow_runs WHERE id = ?`
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, flow.ErrRunNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取流程运行失败")
	}
	return run, nil
}

// ListRuns 按创建时间升序返回全部运行状态。
func (s *FlowStore) ListRuns(ctx context.Context) ([]*flow.Run, error) {
	const query = `SELECT id, stage, primary_signer, secondary_signers, tx_hash, error_code, last_error, created_at, updated_at
        FROM flow_runs ORDER BY created_at ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询流程运行失败")
	}
	defer rows.Close()

	var runs []*flow.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析流程运行失败")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历流程运行失败")
	}
	return runs, nil
}

// Close 关闭底层数据库连接。
func (s *FlowStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*flow.Run, error) {
	var (
		run         flow.Run
		stage       string
		primary     string
		secondaries string
		errorCode   string
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(&run.ID, &stage, &primary, &secondaries, &run.TxHash,
		&errorCode, &run.LastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	run.Stage = flow.Stage(stage)
	run.Primary = common.HexToAddress(primary)
	run.ErrorCode = xerrors.Code(errorCode)
	run.CreatedAt = time.UnixMilli(createdAt)
	run.UpdatedAt = time.UnixMilli(updatedAt)

	addrs, err := decodeSecondaries(secondaries)
	if err != nil {
		return nil, err
	}
	run.Secondaries = addrs
	return &run, nil
}

func encodeSecondaries(addrs []common.Address) (string, error) {
	hexes := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		hexes = append(hexes, addr.Hex())
	}
	raw, err := json.Marshal(hexes)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "编码副签名人列表失败")
	}
	return string(raw), nil
}

func decodeSecondaries(raw string) ([]common.Address, error) {
	var hexes []string
	if err := json.Unmarshal([]byte(raw), &hexes); err != nil {
		return nil, fmt.Errorf("解析副签名人列表失败: %w", err)
	}
	addrs := make([]common.Address, 0, len(hexes))
	for _, h := range hexes {
		addrs = append(addrs, common.HexToAddress(h))
	}
	return addrs, nil
}

var _ flow.Store = (*FlowStore)(nil)
