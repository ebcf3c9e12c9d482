package relay

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"CoSign-Relay/deploy/migrations"
	xerrors "CoSign-Relay/internal/errors"
)

// MySQLStore 使用 MySQL 保存中继槽位，让真实后端替代内存模拟。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore 并应用迁移。
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "应用数据库迁移失败")
	}
	return &MySQLStore{db: db}, nil
}

// PutTransaction 写入交易槽位。
func (s *MySQLStore) PutTransaction(ctx context.Context, runID, artifact string) error {
	if strings.TrimSpace(runID) == "" || strings.TrimSpace(artifact) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "运行 ID 与交易工件不能为空")
	}
	const stmt = `INSERT INTO relay_transactions (run_id, artifact, stored_at)
        VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE artifact = VALUES(artifact), stored_at = VALUES(stored_at)`
	if _, err := s.db.ExecContext(ctx, stmt, runID, artifact, time.Now().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入交易槽位失败")
	}
	return nil
}

// Transaction 读取交易槽位。
func (s *MySQLStore) Transaction(ctx context.Context, runID string) (string, error) {
	const query = `SELECT artifact FROM relay_transactions WHERE run_id = ?`
	var artifact string
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&artifact)
	if err == sql.ErrNoRows {
		return "", ErrEmptySlot
	}
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取交易槽位失败")
	}
	if artifact == "" {
		return "", ErrEmptySlot
	}
	return artifact, nil
}

// PutAuthenticator 写入授权槽位，同一签名人重复写入时保留原顺序位置。
func (s *MySQLStore) PutAuthenticator(ctx context.Context, runID, signer, artifact string) error {
	if strings.TrimSpace(runID) == "" || strings.TrimSpace(signer) == "" || strings.TrimSpace(artifact) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "运行 ID、签名人与授权工件不能为空")
	}
	// MySQL 不允许 INSERT 的子查询直接引用目标表，这里借助派生表绕开。
	const stmt = `INSERT INTO relay_authenticators (run_id, signer, artifact, position, stored_at)
        VALUES (?, ?, ?, (SELECT COALESCE(MAX(t.position), 0) + 1
                FROM (SELECT position FROM relay_authenticators WHERE run_id = ?) AS t), ?)
        ON DUPLICATE KEY UPDATE artifact = VALUES(artifact), stored_at = VALUES(stored_at)`
	if _, err := s.db.ExecContext(ctx, stmt, runID, signer, artifact, runID, time.Now().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入授权槽位失败")
	}
	return nil
}

// Authenticators 按写入顺序返回授权工件。
func (s *MySQLStore) Authenticators(ctx context.Context, runID string) ([]AuthenticatorEntry, error) {
	const query = `SELECT signer, artifact, stored_at FROM relay_authenticators
        WHERE run_id = ? ORDER BY position ASC`
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取授权槽位失败")
	}
	defer rows.Close()

	var entries []AuthenticatorEntry
	for rows.Next() {
		var entry AuthenticatorEntry
		if err := rows.Scan(&entry.Signer, &entry.Artifact, &entry.StoredAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析授权槽位失败")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历授权槽位失败")
	}
	return entries, nil
}

// ClearAuthenticators 仅清空授权槽位，保留交易槽位。
func (s *MySQLStore) ClearAuthenticators(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM relay_authenticators WHERE run_id = ?`, runID); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "清空授权槽位失败")
	}
	return nil
}

// Clear 清空指定流程运行的槽位。
func (s *MySQLStore) Clear(ctx context.Context, runID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM relay_transactions WHERE run_id = ?`, runID); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "清空交易槽位失败")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM relay_authenticators WHERE run_id = ?`, runID); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "清空授权槽位失败")
	}
	return nil
}

// Close 关闭数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*MySQLStore)(nil)
