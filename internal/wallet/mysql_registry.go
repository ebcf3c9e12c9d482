package wallet

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/go-sql-driver/mysql"

	"CoSign-Relay/deploy/migrations"
	xerrors "CoSign-Relay/internal/errors"
)

// MySQLRegistry 把签名人注册表落库到 MySQL。
type MySQLRegistry struct {
	db *sql.DB
}

// NewMySQLRegistry 创建连接池并应用迁移。
func NewMySQLRegistry(ctx context.Context, dsn string) (*MySQLRegistry, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}
	if err := migrations.Apply(ctx, db); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "应用数据库迁移失败")
	}
	return &MySQLRegistry{db: db}, nil
}

// Save 新增或更新一条注册记录。已存在的记录保留首次注册时间，
// 最近连接时间只向前推进。
func (r *MySQLRegistry) Save(ctx context.Context, record Record) error {
	if strings.TrimSpace(record.Name) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "签名人名称不能为空")
	}
	const stmt = `INSERT INTO wallet_signers (name, address, registered_at, last_connected_at)
        VALUES (?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
        address = VALUES(address),
        last_connected_at = GREATEST(last_connected_at, VALUES(last_connected_at))`
	if _, err := r.db.ExecContext(ctx, stmt,
		record.Name,
		record.Address.Hex(),
		unixMilliOrZero(record.RegisteredAt),
		unixMilliOrZero(record.LastConnectedAt),
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入签名人注册表失败")
	}
	return nil
}

// Get 按名称读取注册记录。
func (r *MySQLRegistry) Get(ctx context.Context, name string) (Record, error) {
	const query = `SELECT name, address, registered_at, last_connected_at
        FROM wallet_signers WHERE name = ?`
	record, err := scanRecord(r.db.QueryRowContext(ctx, query, name))
	if err == sql.ErrNoRows {
		return Record{}, ErrUnknownWallet
	}
	if err != nil {
		return Record{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取签名人注册表失败")
	}
	return record, nil
}

// List 按名称字典序返回全部注册记录。
func (r *MySQLRegistry) List(ctx context.Context) ([]Record, error) {
	const query = `SELECT name, address, registered_at, last_connected_at
        FROM wallet_signers ORDER BY name ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询签名人注册表失败")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析签名人注册表失败")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历签名人注册表失败")
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (r *MySQLRegistry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		record          Record
		address         string
		registeredAt    int64
		lastConnectedAt int64
	)
	if err := row.Scan(&record.Name, &address, &registeredAt, &lastConnectedAt); err != nil {
		return Record{}, err
	}
	record.Address = common.HexToAddress(address)
	record.RegisteredAt = timeFromMilli(registeredAt)
	record.LastConnectedAt = timeFromMilli(lastConnectedAt)
	return record, nil
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeFromMilli(millis int64) time.Time {
	if millis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis)
}

var _ Registry = (*MySQLRegistry)(nil)
