package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig 描述 Redis 中继存储的连接参数。
type RedisStoreConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore 使用 Redis 保存中继槽位，供多个进程共享同一个中继。
// 交易槽位是普通字符串键，授权槽位由一个 hash 和一个记录写入顺序的
// list 组成。
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore 创建 Redis 中继存储实例。
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "cosign:relay"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

// PutTransaction 写入交易槽位。
func (s *RedisStore) PutTransaction(ctx context.Context, runID, artifact string) error {
	if err := s.client.Set(ctx, s.txKey(runID), artifact, s.ttl).Err(); err != nil {
		return fmt.Errorf("写入交易槽位失败: %w", err)
	}
	return nil
}

// Transaction 读取交易槽位。
func (s *RedisStore) Transaction(ctx context.Context, runID string) (string, error) {
	artifact, err := s.client.Get(ctx, s.txKey(runID)).Result()
	if err == redis.Nil {
		return "", ErrEmptySlot
	}
	if err != nil {
		return "", fmt.Errorf("读取交易槽位失败: %w", err)
	}
	if artifact == "" {
		return "", ErrEmptySlot
	}
	return artifact, nil
}

// PutAuthenticator 写入授权槽位。首次写入的签名人追加到顺序表末尾。
func (s *RedisStore) PutAuthenticator(ctx context.Context, runID, signer, artifact string) error {
	added, err := s.client.HSet(ctx, s.authKey(runID), signer, artifact).Result()
	if err != nil {
		return fmt.Errorf("写入授权槽位失败: %w", err)
	}
	if added > 0 {
		if err := s.client.RPush(ctx, s.orderKey(runID), signer).Err(); err != nil {
			return fmt.Errorf("记录授权顺序失败: %w", err)
		}
	}
	if err := s.client.HSet(ctx, s.timeKey(runID), signer, time.Now().Unix()).Err(); err != nil {
		return fmt.Errorf("记录授权时间失败: %w", err)
	}
	if s.ttl > 0 {
		for _, key := range []string{s.authKey(runID), s.orderKey(runID), s.timeKey(runID)} {
			_ = s.client.Expire(ctx, key, s.ttl).Err()
		}
	}
	return nil
}

// Authenticators 按写入顺序返回授权工件。
func (s *RedisStore) Authenticators(ctx context.Context, runID string) ([]AuthenticatorEntry, error) {
	signers, err := s.client.LRange(ctx, s.orderKey(runID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("读取授权顺序失败: %w", err)
	}
	if len(signers) == 0 {
		return nil, nil
	}

	artifacts, err := s.client.HGetAll(ctx, s.authKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取授权槽位失败: %w", err)
	}
	storedAt, err := s.client.HGetAll(ctx, s.timeKey(runID)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("读取授权时间失败: %w", err)
	}

	entries := make([]AuthenticatorEntry, 0, len(signers))
	for _, signer := range signers {
		artifact, ok := artifacts[signer]
		if !ok || artifact == "" {
			continue
		}
		entry := AuthenticatorEntry{Signer: signer, Artifact: artifact}
		if raw, ok := storedAt[signer]; ok {
			_, _ = fmt.Sscanf(raw, "%d", &entry.StoredAt)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ClearAuthenticators 仅清空授权槽位，保留交易槽位。
func (s *RedisStore) ClearAuthenticators(ctx context.Context, runID string) error {
	keys := []string{s.authKey(runID), s.orderKey(runID), s.timeKey(runID)}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("清空授权槽位失败: %w", err)
	}
	return nil
}

// Clear 清空指定流程运行的槽位。
func (s *RedisStore) Clear(ctx context.Context, runID string) error {
	keys := []string{s.txKey(runID), s.authKey(runID), s.orderKey(runID), s.timeKey(runID)}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("清空中继槽位失败: %w", err)
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) txKey(runID string) string {
	return fmt.Sprintf("%s:%s:tx", s.prefix, runID)
}

func (s *RedisStore) authKey(runID string) string {
	return fmt.Sprintf("%s:%s:auth", s.prefix, runID)
}

func (s *RedisStore) orderKey(runID string) string {
	return fmt.Sprintf("%s:%s:auth:order", s.prefix, runID)
}

func (s *RedisStore) timeKey(runID string) string {
	return fmt.Sprintf("%s:%s:auth:time", s.prefix, runID)
}

var _ Store = (*RedisStore)(nil)
