package relay

import (
	"context"
	"strings"
	"sync"
	"time"

	xerrors "CoSign-Relay/internal/errors"
)

// MemoryStore 以内存方式保存中继槽位，主要用于测试与单机部署。
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]*slotRecord
}

type slotRecord struct {
	transaction    string
	authenticators []AuthenticatorEntry
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]*slotRecord)}
}

// PutTransaction 实现 Store 接口。
func (m *MemoryStore) PutTransaction(_ context.Context, runID, artifact string) error {
	if strings.TrimSpace(runID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "运行 ID 不能为空")
	}
	if strings.TrimSpace(artifact) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "交易工件不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.slots[runID]
	if !ok {
		rec = &slotRecord{}
		m.slots[runID] = rec
	}
	rec.transaction = artifact
	return nil
}

// Transaction 读取交易槽位。
func (m *MemoryStore) Transaction(_ context.Context, runID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.slots[runID]
	if !ok || rec.transaction == "" {
		return "", ErrEmptySlot
	}
	return rec.transaction, nil
}

// PutAuthenticator 写入授权槽位，同一签名人保持原有顺序位置。
func (m *MemoryStore) PutAuthenticator(_ context.Context, runID, signer, artifact string) error {
	if strings.TrimSpace(runID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "运行 ID 不能为空")
	}
	if strings.TrimSpace(signer) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "签名人不能为空")
	}
	if strings.TrimSpace(artifact) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "授权工件不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.slots[runID]
	if !ok {
		rec = &slotRecord{}
		m.slots[runID] = rec
	}
	now := time.Now().Unix()
	for i := range rec.authenticators {
		if rec.authenticators[i].Signer == signer {
			rec.authenticators[i].Artifact = artifact
			rec.authenticators[i].StoredAt = now
			return nil
		}
	}
	rec.authenticators = append(rec.authenticators, AuthenticatorEntry{
		Signer:   signer,
		Artifact: artifact,
		StoredAt: now,
	})
	return nil
}

// Authenticators 返回授权槽位快照。
func (m *MemoryStore) Authenticators(_ context.Context, runID string) ([]AuthenticatorEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.slots[runID]
	if !ok || len(rec.authenticators) == 0 {
		return nil, nil
	}
	return append([]AuthenticatorEntry(nil), rec.authenticators...), nil
}

// ClearAuthenticators 仅清空授权槽位，保留交易槽位。
func (m *MemoryStore) ClearAuthenticators(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.slots[runID]; ok {
		rec.authenticators = nil
	}
	return nil
}

// Clear 清空指定流程运行的槽位。
func (m *MemoryStore) Clear(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, runID)
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
