package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Record 是签名人注册表中的一条记录，保存签名人的地址与连接历史。
type Record struct {
	Name            string         `json:"name"`
	Address         common.Address `json:"address"`
	RegisteredAt    time.Time      `json:"registered_at"`
	LastConnectedAt time.Time      `json:"last_connected_at"`
}

// Registry 持久化签名人注册信息。Save 是幂等的新增或更新：
// 已存在的记录保留首次注册时间，最近连接时间只向前推进。
type Registry interface {
	Save(ctx context.Context, record Record) error
	Get(ctx context.Context, name string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// MemoryRegistry 以内存方式保存注册表，用于测试与单机部署。
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRegistry 创建 MemoryRegistry。
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[string]Record)}
}

// Save 实现 Registry 接口。
func (m *MemoryRegistry) Save(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[record.Name]
	if ok {
		record.RegisteredAt = existing.RegisteredAt
		if !record.LastConnectedAt.After(existing.LastConnectedAt) {
			record.LastConnectedAt = existing.LastConnectedAt
		}
	}
	m.records[record.Name] = record
	return nil
}

// Get 按名称查找记录，不存在时返回 ErrUnknownWallet。
func (m *MemoryRegistry) Get(_ context.Context, name string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[name]
	if !ok {
		return Record{}, ErrUnknownWallet
	}
	return record, nil
}

// List 按名称字典序返回全部记录。
func (m *MemoryRegistry) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]Record, 0, len(m.records))
	for _, record := range m.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Close 对内存注册表无需操作。
func (m *MemoryRegistry) Close() error {
	return nil
}

var _ Registry = (*MemoryRegistry)(nil)
