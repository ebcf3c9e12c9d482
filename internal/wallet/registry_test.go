package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestMemoryRegistryUpsert(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	if _, err := reg.Get(ctx, "alice"); !errors.Is(err, ErrUnknownWallet) {
		t.Fatalf("expected ErrUnknownWallet, got %v", err)
	}

	first := time.Unix(1_700_000_000, 0)
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")
	if err := reg.Save(ctx, Record{
		Name:            "alice",
		Address:         addr,
		RegisteredAt:    first,
		LastConnectedAt: first,
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// 再次保存：首次注册时间不变，连接时间只向前推进
	later := first.Add(time.Hour)
	newAddr := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if err := reg.Save(ctx, Record{
		Name:            "alice",
		Address:         newAddr,
		RegisteredAt:    later,
		LastConnectedAt: later,
	}); err != nil {
		t.Fatalf("resave: %v", err)
	}

	record, err := reg.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Address != newAddr {
		t.Fatalf("address must follow the latest save: %s", record.Address.Hex())
	}
	if !record.RegisteredAt.Equal(first) {
		t.Fatalf("registered_at must keep the first value: %v", record.RegisteredAt)
	}
	if !record.LastConnectedAt.Equal(later) {
		t.Fatalf("last_connected_at must advance: %v", record.LastConnectedAt)
	}

	// 更早的连接时间不得回退
	if err := reg.Save(ctx, Record{
		Name:            "alice",
		Address:         newAddr,
		RegisteredAt:    first,
		LastConnectedAt: first,
	}); err != nil {
		t.Fatalf("stale save: %v", err)
	}
	record, _ = reg.Get(ctx, "alice")
	if !record.LastConnectedAt.Equal(later) {
		t.Fatalf("last_connected_at must not regress: %v", record.LastConnectedAt)
	}
}

func TestMemoryRegistryListSorted(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		if err := reg.Save(ctx, Record{Name: name}); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}
	records, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"alice", "bob", "carol"}
	if len(records) != len(want) {
		t.Fatalf("record count: got %d want %d", len(records), len(want))
	}
	for i, record := range records {
		if record.Name != want[i] {
			t.Fatalf("order broken at %d: got %s want %s", i, record.Name, want[i])
		}
	}
}

func TestServiceRecordsConnections(t *testing.T) {
	keyring := NewKeyring()
	addr, err := keyring.Generate("alice")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	reg := NewMemoryRegistry()
	svc := NewService(keyring, nil, WithRegistry(reg))

	if _, err := svc.Connect(context.Background(), "alice"); err != nil {
		t.Fatalf("connect: %v", err)
	}

	record, err := reg.Get(context.Background(), "alice")
	if err != nil {
		t.Fatalf("registry get: %v", err)
	}
	if record.Address != addr {
		t.Fatalf("recorded address: got %s want %s", record.Address.Hex(), addr.Hex())
	}
	if record.LastConnectedAt.IsZero() {
		t.Fatal("last_connected_at must be recorded on connect")
	}
}
