package flow

import "testing"

func TestStreamAppendOrder(t *testing.T) {
	stream := NewStream()
	stream.Info("step %d", 1)
	stream.Error("boom")
	stream.Info("step %d", 2)

	entries := stream.Entries()
	if len(entries) != 3 {
		t.Fatalf("entry count: got %d want 3", len(entries))
	}
	for i, entry := range entries {
		if entry.Seq != i+1 {
			t.Fatalf("seq at %d: got %d want %d", i, entry.Seq, i+1)
		}
	}
	if entries[0].Level != LevelInfo || entries[1].Level != LevelError || entries[2].Level != LevelInfo {
		t.Fatalf("unexpected levels: %+v", entries)
	}
	if entries[1].Message != "boom" {
		t.Fatalf("unexpected message: %s", entries[1].Message)
	}
}

func TestStreamSnapshotIsolated(t *testing.T) {
	stream := NewStream()
	stream.Info("first")

	snapshot := stream.Entries()
	stream.Info("second")

	if len(snapshot) != 1 {
		t.Fatalf("snapshot must not grow, got %d", len(snapshot))
	}
	if stream.Len() != 2 {
		t.Fatalf("stream length: got %d want 2", stream.Len())
	}
}
