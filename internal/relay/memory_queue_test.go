package relay

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueuePublishConsume(t *testing.T) {
	queue := NewMemoryQueue(4)
	defer queue.Close()

	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var got []Notice
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = queue.Consume(ctx, 2, func(_ context.Context, notice Notice) error {
			mu.Lock()
			got = append(got, notice)
			if len(got) == 2 {
				cancel()
			}
			mu.Unlock()
			return nil
		})
	}()

	if err := queue.Publish(ctx, Notice{RunID: "run-1", Event: EventTransactionReady}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := queue.Publish(ctx, Notice{RunID: "run-1", Event: EventCountersigned}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not drain the queue in time")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("received %d notices, want 2", len(got))
	}
}

func TestMemoryQueueRejectsAfterClose(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := queue.Publish(context.Background(), Notice{RunID: "run-1"}); err == nil {
		t.Fatal("publish after close must fail")
	}
}

func TestNoticeCodec(t *testing.T) {
	raw, err := encodeNotice(Notice{RunID: "run-1", Event: EventSubmitted})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	notice, err := decodeNotice(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if notice.RunID != "run-1" || notice.Event != EventSubmitted {
		t.Fatalf("round trip mismatch: %+v", notice)
	}
	if _, err := decodeNotice([]byte("not-json")); err == nil {
		t.Fatal("garbage payload must fail to decode")
	}
}
