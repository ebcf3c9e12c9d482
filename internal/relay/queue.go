package relay

import (
	"context"
	"encoding/json"
	"fmt"
)

// 中继通知事件。
const (
	EventTransactionReady = "transaction_ready"
	EventCountersigned    = "countersigned"
	EventSubmitted        = "submitted"
)

// Notice 描述一次中继槽位写入事件，远端副签名人据此得知有交易待签。
type Notice struct {
	RunID string `json:"run_id"`
	Event string `json:"event"`
}

func encodeNotice(notice Notice) ([]byte, error) {
	raw, err := json.Marshal(notice)
	if err != nil {
		return nil, fmt.Errorf("编码中继通知失败: %w", err)
	}
	return raw, nil
}

func decodeNotice(raw []byte) (Notice, error) {
	var notice Notice
	if err := json.Unmarshal(raw, &notice); err != nil {
		return Notice{}, fmt.Errorf("解析中继通知失败: %w", err)
	}
	return notice, nil
}

// Handler 处理来自通知队列的中继事件。
type Handler func(ctx context.Context, notice Notice) error

// Producer 负责向队列投递中继事件。
type Producer interface {
	Publish(ctx context.Context, notice Notice) error
	Close() error
}

// Consumer 负责从队列中消费中继事件。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
