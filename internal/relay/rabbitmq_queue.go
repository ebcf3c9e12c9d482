package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"CoSign-Relay/pkg/logger"
)

// RabbitMQQueueConfig 描述 RabbitMQ 通知队列的连接参数。
type RabbitMQQueueConfig struct {
	URL   string
	Queue string
}

// RabbitMQQueue 基于 RabbitMQ 实现通知队列，使用手动 ack：
// 处理成功 ack，处理失败 nack 并重新入队。
type RabbitMQQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewRabbitMQQueue 创建 RabbitMQ 通知队列实例。
func NewRabbitMQQueue(cfg RabbitMQQueueConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "cosign.notices"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("打开 RabbitMQ channel 失败: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("声明队列 %s 失败: %w", queue, err)
	}
	return &RabbitMQQueue{conn: conn, channel: channel, queue: queue}, nil
}

// Publish 将中继事件投递到队列。
func (q *RabbitMQQueue) Publish(ctx context.Context, notice Notice) error {
	raw, err := encodeNotice(notice)
	if err != nil {
		return err
	}
	err = q.channel.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         raw,
	})
	if err != nil {
		return fmt.Errorf("投递中继通知失败: %w", err)
	}
	return nil
}

// Consume 启动指定数量的工作协程消费队列中的事件。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	if err := q.channel.Qos(workerCount, 0, false); err != nil {
		return fmt.Errorf("设置 Qos 失败: %w", err)
	}
	deliveries, err := q.channel.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("订阅队列 %s 失败: %w", q.queue, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			log := logger.Named("relay.rabbitmq_queue")
			for {
				select {
				case <-ctx.Done():
					return
				case delivery, ok := <-deliveries:
					if !ok {
						return
					}
					notice, err := decodeNotice(delivery.Body)
					if err != nil {
						log.Warn("丢弃无法解析的中继通知", "worker", worker, "error", err)
						_ = delivery.Nack(false, false)
						continue
					}
					if err := handler(ctx, notice); err != nil {
						log.Warn("处理中继通知失败，重新入队", "worker", worker, "run_id", notice.RunID, "error", err)
						_ = delivery.Nack(false, true)
						continue
					}
					_ = delivery.Ack(false)
				}
			}
		}(i)
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭 channel 与连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	var firstErr error
	if q.channel != nil {
		if err := q.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if q.conn != nil {
		if err := q.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Queue = (*RabbitMQQueue)(nil)
