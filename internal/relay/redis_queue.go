package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"CoSign-Relay/pkg/logger"
)

// RedisQueueConfig 描述 Redis 通知队列的连接参数。
type RedisQueueConfig struct {
	Address  string
	Password string
	DB       int
	Queue    string
}

// RedisQueue 基于 Redis list 实现通知队列：Publish 使用 LPUSH，
// 消费端使用 BRPOP 阻塞获取。处理失败的事件会重新入队。
type RedisQueue struct {
	client *redis.Client
	queue  string
}

// NewRedisQueue 创建 Redis 通知队列实例。
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "cosign:notices"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisQueue{client: client, queue: queue}, nil
}

// Publish 将中继事件投递到队列。
func (q *RedisQueue) Publish(ctx context.Context, notice Notice) error {
	raw, err := encodeNotice(notice)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.queue, raw).Err(); err != nil {
		return fmt.Errorf("投递中继通知失败: %w", err)
	}
	return nil
}

// Consume 启动指定数量的工作协程消费队列中的事件。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			log := logger.Named("relay.redis_queue")
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				values, err := q.client.BRPop(ctx, 5*time.Second, q.queue).Result()
				if err == redis.Nil {
					continue
				}
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Warn("拉取中继通知失败", "worker", worker, "error", err)
					time.Sleep(time.Second)
					continue
				}
				if len(values) < 2 {
					continue
				}
				notice, err := decodeNotice([]byte(values[1]))
				if err != nil {
					log.Warn("丢弃无法解析的中继通知", "worker", worker, "error", err)
					continue
				}
				if err := handler(ctx, notice); err != nil {
					log.Warn("处理中继通知失败，重新入队", "worker", worker, "run_id", notice.RunID, "error", err)
					if pushErr := q.client.LPush(ctx, q.queue, values[1]).Err(); pushErr != nil {
						log.Error("重新入队中继通知失败", "worker", worker, "error", pushErr)
					}
				}
			}
		}(i)
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

var _ Queue = (*RedisQueue)(nil)
