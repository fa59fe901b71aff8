// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"llm-eval-go/internal/config"
	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// TaskProcessor defines the interface for any service that can process a task.
// This decouples the Kafka consumer from the concrete pipeline implementation.
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.GenerateCatalogTask) error
}

// AttemptCounter 记录任务失败次数，用于决定何时放弃重试。
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// messageCommitter 是 kafka.Reader 中消费循环用到的最小子集。
type messageCommitter interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

var producer *kafka.Writer

// InitProducer 初始化 Kafka 生产者。
func InitProducer(cfg config.KafkaConfig) {
	producer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	log.Info("Kafka 生产者初始化成功")
}

// CloseProducer 关闭生产者并刷新缓冲区。
func CloseProducer() {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		log.Errorf("关闭 Kafka 生产者失败: %v", err)
	}
}

// Publisher 通过全局生产者投递生成任务。
type Publisher struct{}

// PublishGenerateCatalog 发送一个问答目录生成任务到 Kafka，以 catalog id 作为消息 key。
func (Publisher) PublishGenerateCatalog(ctx context.Context, task tasks.GenerateCatalogTask) error {
	if producer == nil {
		return errors.New("kafka producer 未初始化")
	}
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.Key()),
		Value: taskBytes,
	})
}

// RedisAttemptCounter 使用 Redis INCR 计数失败次数，计数 24 小时后过期。
type RedisAttemptCounter struct {
	RDB *redis.Client
}

func attemptsKey(key string) string {
	return fmt.Sprintf("kafka:attempts:%s", key)
}

// Incr 增加失败计数并返回当前值。
func (c RedisAttemptCounter) Incr(ctx context.Context, key string) (int64, error) {
	k := attemptsKey(key)
	attempts, err := c.RDB.Incr(ctx, k).Result()
	if err != nil {
		return 0, err
	}
	_ = c.RDB.Expire(ctx, k, 24*time.Hour).Err()
	return attempts, nil
}

// Reset 清理失败计数。
func (c RedisAttemptCounter) Reset(ctx context.Context, key string) error {
	return c.RDB.Del(ctx, attemptsKey(key)).Err()
}

// StartConsumer 启动一个 Kafka 消费者来处理生成任务，ctx 取消后退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, counter AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("从 Kafka 读取消息失败", err)
			}
			break
		}
		log.Infof("收到 Kafka 消息: offset %d", m.Offset)
		handleMessage(ctx, r, m, processor, counter, maxAttempts)
	}

	if err := r.Close(); err != nil {
		log.Errorf("关闭 Kafka 消费者失败: %v", err)
	}
	log.Info("Kafka 消费者已退出")
}

// handleMessage 同步处理一条消息并决定是否提交 offset。
// 成功或超过最大尝试次数时提交；否则不提交，让 Kafka 重新投递。
func handleMessage(ctx context.Context, r messageCommitter, m kafka.Message, processor TaskProcessor, counter AttemptCounter, maxAttempts int) {
	var task tasks.GenerateCatalogTask
	if err := json.Unmarshal(m.Value, &task); err != nil || task.CatalogID == "" {
		log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
		// 消息格式错误，直接提交，避免阻塞队列
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("提交错误消息失败: %v", err)
		}
		return
	}

	log.Infof("开始处理生成任务: CatalogID=%s", task.CatalogID)
	if err := processor.Process(ctx, task); err != nil {
		log.Errorf("处理生成任务失败: CatalogID=%s, Error: %v", task.CatalogID, err)
		attempts, incErr := counter.Incr(ctx, task.Key())
		if incErr != nil {
			// Redis 异常时保守处理：不提交 offset，让 Kafka 重试
			log.Errorf("记录失败次数失败: %v", incErr)
			return
		}
		if attempts >= int64(maxAttempts) {
			log.Errorf("生成任务多次失败(>=%d)，提交 offset 终止重试: CatalogID=%s", maxAttempts, task.CatalogID)
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
			}
		}
		return
	}

	log.Infof("生成任务处理成功: CatalogID=%s", task.CatalogID)
	_ = counter.Reset(ctx, task.Key())
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
