package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"llm-eval-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// GenerationProgress 是目录生成任务的进度快照。
type GenerationProgress struct {
	CatalogID string    `json:"catalogId"`
	Status    string    `json:"status"`
	Requested int       `json:"requested"`
	Delivered int       `json:"delivered"`
	Error     string    `json:"error,omitempty"`
	Done      bool      `json:"done"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProgressRepository 保存并广播生成进度。
type ProgressRepository interface {
	Publish(ctx context.Context, p GenerationProgress) error
	Latest(ctx context.Context, catalogID string) (*GenerationProgress, error)
	Subscribe(ctx context.Context, catalogID string) (<-chan GenerationProgress, func(), error)
}

type progressRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewProgressRepository 创建基于 Redis 的进度仓库。
func NewProgressRepository(redisClient *redis.Client) ProgressRepository {
	return &progressRepository{redisClient: redisClient, ttl: 24 * time.Hour}
}

func progressKey(catalogID string) string     { return "generation:progress:" + catalogID }
func progressChannel(catalogID string) string { return "generation:events:" + catalogID }

// Publish 写入最新快照并发布到频道。
func (r *progressRepository) Publish(ctx context.Context, p GenerationProgress) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe := r.redisClient.TxPipeline()
	pipe.Set(ctx, progressKey(p.CatalogID), data, r.ttl)
	pipe.Publish(ctx, progressChannel(p.CatalogID), data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

// Latest 返回最近一次快照，没有时返回 nil。
func (r *progressRepository) Latest(ctx context.Context, catalogID string) (*GenerationProgress, error) {
	data, err := r.redisClient.Get(ctx, progressKey(catalogID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p GenerationProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Subscribe 订阅进度事件，返回的关闭函数释放订阅。
func (r *progressRepository) Subscribe(ctx context.Context, catalogID string) (<-chan GenerationProgress, func(), error) {
	sub := r.redisClient.Subscribe(ctx, progressChannel(catalogID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe progress: %w", err)
	}

	out := make(chan GenerationProgress, 16)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var p GenerationProgress
			if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
				log.Warnf("[Progress] 忽略无法解析的进度消息: %v", err)
				continue
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() { _ = sub.Close() }, nil
}
