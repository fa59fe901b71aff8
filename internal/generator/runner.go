package generator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/metrics"

	"golang.org/x/sync/semaphore"
)

// SampleFunc 执行一次生成调用，请求恰好一个样本。
// 每次调用应使用自己独立的生成器副本。
type SampleFunc func(ctx context.Context) ([]SyntheticQAPair, error)

// BatchStats 汇总一批采样任务的结果。
type BatchStats struct {
	Requested int `json:"requested"`
	Delivered int `json:"delivered"`
	Empty     int `json:"empty"`
	Failed    int `json:"failed"`
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeEmpty
	outcomeFailed
)

// RunSamples 启动 count 个单样本任务，同一时刻最多 limit 个生成调用在执行。
// 样本按完成先后交给 consume；单个任务失败或返回空结果只记录日志，不影响其他任务，也不重试。
// consume 返回的错误不会中断收集，全部任务结束后合并返回。
func RunSamples(ctx context.Context, count, limit int, sample SampleFunc, consume SampleConsumer) (BatchStats, error) {
	stats := BatchStats{Requested: count}
	if count <= 0 {
		return stats, nil
	}
	if limit <= 0 {
		limit = 1
	}

	sem := semaphore.NewWeighted(int64(limit))
	samples := make(chan SyntheticQAPair)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[outcome]int{}
	)
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			pair, res := runOne(ctx, sem, sample, idx)
			mu.Lock()
			outcomes[res]++
			mu.Unlock()
			if res == outcomeDelivered {
				samples <- pair
			}
		}(i)
	}

	// 所有生产者退出后关闭通道，收集端据此判断结束
	go func() {
		wg.Wait()
		close(samples)
	}()

	log.Info("[Generator] 等待生成的问答样本")
	var errs []error
	for pair := range samples {
		stats.Delivered++
		if err := consume(ctx, pair); err != nil {
			log.Errorf("[Generator] 处理样本 %s 失败: %v", pair.ID, err)
			errs = append(errs, fmt.Errorf("consume sample %s: %w", pair.ID, err))
		}
	}

	stats.Empty = outcomes[outcomeEmpty]
	stats.Failed = outcomes[outcomeFailed]
	log.Infof("[Generator] 采样完成: requested=%d delivered=%d empty=%d failed=%d",
		stats.Requested, stats.Delivered, stats.Empty, stats.Failed)
	return stats, errors.Join(errs...)
}

// runOne 在信号量保护下执行一次生成调用，任何退出路径都会释放名额。
func runOne(ctx context.Context, sem *semaphore.Weighted, sample SampleFunc, idx int) (pair SyntheticQAPair, res outcome) {
	if err := ctx.Err(); err != nil {
		log.Errorf("[Generator] 样本 %d 未执行: %v", idx, err)
		metrics.GeneratedSamples.WithLabelValues("failed").Inc()
		return pair, outcomeFailed
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		log.Errorf("[Generator] 样本 %d 获取并发名额失败: %v", idx, err)
		metrics.GeneratedSamples.WithLabelValues("failed").Inc()
		return pair, outcomeFailed
	}
	defer sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("[Generator] 生成样本 panic", "index", idx, "panic", r, "stack", string(debug.Stack()))
			res = outcomeFailed
		}
		switch res {
		case outcomeDelivered:
			metrics.GeneratedSamples.WithLabelValues("delivered").Inc()
		case outcomeEmpty:
			metrics.GeneratedSamples.WithLabelValues("empty").Inc()
		default:
			metrics.GeneratedSamples.WithLabelValues("failed").Inc()
		}
	}()

	pairs, err := sample(ctx)
	if err != nil {
		log.Errorw("[Generator] 生成样本失败", "index", idx, "error", err, "stack", string(debug.Stack()))
		return pair, outcomeFailed
	}
	if len(pairs) == 0 {
		log.Errorf("[Generator] 样本 %d 返回空结果", idx)
		return pair, outcomeEmpty
	}
	return pairs[0], outcomeDelivered
}
