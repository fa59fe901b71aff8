// Package metrics 定义服务暴露给 Prometheus 的指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration 记录 HTTP 请求耗时。
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "llm_eval",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	// GeneratedSamples 按结果 (delivered/empty/failed) 统计单样本生成任务。
	GeneratedSamples = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llm_eval",
		Name:      "generated_samples_total",
		Help:      "Single-sample generation tasks by outcome.",
	}, []string{"outcome"})

	// KnowledgeGraphCache 统计知识图谱缓存命中情况 (hit/miss/corrupt)。
	KnowledgeGraphCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llm_eval",
		Name:      "knowledge_graph_cache_total",
		Help:      "Knowledge graph cache lookups by result.",
	}, []string{"result"})

	// GenerationTasks 统计目录生成任务的最终状态。
	GenerationTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llm_eval",
		Name:      "generation_tasks_total",
		Help:      "Catalog generation tasks by final status.",
	}, []string{"status"})
)
