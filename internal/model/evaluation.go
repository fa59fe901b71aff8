package model

import (
	"time"

	"gorm.io/datatypes"
)

// 评估指标类型
const (
	MetricTypeFaithfulness    = "FAITHFULNESS"
	MetricTypeAnswerRelevancy = "ANSWER_RELEVANCY"
	MetricTypeHallucination   = "HALLUCINATION"
	MetricTypeGEval           = "G_EVAL"
)

// 评估状态
const (
	EvaluationStatusPending = "PENDING"
	EvaluationStatusRunning = "RUNNING"
	EvaluationStatusSuccess = "SUCCESS"
	EvaluationStatusFailure = "FAILURE"
)

// MetricConfig 评估指标配置，Configuration 的结构由 Type 决定。
type MetricConfig struct {
	ID            string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string            `gorm:"type:varchar(255);not null" json:"name"`
	Type          string            `gorm:"type:varchar(32);not null;index" json:"type"`
	Configuration datatypes.JSONMap `gorm:"type:json" json:"configuration"`
	Version       int               `gorm:"not null;default:0" json:"version"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (MetricConfig) TableName() string {
	return "metric_configs"
}

// Evaluation 一次评估运行：用指定指标在问答目录上评估某个 LLM endpoint。
type Evaluation struct {
	ID            string                      `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string                      `gorm:"type:varchar(255);not null" json:"name"`
	Status        string                      `gorm:"type:varchar(20);not null;index" json:"status"`
	QACatalogID   string                      `gorm:"type:varchar(36);not null;index" json:"qaCatalogId"`
	LLMEndpointID string                      `gorm:"type:varchar(36);not null" json:"llmEndpointId"`
	MetricIDs     datatypes.JSONSlice[string] `gorm:"type:json" json:"metricIds"`
	Version       int                         `gorm:"not null;default:0" json:"version"`
	CreatedAt     time.Time                   `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time                   `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Evaluation) TableName() string {
	return "evaluations"
}
