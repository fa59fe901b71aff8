package model

import (
	"time"

	"gorm.io/datatypes"
)

// LLM endpoint 类型
const (
	EndpointTypeOpenAI      = "OPENAI"
	EndpointTypeAzureOpenAI = "AZURE_OPENAI"
	EndpointTypeC4          = "C4"
)

// LLMEndpoint 注册的大模型接入点。Configuration 中的 apiKey 以密文保存。
type LLMEndpoint struct {
	ID            string            `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name          string            `gorm:"type:varchar(255);not null" json:"name"`
	Description   string            `gorm:"type:text" json:"description"`
	Type          string            `gorm:"type:varchar(32);not null" json:"type"`
	Configuration datatypes.JSONMap `gorm:"type:json" json:"configuration"`
	Version       int               `gorm:"not null;default:0" json:"version"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (LLMEndpoint) TableName() string {
	return "llm_endpoints"
}
