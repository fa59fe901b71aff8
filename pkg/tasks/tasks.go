// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import (
	"encoding/json"
	"fmt"
)

// GenerationModelConfig selects the chat model used by a generator.
// An empty LLMEndpoint means the service-wide default model.
type GenerationModelConfig struct {
	Type        string `json:"type,omitempty"`
	LLMEndpoint string `json:"llmEndpoint,omitempty"`
}

// GenerationData is the catalog generation request as accepted by the API.
type GenerationData struct {
	Type               string                `json:"type" binding:"required"`
	Name               string                `json:"name" binding:"required"`
	Config             json.RawMessage       `json:"config" binding:"required"`
	ModelConfig        GenerationModelConfig `json:"modelConfigSchema"`
	DataSourceConfigID string                `json:"dataSourceConfigId" binding:"required"`
}

// GenerateCatalogTask represents a QA catalog generation job.
// Data holds the original generation request so the worker sees exactly
// what the API validated.
type GenerateCatalogTask struct {
	CatalogID string          `json:"catalog_id"`
	Data      json.RawMessage `json:"data"`
	UserID    string          `json:"user_id,omitempty"`
}

// NewGenerateCatalogTask packs a generation request into a task.
func NewGenerateCatalogTask(catalogID, userID string, data GenerationData) (GenerateCatalogTask, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return GenerateCatalogTask{}, err
	}
	return GenerateCatalogTask{CatalogID: catalogID, Data: raw, UserID: userID}, nil
}

// Key identifies the task for retry bookkeeping.
func (t GenerateCatalogTask) Key() string {
	return t.CatalogID
}

// Decode unpacks the generation request carried by the task.
func (t GenerateCatalogTask) Decode() (GenerationData, error) {
	var data GenerationData
	if len(t.Data) == 0 {
		return data, fmt.Errorf("task %s carries no generation data", t.CatalogID)
	}
	if err := json.Unmarshal(t.Data, &data); err != nil {
		return data, fmt.Errorf("decode generation data: %w", err)
	}
	return data, nil
}
