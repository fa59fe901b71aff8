// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"context"
	"fmt"

	"llm-eval-go/internal/config"
	"llm-eval-go/pkg/log"

	"github.com/sashabaranov/go-openai"
)

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
	// CreateEmbeddings 批量向量化，返回顺序与输入一致。
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *openai.Client
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(cfg config.EmbeddingConfig) Client {
	var clientConfig openai.ClientConfig
	if cfg.Provider == "azure" {
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientConfig.APIVersion = cfg.APIVersion
		}
	} else {
		clientConfig = openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.CreateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *openAICompatibleClient) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		log.Debugf("[EmbeddingClient] 调用 Embedding API, model: %s, batch: %d-%d", c.cfg.Model, start, end)
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts[start:end],
			Model:      openai.EmbeddingModel(c.cfg.Model),
			Dimensions: c.cfg.Dimensions,
		})
		if err != nil {
			log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
			return nil, fmt.Errorf("failed to call embedding api: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("embedding api returned %d vectors for %d inputs", len(resp.Data), end-start)
		}
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= end-start || len(d.Embedding) == 0 {
				return nil, fmt.Errorf("received invalid embedding at index %d", d.Index)
			}
			out[start+d.Index] = d.Embedding
		}
	}
	return out, nil
}
