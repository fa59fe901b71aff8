// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"llm-eval-go/internal/config"

	"github.com/sashabaranov/go-openai"
)

// Client defines the interface for an LLM client.
type Client interface {
	// Complete 以 role-based 消息调用聊天接口，返回第一条候选回复。
	Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// 常用角色
const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	// JSONMode 要求模型返回 JSON 对象
	JSONMode bool
}

// Options 描述一个 OpenAI 兼容接入点。
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	// Azure 部署专用
	Azure      bool
	APIVersion string
	Deployment string

	Temperature    *float64
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

type openAIClient struct {
	client   *openai.Client
	model    string
	defaults GenerationParams
}

// ErrEmptyResponse 表示模型没有返回任何候选。
var ErrEmptyResponse = errors.New("llm returned no choices")

// NewClient 使用全局 llm 配置创建默认客户端。
func NewClient(cfg config.LLMConfig) Client {
	opts := Options{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}
	c := New(opts).(*openAIClient)
	if cfg.Generation.Temperature != 0 {
		t := cfg.Generation.Temperature
		c.defaults.Temperature = &t
	}
	if cfg.Generation.TopP != 0 {
		p := cfg.Generation.TopP
		c.defaults.TopP = &p
	}
	if cfg.Generation.MaxTokens != 0 {
		m := cfg.Generation.MaxTokens
		c.defaults.MaxTokens = &m
	}
	return c
}

// New 按 Options 创建客户端，Azure 为 true 时走 Azure OpenAI 的路由与鉴权。
func New(opts Options) Client {
	var clientConfig openai.ClientConfig
	model := opts.Model
	if opts.Azure {
		clientConfig = openai.DefaultAzureConfig(opts.APIKey, opts.BaseURL)
		if opts.APIVersion != "" {
			clientConfig.APIVersion = opts.APIVersion
		}
		deployment := opts.Deployment
		clientConfig.AzureModelMapperFunc = func(string) string { return deployment }
		if model == "" {
			model = deployment
		}
	} else {
		clientConfig = openai.DefaultConfig(opts.APIKey)
		if opts.BaseURL != "" {
			clientConfig.BaseURL = opts.BaseURL
		}
	}
	switch {
	case opts.HTTPClient != nil:
		clientConfig.HTTPClient = opts.HTTPClient
	case opts.RequestTimeout > 0:
		clientConfig.HTTPClient = &http.Client{Timeout: opts.RequestTimeout}
	}

	return &openAIClient{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    model,
		defaults: GenerationParams{Temperature: opts.Temperature},
	}
}

func (c *openAIClient) Complete(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	// 传参优先，其次使用客户端默认值
	params := c.defaults
	if gen != nil {
		if gen.Temperature != nil {
			params.Temperature = gen.Temperature
		}
		if gen.TopP != nil {
			params.TopP = gen.TopP
		}
		if gen.MaxTokens != nil {
			params.MaxTokens = gen.MaxTokens
		}
		params.JSONMode = gen.JSONMode
	}
	if params.Temperature != nil {
		req.Temperature = float32(*params.Temperature)
	}
	if params.TopP != nil {
		req.TopP = float32(*params.TopP)
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if params.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
