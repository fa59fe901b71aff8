package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"llm-eval-go/internal/model"
	"llm-eval-go/internal/repository"
	"llm-eval-go/pkg/llm"
	"llm-eval-go/pkg/log"
	"llm-eval-go/pkg/secret"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const apiKeyField = "apiKey"

// EndpointRequest 是创建 LLM endpoint 的请求体。
type EndpointRequest struct {
	Name          string         `json:"name" binding:"required"`
	Description   string         `json:"description"`
	Type          string         `json:"type" binding:"required"`
	Configuration map[string]any `json:"configuration" binding:"required"`
}

// EndpointPatch 是部分更新请求，Version 用于乐观锁。
// Configuration 中缺少 apiKey 时沿用已保存的密钥。
type EndpointPatch struct {
	Version       int            `json:"version"`
	Name          *string        `json:"name"`
	Description   *string        `json:"description"`
	Configuration map[string]any `json:"configuration"`
}

// ChatModel 是由 endpoint 构造的聊天客户端。
type ChatModel struct {
	Client llm.Client
	// ParallelQueries 为 0 表示未限制
	ParallelQueries int
}

// LLMEndpointService 定义了 LLM endpoint 的业务操作。返回的 endpoint 不含 apiKey。
type LLMEndpointService interface {
	List(ctx context.Context, offset, limit int) ([]model.LLMEndpoint, error)
	Get(ctx context.Context, id string) (*model.LLMEndpoint, error)
	Create(ctx context.Context, req EndpointRequest) (*model.LLMEndpoint, error)
	Update(ctx context.Context, id string, patch EndpointPatch) (*model.LLMEndpoint, error)
	Delete(ctx context.Context, id string) error
	ChatModel(ctx context.Context, id string) (*ChatModel, error)
}

type llmEndpointService struct {
	repo repository.LLMEndpointRepository
	box  *secret.Box
}

// NewLLMEndpointService 创建 endpoint 服务。box 为 nil 时无法保存或读取 apiKey。
func NewLLMEndpointService(repo repository.LLMEndpointRepository, box *secret.Box) LLMEndpointService {
	return &llmEndpointService{repo: repo, box: box}
}

func (s *llmEndpointService) List(ctx context.Context, offset, limit int) ([]model.LLMEndpoint, error) {
	items, _, err := s.repo.List(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = redactEndpoint(items[i])
	}
	return items, nil
}

func (s *llmEndpointService) Get(ctx context.Context, id string) (*model.LLMEndpoint, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := redactEndpoint(*e)
	return &out, nil
}

func (s *llmEndpointService) Create(ctx context.Context, req EndpointRequest) (*model.LLMEndpoint, error) {
	if req.Name == "" {
		return nil, invalidf("name is required")
	}
	if err := ValidateEndpointConfig(req.Type, req.Configuration); err != nil {
		return nil, err
	}
	cfg, err := s.sealConfig(req.Configuration)
	if err != nil {
		return nil, err
	}
	e := &model.LLMEndpoint{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Description:   req.Description,
		Type:          req.Type,
		Configuration: cfg,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	log.Infof("[LLMEndpoint] 已创建 endpoint '%s' (%s), id=%s", e.Name, e.Type, e.ID)
	out := redactEndpoint(*e)
	return &out, nil
}

func (s *llmEndpointService) Update(ctx context.Context, id string, patch EndpointPatch) (*model.LLMEndpoint, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if patch.Name != nil {
		if *patch.Name == "" {
			return nil, invalidf("name must not be empty")
		}
		updates["name"] = *patch.Name
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Configuration != nil {
		merged := make(map[string]any, len(patch.Configuration)+1)
		for k, v := range patch.Configuration {
			merged[k] = v
		}
		if _, ok := merged[apiKeyField]; !ok {
			if key, ok := current.Configuration[apiKeyField]; ok {
				merged[apiKeyField] = key
			}
		}
		if err := ValidateEndpointConfig(current.Type, merged); err != nil {
			return nil, err
		}
		cfg, err := s.sealConfig(merged)
		if err != nil {
			return nil, err
		}
		updates["configuration"] = cfg
	}
	if err := s.repo.Update(ctx, id, patch.Version, updates); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *llmEndpointService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// ChatModel 解密 apiKey 并按 endpoint 类型构造聊天客户端。
func (s *llmEndpointService) ChatModel(ctx context.Context, id string) (*ChatModel, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg := map[string]any(e.Configuration)
	apiKey, err := s.openKey(stringField(cfg, apiKeyField))
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", id, err)
	}

	opts := llm.Options{APIKey: apiKey}
	if v, ok, _ := numberField(cfg, "requestTimeout"); ok {
		opts.RequestTimeout = time.Duration(v * float64(time.Second))
	}
	if v, ok, _ := numberField(cfg, "temperature"); ok {
		opts.Temperature = &v
	}
	switch e.Type {
	case model.EndpointTypeOpenAI:
		opts.Model = stringField(cfg, "model")
		opts.BaseURL = stringField(cfg, "baseUrl")
	case model.EndpointTypeAzureOpenAI:
		opts.Azure = true
		opts.BaseURL = stringField(cfg, "endpoint")
		opts.APIVersion = stringField(cfg, "apiVersion")
		opts.Deployment = stringField(cfg, "deployment")
	case model.EndpointTypeC4:
		// C4 网关兼容 OpenAI 接口，以配置 ID 作为模型名
		cfgID, _, _ := numberField(cfg, "configurationId")
		opts.BaseURL = stringField(cfg, "endpoint")
		opts.Model = strconv.Itoa(int(cfgID))
	default:
		return nil, invalidf("unsupported endpoint type %q", e.Type)
	}

	parallel := 0
	if v, ok, _ := numberField(cfg, "parallelQueries"); ok {
		parallel = int(v)
	}
	return &ChatModel{Client: llm.New(opts), ParallelQueries: parallel}, nil
}

func (s *llmEndpointService) sealConfig(cfg map[string]any) (datatypes.JSONMap, error) {
	out := make(datatypes.JSONMap, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	key := stringField(cfg, apiKeyField)
	if key == "" || secret.IsSealed(key) {
		return out, nil
	}
	if s.box == nil {
		return nil, errors.New("encryption key is not configured")
	}
	sealed, err := s.box.Seal(key)
	if err != nil {
		return nil, err
	}
	out[apiKeyField] = sealed
	return out, nil
}

func (s *llmEndpointService) openKey(value string) (string, error) {
	if !secret.IsSealed(value) {
		return value, nil
	}
	if s.box == nil {
		return "", errors.New("encryption key is not configured")
	}
	return s.box.Open(value)
}

func redactEndpoint(e model.LLMEndpoint) model.LLMEndpoint {
	cfg := make(datatypes.JSONMap, len(e.Configuration))
	for k, v := range e.Configuration {
		if k != apiKeyField {
			cfg[k] = v
		}
	}
	e.Configuration = cfg
	return e
}

// ValidateEndpointConfig 按 endpoint 类型检查必填字段和取值范围。
func ValidateEndpointConfig(endpointType string, cfg map[string]any) error {
	var required []string
	switch endpointType {
	case model.EndpointTypeOpenAI:
		required = []string{apiKeyField, "model"}
	case model.EndpointTypeAzureOpenAI:
		required = []string{"endpoint", apiKeyField, "apiVersion", "deployment"}
	case model.EndpointTypeC4:
		required = []string{"endpoint", apiKeyField}
	default:
		return invalidf("unsupported endpoint type %q", endpointType)
	}
	for _, key := range required {
		if stringField(cfg, key) == "" {
			return invalidf("configuration.%s is required for %s", key, endpointType)
		}
	}

	if endpointType == model.EndpointTypeC4 {
		v, ok, err := numberField(cfg, "configurationId")
		if err != nil {
			return err
		}
		if !ok || v < 1 || v != math.Trunc(v) {
			return invalidf("configuration.configurationId must be an integer >= 1")
		}
	}
	if endpointType == model.EndpointTypeOpenAI {
		if v, ok, err := numberField(cfg, "temperature"); err != nil {
			return err
		} else if ok && (v < 0 || v > 2) {
			return invalidf("configuration.temperature must be between 0 and 2")
		}
	}

	limits := []struct {
		key string
		min float64
	}{
		{"maxRetries", 0},
		{"parallelQueries", 1},
		{"requestTimeout", 1},
	}
	for _, l := range limits {
		v, ok, err := numberField(cfg, l.key)
		if err != nil {
			return err
		}
		if ok && v < l.min {
			return invalidf("configuration.%s must be >= %v", l.key, l.min)
		}
	}
	return nil
}

func stringField(cfg map[string]any, key string) string {
	s, _ := cfg[key].(string)
	return s
}

// numberField 读取数值字段。JSON 解码后的数字为 float64。
func numberField(cfg map[string]any, key string) (float64, bool, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	default:
		return 0, false, invalidf("configuration.%s must be a number", key)
	}
}
