package service

import (
	"context"
	"errors"

	"llm-eval-go/internal/model"
	"llm-eval-go/internal/repository"
	"llm-eval-go/pkg/log"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// G-Eval 允许引用的测试用例字段
var gEvalParams = map[string]bool{
	"input":             true,
	"actual_output":     true,
	"expected_output":   true,
	"context":           true,
	"retrieval_context": true,
}

// MetricRequest 是创建评估指标的请求体。
type MetricRequest struct {
	Name          string         `json:"name" binding:"required"`
	Type          string         `json:"type" binding:"required"`
	Configuration map[string]any `json:"configuration" binding:"required"`
}

// MetricPatch 是部分更新请求；指标类型不可修改。
type MetricPatch struct {
	Version       int            `json:"version"`
	Name          *string        `json:"name"`
	Configuration map[string]any `json:"configuration"`
}

// MetricService 定义了评估指标的业务操作。
type MetricService interface {
	List(ctx context.Context, offset, limit int) ([]model.MetricConfig, error)
	Get(ctx context.Context, id string) (*model.MetricConfig, error)
	Create(ctx context.Context, req MetricRequest) (*model.MetricConfig, error)
	Update(ctx context.Context, id string, patch MetricPatch) (*model.MetricConfig, error)
	Delete(ctx context.Context, id string) error
}

type metricService struct {
	repo         repository.MetricRepository
	endpointRepo repository.LLMEndpointRepository
}

// NewMetricService 创建指标服务。
func NewMetricService(repo repository.MetricRepository, endpointRepo repository.LLMEndpointRepository) MetricService {
	return &metricService{repo: repo, endpointRepo: endpointRepo}
}

func (s *metricService) List(ctx context.Context, offset, limit int) ([]model.MetricConfig, error) {
	items, _, err := s.repo.List(ctx, offset, limit)
	return items, err
}

func (s *metricService) Get(ctx context.Context, id string) (*model.MetricConfig, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *metricService) Create(ctx context.Context, req MetricRequest) (*model.MetricConfig, error) {
	if req.Name == "" {
		return nil, invalidf("name is required")
	}
	if err := s.validate(ctx, req.Type, req.Configuration); err != nil {
		return nil, err
	}
	m := &model.MetricConfig{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Type:          req.Type,
		Configuration: datatypes.JSONMap(req.Configuration),
	}
	if err := s.repo.Create(ctx, m); err != nil {
		return nil, err
	}
	log.Infof("[Metric] 已创建指标 '%s' (%s), id=%s", m.Name, m.Type, m.ID)
	return m, nil
}

func (s *metricService) Update(ctx context.Context, id string, patch MetricPatch) (*model.MetricConfig, error) {
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
	if patch.Configuration != nil {
		if err := s.validate(ctx, current.Type, patch.Configuration); err != nil {
			return nil, err
		}
		updates["configuration"] = datatypes.JSONMap(patch.Configuration)
	}
	if err := s.repo.Update(ctx, id, patch.Version, updates); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

func (s *metricService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *metricService) validate(ctx context.Context, metricType string, cfg map[string]any) error {
	if err := ValidateMetricConfig(metricType, cfg); err != nil {
		return err
	}
	chatModel := stringField(cfg, "chat_model_id")
	if _, err := s.endpointRepo.FindByID(ctx, chatModel); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalidf("chat model %q not found", chatModel)
		}
		return err
	}
	return nil
}

// ValidateMetricConfig 按指标类型检查配置，不访问数据库。
func ValidateMetricConfig(metricType string, cfg map[string]any) error {
	switch metricType {
	case model.MetricTypeFaithfulness, model.MetricTypeAnswerRelevancy, model.MetricTypeHallucination, model.MetricTypeGEval:
	default:
		return invalidf("unsupported metric type %q", metricType)
	}

	threshold, ok, err := numberField(cfg, "threshold")
	if err != nil {
		return err
	}
	if !ok || threshold < 0 || threshold > 1 {
		return invalidf("configuration.threshold must be between 0 and 1")
	}
	for _, key := range []string{"include_reason", "strict_mode"} {
		if v, ok := cfg[key]; ok {
			if _, isBool := v.(bool); !isBool {
				return invalidf("configuration.%s must be a boolean", key)
			}
		}
	}
	if stringField(cfg, "chat_model_id") == "" {
		return invalidf("configuration.chat_model_id is required")
	}

	if metricType != model.MetricTypeGEval {
		return nil
	}
	steps, err := stringList(cfg, "evaluation_steps")
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return invalidf("configuration.evaluation_steps must not be empty")
	}
	params, err := stringList(cfg, "evaluation_params")
	if err != nil {
		return err
	}
	if len(params) == 0 {
		return invalidf("configuration.evaluation_params must not be empty")
	}
	for _, p := range params {
		if !gEvalParams[p] {
			return invalidf("configuration.evaluation_params contains unknown parameter %q", p)
		}
	}
	return nil
}

func stringList(cfg map[string]any, key string) ([]string, error) {
	raw, ok := cfg[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, invalidf("configuration.%s must be a list of strings", key)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, invalidf("configuration.%s must be a list of non-empty strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
