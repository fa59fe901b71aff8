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

// EvaluationRequest 是创建评估的请求体。
type EvaluationRequest struct {
	Name          string   `json:"name" binding:"required"`
	QACatalogID   string   `json:"qaCatalogId" binding:"required"`
	LLMEndpointID string   `json:"llmEndpointId" binding:"required"`
	MetricIDs     []string `json:"metricIds" binding:"required"`
}

// EvaluationPatch 只允许修改名称。
type EvaluationPatch struct {
	Version int    `json:"version"`
	Name    string `json:"name" binding:"required"`
}

// EvaluationService 定义了评估记录的业务操作。评估的执行不在本服务内。
type EvaluationService interface {
	List(ctx context.Context, offset, limit int) ([]model.Evaluation, error)
	Get(ctx context.Context, id string) (*model.Evaluation, error)
	Create(ctx context.Context, req EvaluationRequest) (*model.Evaluation, error)
	Update(ctx context.Context, id string, patch EvaluationPatch) (*model.Evaluation, error)
	Delete(ctx context.Context, id string) error
}

type evaluationService struct {
	repo         repository.EvaluationRepository
	catalogRepo  repository.QACatalogRepository
	endpointRepo repository.LLMEndpointRepository
	metricRepo   repository.MetricRepository
}

// NewEvaluationService 创建评估服务。
func NewEvaluationService(repo repository.EvaluationRepository, catalogRepo repository.QACatalogRepository, endpointRepo repository.LLMEndpointRepository, metricRepo repository.MetricRepository) EvaluationService {
	return &evaluationService{repo: repo, catalogRepo: catalogRepo, endpointRepo: endpointRepo, metricRepo: metricRepo}
}

func (s *evaluationService) List(ctx context.Context, offset, limit int) ([]model.Evaluation, error) {
	items, _, err := s.repo.List(ctx, offset, limit)
	return items, err
}

func (s *evaluationService) Get(ctx context.Context, id string) (*model.Evaluation, error) {
	return s.repo.FindByID(ctx, id)
}

// Create 校验引用的目录、endpoint 与指标后创建 PENDING 状态的评估。
func (s *evaluationService) Create(ctx context.Context, req EvaluationRequest) (*model.Evaluation, error) {
	if req.Name == "" {
		return nil, invalidf("name is required")
	}
	catalog, err := s.catalogRepo.FindByID(ctx, req.QACatalogID)
	if err != nil {
		return nil, referenceError(err, "qa catalog", req.QACatalogID)
	}
	if catalog.Status != model.CatalogStatusReady {
		return nil, invalidf("qa catalog %s is %s, not %s", catalog.ID, catalog.Status, model.CatalogStatusReady)
	}
	if _, err := s.endpointRepo.FindByID(ctx, req.LLMEndpointID); err != nil {
		return nil, referenceError(err, "llm endpoint", req.LLMEndpointID)
	}

	ids := dedupe(req.MetricIDs)
	if len(ids) == 0 {
		return nil, invalidf("at least one metric is required")
	}
	metrics, err := s.metricRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(metrics) != len(ids) {
		found := make(map[string]bool, len(metrics))
		for _, m := range metrics {
			found[m.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, invalidf("metric %q not found", id)
			}
		}
	}

	e := &model.Evaluation{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Status:        model.EvaluationStatusPending,
		QACatalogID:   req.QACatalogID,
		LLMEndpointID: req.LLMEndpointID,
		MetricIDs:     datatypes.NewJSONSlice(ids),
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, err
	}
	log.Infof("[Evaluation] 已创建评估 '%s', id=%s, 指标 %d 个", e.Name, e.ID, len(ids))
	return e, nil
}

func (s *evaluationService) Update(ctx context.Context, id string, patch EvaluationPatch) (*model.Evaluation, error) {
	if patch.Name == "" {
		return nil, invalidf("name must not be empty")
	}
	if err := s.repo.Update(ctx, id, patch.Version, map[string]any{"name": patch.Name}); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

// Delete 删除评估，运行中的评估不可删除。
func (s *evaluationService) Delete(ctx context.Context, id string) error {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if e.Status == model.EvaluationStatusRunning {
		return invalidf("evaluation %s is running", id)
	}
	return s.repo.Delete(ctx, id)
}

func referenceError(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return invalidf("%s %q not found", kind, id)
	}
	return err
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
