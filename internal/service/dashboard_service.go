package service

import (
	"context"

	"llm-eval-go/internal/repository"

	"golang.org/x/sync/errgroup"
)

// Dashboard 是首页统计。
type Dashboard struct {
	Catalogs           int64            `json:"catalogs"`
	Evaluations        int64            `json:"evaluations"`
	EvaluationsByState map[string]int64 `json:"evaluationsByStatus"`
	LLMEndpoints       int64            `json:"llmEndpoints"`
	Metrics            int64            `json:"metrics"`
}

// DashboardService 汇总各类资源的数量。
type DashboardService interface {
	Summary(ctx context.Context) (*Dashboard, error)
}

type dashboardService struct {
	catalogRepo    repository.QACatalogRepository
	evaluationRepo repository.EvaluationRepository
	endpointRepo   repository.LLMEndpointRepository
	metricRepo     repository.MetricRepository
}

// NewDashboardService 创建统计服务。
func NewDashboardService(catalogRepo repository.QACatalogRepository, evaluationRepo repository.EvaluationRepository, endpointRepo repository.LLMEndpointRepository, metricRepo repository.MetricRepository) DashboardService {
	return &dashboardService{catalogRepo: catalogRepo, evaluationRepo: evaluationRepo, endpointRepo: endpointRepo, metricRepo: metricRepo}
}

// Summary 并发查询各项数量。
func (s *dashboardService) Summary(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { d.Catalogs, err = s.catalogRepo.Count(gctx); return })
	g.Go(func() (err error) { d.Evaluations, err = s.evaluationRepo.Count(gctx); return })
	g.Go(func() (err error) { d.EvaluationsByState, err = s.evaluationRepo.CountByStatus(gctx); return })
	g.Go(func() (err error) { d.LLMEndpoints, err = s.endpointRepo.Count(gctx); return })
	g.Go(func() (err error) { d.Metrics, err = s.metricRepo.Count(gctx); return })
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}
