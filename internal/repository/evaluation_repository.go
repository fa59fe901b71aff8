package repository

import (
	"context"

	"llm-eval-go/internal/model"

	"gorm.io/gorm"
)

// MetricRepository 定义了评估指标配置的持久化操作。
type MetricRepository interface {
	Create(ctx context.Context, m *model.MetricConfig) error
	FindByID(ctx context.Context, id string) (*model.MetricConfig, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.MetricConfig, error)
	List(ctx context.Context, offset, limit int) ([]model.MetricConfig, int64, error)
	Update(ctx context.Context, id string, version int, updates map[string]any) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

type metricRepository struct {
	db *gorm.DB
}

// NewMetricRepository 创建一个新的 MetricRepository 实例。
func NewMetricRepository(db *gorm.DB) MetricRepository {
	return &metricRepository{db: db}
}

func (r *metricRepository) Create(ctx context.Context, m *model.MetricConfig) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *metricRepository) FindByID(ctx context.Context, id string) (*model.MetricConfig, error) {
	var m model.MetricConfig
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *metricRepository) FindByIDs(ctx context.Context, ids []string) ([]model.MetricConfig, error) {
	var items []model.MetricConfig
	if len(ids) == 0 {
		return items, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error
	return items, err
}

func (r *metricRepository) List(ctx context.Context, offset, limit int) ([]model.MetricConfig, int64, error) {
	var (
		items []model.MetricConfig
		total int64
	)
	db := r.db.WithContext(ctx).Model(&model.MetricConfig{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *metricRepository) Update(ctx context.Context, id string, version int, updates map[string]any) error {
	return updateVersioned(ctx, r.db, &model.MetricConfig{}, id, version, updates)
}

func (r *metricRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.MetricConfig{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *metricRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.MetricConfig{}).Count(&total).Error
	return total, err
}

// EvaluationRepository 定义了评估记录的持久化操作。
type EvaluationRepository interface {
	Create(ctx context.Context, e *model.Evaluation) error
	FindByID(ctx context.Context, id string) (*model.Evaluation, error)
	List(ctx context.Context, offset, limit int) ([]model.Evaluation, int64, error)
	Update(ctx context.Context, id string, version int, updates map[string]any) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository 创建一个新的 EvaluationRepository 实例。
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

func (r *evaluationRepository) Create(ctx context.Context, e *model.Evaluation) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *evaluationRepository) FindByID(ctx context.Context, id string) (*model.Evaluation, error) {
	var e model.Evaluation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *evaluationRepository) List(ctx context.Context, offset, limit int) ([]model.Evaluation, int64, error) {
	var (
		items []model.Evaluation
		total int64
	)
	db := r.db.WithContext(ctx).Model(&model.Evaluation{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *evaluationRepository) Update(ctx context.Context, id string, version int, updates map[string]any) error {
	return updateVersioned(ctx, r.db, &model.Evaluation{}, id, version, updates)
}

func (r *evaluationRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Evaluation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *evaluationRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Evaluation{}).Count(&total).Error
	return total, err
}

// CountByStatus 按状态统计评估数量。
func (r *evaluationRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.WithContext(ctx).Model(&model.Evaluation{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}
