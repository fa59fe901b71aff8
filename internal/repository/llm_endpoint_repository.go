package repository

import (
	"context"

	"llm-eval-go/internal/model"

	"gorm.io/gorm"
)

// LLMEndpointRepository 定义了 LLM endpoint 的持久化操作。
type LLMEndpointRepository interface {
	Create(ctx context.Context, e *model.LLMEndpoint) error
	FindByID(ctx context.Context, id string) (*model.LLMEndpoint, error)
	List(ctx context.Context, offset, limit int) ([]model.LLMEndpoint, int64, error)
	Update(ctx context.Context, id string, version int, updates map[string]any) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

type llmEndpointRepository struct {
	db *gorm.DB
}

// NewLLMEndpointRepository 创建一个新的 LLMEndpointRepository 实例。
func NewLLMEndpointRepository(db *gorm.DB) LLMEndpointRepository {
	return &llmEndpointRepository{db: db}
}

func (r *llmEndpointRepository) Create(ctx context.Context, e *model.LLMEndpoint) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *llmEndpointRepository) FindByID(ctx context.Context, id string) (*model.LLMEndpoint, error) {
	var e model.LLMEndpoint
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *llmEndpointRepository) List(ctx context.Context, offset, limit int) ([]model.LLMEndpoint, int64, error) {
	var (
		items []model.LLMEndpoint
		total int64
	)
	db := r.db.WithContext(ctx).Model(&model.LLMEndpoint{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update 按乐观锁更新字段。
func (r *llmEndpointRepository) Update(ctx context.Context, id string, version int, updates map[string]any) error {
	return updateVersioned(ctx, r.db, &model.LLMEndpoint{}, id, version, updates)
}

func (r *llmEndpointRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.LLMEndpoint{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *llmEndpointRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.LLMEndpoint{}).Count(&total).Error
	return total, err
}
