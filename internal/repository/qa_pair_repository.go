package repository

import (
	"context"

	"llm-eval-go/internal/model"

	"gorm.io/gorm"
)

// QAPairRepository 定义了问答对的持久化操作。
type QAPairRepository interface {
	Create(ctx context.Context, pair *model.QAPair) error
	ListByCatalog(ctx context.Context, catalogID string, offset, limit int) ([]model.QAPair, int64, error)
	FindByIDs(ctx context.Context, catalogID string, ids []string) ([]model.QAPair, error)
	AllByCatalog(ctx context.Context, catalogID string) ([]model.QAPair, error)
	DeleteByCatalog(ctx context.Context, catalogID string) error
	CountByCatalog(ctx context.Context, catalogID string) (int64, error)
}

type qaPairRepository struct {
	db *gorm.DB
}

// NewQAPairRepository 创建一个新的 QAPairRepository 实例。
func NewQAPairRepository(db *gorm.DB) QAPairRepository {
	return &qaPairRepository{db: db}
}

// Create 写入一条问答对。
func (r *qaPairRepository) Create(ctx context.Context, pair *model.QAPair) error {
	return r.db.WithContext(ctx).Create(pair).Error
}

// ListByCatalog 分页返回目录下的问答对。
func (r *qaPairRepository) ListByCatalog(ctx context.Context, catalogID string, offset, limit int) ([]model.QAPair, int64, error) {
	var (
		pairs []model.QAPair
		total int64
	)
	db := r.db.WithContext(ctx).Model(&model.QAPair{}).Where("qa_catalog_id = ?", catalogID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("id").Offset(offset).Limit(limit).Find(&pairs).Error; err != nil {
		return nil, 0, err
	}
	return pairs, total, nil
}

// FindByIDs 按 ID 读取目录下的问答对。
func (r *qaPairRepository) FindByIDs(ctx context.Context, catalogID string, ids []string) ([]model.QAPair, error) {
	var pairs []model.QAPair
	if len(ids) == 0 {
		return pairs, nil
	}
	err := r.db.WithContext(ctx).Where("qa_catalog_id = ? AND id IN ?", catalogID, ids).Find(&pairs).Error
	return pairs, err
}

// AllByCatalog 返回目录下的所有问答对。
func (r *qaPairRepository) AllByCatalog(ctx context.Context, catalogID string) ([]model.QAPair, error) {
	var pairs []model.QAPair
	err := r.db.WithContext(ctx).Where("qa_catalog_id = ?", catalogID).Order("id").Find(&pairs).Error
	return pairs, err
}

// DeleteByCatalog 删除目录下的所有问答对。
func (r *qaPairRepository) DeleteByCatalog(ctx context.Context, catalogID string) error {
	return r.db.WithContext(ctx).Where("qa_catalog_id = ?", catalogID).Delete(&model.QAPair{}).Error
}

// CountByCatalog 返回目录下的问答对数量。
func (r *qaPairRepository) CountByCatalog(ctx context.Context, catalogID string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.QAPair{}).Where("qa_catalog_id = ?", catalogID).Count(&total).Error
	return total, err
}
