// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"

	"llm-eval-go/internal/model"

	"gorm.io/gorm"
)

// ErrVersionConflict 表示乐观锁版本号不匹配。
var ErrVersionConflict = errors.New("version conflict")

// QACatalogRepository 接口定义了问答目录的持久化操作。
type QACatalogRepository interface {
	Create(ctx context.Context, catalog *model.QACatalog) error
	CreateWithPairs(ctx context.Context, catalog *model.QACatalog, pairs []*model.QAPair) error
	FindByID(ctx context.Context, id string) (*model.QACatalog, error)
	ListLatest(ctx context.Context, name string, offset, limit int) ([]model.QACatalog, int64, error)
	History(ctx context.Context, groupID string) ([]model.QACatalog, error)
	LatestInGroup(ctx context.Context, groupID string) (*model.QACatalog, error)
	UpdateName(ctx context.Context, id, name string) error
	UpdateStatus(ctx context.Context, id, status, errMsg string) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// qaCatalogRepository 是 QACatalogRepository 接口的 GORM 实现。
type qaCatalogRepository struct {
	db *gorm.DB
}

// NewQACatalogRepository 创建一个新的 QACatalogRepository 实例。
func NewQACatalogRepository(db *gorm.DB) QACatalogRepository {
	return &qaCatalogRepository{db: db}
}

// Create 创建目录记录。
func (r *qaCatalogRepository) Create(ctx context.Context, catalog *model.QACatalog) error {
	return r.db.WithContext(ctx).Create(catalog).Error
}

// CreateWithPairs 在同一事务中创建目录及其问答对。
func (r *qaCatalogRepository) CreateWithPairs(ctx context.Context, catalog *model.QACatalog, pairs []*model.QAPair) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(catalog).Error; err != nil {
			return err
		}
		if len(pairs) == 0 {
			return nil
		}
		return tx.CreateInBatches(pairs, 100).Error
	})
}

// FindByID 根据 ID 查找目录。
func (r *qaCatalogRepository) FindByID(ctx context.Context, id string) (*model.QACatalog, error) {
	var catalog model.QACatalog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&catalog).Error; err != nil {
		return nil, err
	}
	return &catalog, nil
}

// ListLatest 分页返回每个目录组的最新修订，可按名称模糊过滤。
func (r *qaCatalogRepository) ListLatest(ctx context.Context, name string, offset, limit int) ([]model.QACatalog, int64, error) {
	var (
		catalogs []model.QACatalog
		total    int64
	)
	latest := r.db.Model(&model.QACatalog{}).
		Select("qa_catalog_group_id, MAX(revision)").
		Group("qa_catalog_group_id")

	db := r.db.WithContext(ctx).Model(&model.QACatalog{}).
		Where("(qa_catalog_group_id, revision) IN (?)", latest)
	if name != "" {
		db = db.Where("name LIKE ?", "%"+name+"%")
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&catalogs).Error; err != nil {
		return nil, 0, err
	}
	return catalogs, total, nil
}

// History 返回同组的所有修订，最新的在前。
func (r *qaCatalogRepository) History(ctx context.Context, groupID string) ([]model.QACatalog, error) {
	var catalogs []model.QACatalog
	err := r.db.WithContext(ctx).
		Where("qa_catalog_group_id = ?", groupID).
		Order("revision DESC").
		Find(&catalogs).Error
	return catalogs, err
}

// LatestInGroup 返回同组中修订号最大的目录；组为空时返回 gorm.ErrRecordNotFound。
func (r *qaCatalogRepository) LatestInGroup(ctx context.Context, groupID string) (*model.QACatalog, error) {
	var catalog model.QACatalog
	err := r.db.WithContext(ctx).
		Where("qa_catalog_group_id = ?", groupID).
		Order("revision DESC").
		First(&catalog).Error
	if err != nil {
		return nil, err
	}
	return &catalog, nil
}

// UpdateName 修改目录名称。
func (r *qaCatalogRepository) UpdateName(ctx context.Context, id, name string) error {
	res := r.db.WithContext(ctx).Model(&model.QACatalog{}).Where("id = ?", id).Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateStatus 修改目录状态和错误信息。
func (r *qaCatalogRepository) UpdateStatus(ctx context.Context, id, status, errMsg string) error {
	return r.db.WithContext(ctx).Model(&model.QACatalog{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "error": errMsg}).Error
}

// Delete 删除目录及其问答对。
func (r *qaCatalogRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("qa_catalog_id = ?", id).Delete(&model.QAPair{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&model.QACatalog{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Count 返回目录总数。
func (r *qaCatalogRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.QACatalog{}).Count(&total).Error
	return total, err
}

// updateVersioned 以乐观锁更新记录：version 匹配时写入 updates 并把 version 加一。
// 记录不存在返回 gorm.ErrRecordNotFound，版本不匹配返回 ErrVersionConflict。
func updateVersioned(ctx context.Context, db *gorm.DB, m any, id string, version int, updates map[string]any) error {
	updates["version"] = gorm.Expr("version + 1")
	res := db.WithContext(ctx).Model(m).Where("id = ? AND version = ?", id, version).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := db.WithContext(ctx).Model(m).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return ErrVersionConflict
}
