package repository

import (
	"context"

	"llm-eval-go/internal/model"

	"gorm.io/gorm"
)

// DataSourceRepository 定义了生成器数据源配置的持久化操作。
type DataSourceRepository interface {
	Create(ctx context.Context, cfg *model.DataSourceConfig) error
	FindByID(ctx context.Context, id string) (*model.DataSourceConfig, error)
}

type dataSourceRepository struct {
	db *gorm.DB
}

// NewDataSourceRepository 创建一个新的 DataSourceRepository 实例。
func NewDataSourceRepository(db *gorm.DB) DataSourceRepository {
	return &dataSourceRepository{db: db}
}

func (r *dataSourceRepository) Create(ctx context.Context, cfg *model.DataSourceConfig) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *dataSourceRepository) FindByID(ctx context.Context, id string) (*model.DataSourceConfig, error) {
	var cfg model.DataSourceConfig
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}
