// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"gorm.io/datatypes"
)

// 问答目录状态
const (
	CatalogStatusReady      = "READY"
	CatalogStatusGenerating = "GENERATING"
	CatalogStatusFailure    = "FAILURE"
)

// 问答目录来源
const (
	CatalogOriginUpload    = "UPLOAD"
	CatalogOriginGenerated = "GENERATED"
)

// QACatalog 定义了 qa_catalogs 表的 ORM 模型。
// 同一 QACatalogGroupID 下的记录构成一条修订历史，Revision 最大者为最新版本。
type QACatalog struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name             string    `gorm:"type:varchar(255);not null;index" json:"name"`
	QACatalogGroupID string    `gorm:"type:varchar(36);not null;index" json:"qaCatalogGroupId"`
	Revision         int       `gorm:"not null;default:0" json:"revision"`
	Status           string    `gorm:"type:varchar(20);not null" json:"status"`
	Origin           string    `gorm:"type:varchar(20);not null" json:"origin"`
	Error            string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (QACatalog) TableName() string {
	return "qa_catalogs"
}

// QAPair 问答对，属于唯一一个目录修订版本。
type QAPair struct {
	ID             string                      `gorm:"type:varchar(36);primaryKey" json:"id"`
	QACatalogID    string                      `gorm:"type:varchar(36);not null;index" json:"qaCatalogId"`
	Question       string                      `gorm:"type:text;not null" json:"question"`
	ExpectedOutput string                      `gorm:"type:text;not null" json:"expectedOutput"`
	Contexts       datatypes.JSONSlice[string] `gorm:"type:json" json:"contexts"`
	MetaData       datatypes.JSONMap           `gorm:"type:json" json:"metaData"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (QAPair) TableName() string {
	return "qa_pairs"
}

// DataSourceConfig 记录一次生成器数据源上传：文件存放于 MinIO 的 ObjectPrefix 下。
type DataSourceConfig struct {
	ID            string                      `gorm:"type:varchar(36);primaryKey" json:"id"`
	GeneratorType string                      `gorm:"type:varchar(32);not null" json:"generatorType"`
	ObjectPrefix  string                      `gorm:"type:varchar(255);not null" json:"objectPrefix"`
	Glob          string                      `gorm:"type:varchar(255);not null" json:"glob"`
	FileNames     datatypes.JSONSlice[string] `gorm:"type:json" json:"fileNames"`
	CreatedAt     time.Time                   `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DataSourceConfig) TableName() string {
	return "qa_catalog_data_source_configs"
}
