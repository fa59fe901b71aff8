package database

import (
	"time"

	"llm-eval-go/internal/model"
	"llm-eval-go/pkg/log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitMySQL 初始化 MySQL 数据库连接
func InitMySQL(dsn string) {
	var err error
	DB, err = gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatal("failed to connect database", err)
	}

	// 配置连接池
	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("MySQL database connected successfully")
}

// AutoMigrate 创建或更新所有业务表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.QACatalog{},
		&model.QAPair{},
		&model.DataSourceConfig{},
		&model.LLMEndpoint{},
		&model.MetricConfig{},
		&model.Evaluation{},
	)
}
