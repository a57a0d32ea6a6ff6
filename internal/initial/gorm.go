package initial

import (
	"fmt"

	"SemHub/internal/config"
	"SemHub/internal/modules/kb/domain/knowledge"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// OpenGorm 建立 MySQL 连接并迁移表结构
func OpenGorm(conf *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		conf.MysqlConfig.User,
		conf.MysqlConfig.Password,
		conf.MysqlConfig.Host,
		conf.MysqlConfig.Port,
		conf.MysqlConfig.DatabaseName,
	)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	if err := db.AutoMigrate(
		&knowledge.Collection{},
		&knowledge.Document{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return db, nil
}
