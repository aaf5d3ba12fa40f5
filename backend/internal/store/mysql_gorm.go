package store

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// InitMySQL 打开 gorm 连接；调用方负责 AutoMigrate 和注入各 store
func InitMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return db, nil
}
