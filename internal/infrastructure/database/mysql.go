package database

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"accountledger/internal/config"
	"accountledger/internal/model"
	"accountledger/pkg/logger"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// BuildDSN 生成连接串
// innodb_lock_wait_timeout 作为会话变量下发，行锁等待超过它返回 1205
func BuildDSN(cfg *config.MySQLConfig) string {
	dsn := mysqldriver.NewConfig()
	dsn.User = cfg.User
	dsn.Passwd = cfg.Password
	dsn.Net = "tcp"
	dsn.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dsn.DBName = cfg.Database
	dsn.ParseTime = true
	dsn.Loc = time.Local
	dsn.Params = map[string]string{
		"charset": "utf8mb4",
	}
	if cfg.LockWaitTimeoutSeconds > 0 {
		dsn.Params["innodb_lock_wait_timeout"] = strconv.Itoa(cfg.LockWaitTimeoutSeconds)
	}
	return dsn.FormatDSN()
}

// InitMySQL 初始化 MySQL 连接并迁移表结构
func InitMySQL(cfg *config.MySQLConfig) *gorm.DB {
	ctx := context.Background()

	db, err := gorm.Open(mysql.Open(BuildDSN(cfg)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Fatal(ctx, "连接 MySQL 失败", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal(ctx, "获取底层 DB 失败", zap.Error(err))
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		logger.Fatal(ctx, "自动迁移表结构失败", zap.Error(err))
	}

	logger.Info(ctx, "MySQL 连接成功", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return db
}

// Migrate 迁移账户、账户历史和本地消息表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Account{},
		&model.AccountHistory{},
		&model.OutboxMessage{},
	)
}
