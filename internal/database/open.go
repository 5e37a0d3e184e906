package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

// SlowQueryThreshold 超过该耗时的 SQL 以 warn 级别记录
const SlowQueryThreshold = 200 * time.Millisecond

// Open 按配置选择方言并打开 GORM 连接，SQL 日志经 zap 输出。
// sqlite 使用纯 Go 驱动，Name 为文件路径。
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 sqlLogger(logger),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}
	logger.Info("database connected", zap.String("driver", cfg.Driver), zap.String("name", cfg.Name))
	return db, nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	if cfg.Driver == "" {
		return nil, errors.New("database driver not configured")
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

// sqlLogger 只记录慢查询与错误，记录不存在不算错误
func sqlLogger(logger *zap.Logger) gormlogger.Interface {
	named := logger.Named("gorm").WithOptions(zap.AddCallerSkip(3))
	return gormlogger.New(zap.NewStdLog(named), gormlogger.Config{
		SlowThreshold:             SlowQueryThreshold,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
		ParameterizedQueries:      true,
		Colorful:                  false,
	})
}
