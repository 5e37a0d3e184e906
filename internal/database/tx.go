package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// TxAttempts Transact 的最大尝试次数
const TxAttempts = 3

// Transact 在事务中执行 fn。死锁、序列化失败、锁等待超时与断开的连接会以
// 指数退避重试，其余错误原样返回。fn 必须可以安全地重复执行。
func Transact(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := range TxAttempts {
		if attempt > 0 {
			wait := time.Duration(25<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(wait):
			}
		}
		err = db.WithContext(ctx).Transaction(fn)
		if err == nil || !Retryable(err) {
			return err
		}
	}
	return fmt.Errorf("transaction gave up after %d attempts: %w", TxAttempts, err)
}

// Retryable 判断事务错误是否值得重试
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected, lock_not_available
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		// ER_LOCK_WAIT_TIMEOUT, ER_LOCK_DEADLOCK
		return myErr.Number == 1205 || myErr.Number == 1213
	}
	// sqlite 驱动只暴露错误文本
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "sqlite_busy") || strings.Contains(msg, "database is locked")
}
