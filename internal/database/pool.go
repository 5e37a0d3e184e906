package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

// ErrPoolClosed Close 之后 Ping 返回该错误
var ErrPoolClosed = errors.New("database pool is closed")

// StatsRecorder 接收连接数，通常是 metrics.Collector
type StatsRecorder interface {
	RecordDBConnections(database string, open, idle int)
}

// Limits 连接池上限
type Limits struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// LimitsFrom 读取 database 配置段，未设置的项取默认值，空闲数不超过最大连接数
func LimitsFrom(cfg config.DatabaseConfig) Limits {
	l := Limits{MaxOpen: 25, MaxIdle: 5, MaxLifetime: time.Hour, MaxIdleTime: 10 * time.Minute}
	if cfg.MaxOpenConns > 0 {
		l.MaxOpen = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		l.MaxIdle = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetime > 0 {
		l.MaxLifetime = cfg.ConnMaxLifetime
	}
	l.MaxIdle = min(l.MaxIdle, l.MaxOpen)
	return l
}

// Pool 持有 GORM 连接的 *sql.DB，定期上报连接数
type Pool struct {
	db       *gorm.DB
	sqlDB    *sql.DB
	name     string
	recorder StatsRecorder
	logger   *zap.Logger

	stop      context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

// NewPool 应用连接池上限。interval > 0 时启动后台统计上报。recorder 可以为 nil。
func NewPool(db *gorm.DB, limits Limits, interval time.Duration, recorder StatsRecorder, logger *zap.Logger) (*Pool, error) {
	if db == nil {
		return nil, errors.New("database pool: nil *gorm.DB")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(limits.MaxOpen)
	sqlDB.SetMaxIdleConns(limits.MaxIdle)
	sqlDB.SetConnMaxLifetime(limits.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(limits.MaxIdleTime)

	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		db:       db,
		sqlDB:    sqlDB,
		name:     db.Dialector.Name(),
		recorder: recorder,
		logger:   logger.With(zap.String("component", "db_pool")),
		closed:   make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.stop = cancel
	if interval > 0 {
		p.wg.Add(1)
		go p.watch(ctx, interval)
	}

	p.logger.Info("database pool ready",
		zap.String("dialect", p.name),
		zap.Int("max_open", limits.MaxOpen),
		zap.Int("max_idle", limits.MaxIdle),
	)
	return p, nil
}

// DB 返回 GORM 句柄
func (p *Pool) DB() *gorm.DB { return p.db }

func (p *Pool) Ping(ctx context.Context) error {
	select {
	case <-p.closed:
		return ErrPoolClosed
	default:
	}
	return p.sqlDB.PingContext(ctx)
}

// Stats 底层连接池统计
func (p *Pool) Stats() sql.DBStats { return p.sqlDB.Stats() }

// Report 立即上报一次连接数
func (p *Pool) Report() {
	st := p.sqlDB.Stats()
	if p.recorder != nil {
		p.recorder.RecordDBConnections(p.name, st.OpenConnections, st.Idle)
	}
	if st.WaitCount > 0 {
		p.logger.Debug("connection waits observed",
			zap.Int64("wait_count", st.WaitCount),
			zap.Duration("wait_duration", st.WaitDuration),
			zap.Int("in_use", st.InUse),
		)
	}
}

func (p *Pool) watch(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := p.sqlDB.PingContext(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("database ping failed", zap.Error(err))
				}
				continue
			}
			p.Report()
		}
	}
}

// Close 停止上报并关闭连接，可重复调用
func (p *Pool) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		p.stop()
		p.wg.Wait()
		err = p.sqlDB.Close()
		p.logger.Info("database pool closed")
	})
	return err
}
