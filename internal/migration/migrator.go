package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

// DefaultTable 记录 Schema 版本的表
const DefaultTable = "schema_migrations"

// Options 迁移器选项
type Options struct {
	Dialect Dialect
	// 连接 URL，格式见 URLFor
	URL string
	// 版本表名，默认 DefaultTable
	Table string
	// 获取迁移锁与首次连接的超时
	LockTimeout time.Duration
	Logger      *zap.Logger
}

// Script 一个内嵌的迁移脚本（up/down 成对）
type Script struct {
	Version uint
	Name    string
}

// Step 脚本及其在当前数据库中的状态
type Step struct {
	Script
	Applied bool
	Dirty   bool
}

// Summary 当前 Schema 状态汇总
type Summary struct {
	Version uint
	Dirty   bool
	Total   int
	Applied int
	Pending int
}

// Migrator 基于 golang-migrate 管理 Schema 版本
type Migrator struct {
	dialect Dialect
	mig     *migrate.Migrate
	scripts []Script
	logger  *zap.Logger
}

// Open 连接数据库并加载该方言的内嵌脚本
func Open(opts Options) (*Migrator, error) {
	if opts.URL == "" {
		return nil, errors.New("database URL is required")
	}
	d, ok := dialects[opts.Dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %q", opts.Dialect)
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.With(zap.String("component", "migration"), zap.String("dialect", string(opts.Dialect)))

	scripts, err := loadScripts(opts.Dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.sqlDriver, opts.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(context.Background(), opts.LockTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := d.wrap(db, opts.Table)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create %s driver: %w", opts.Dialect, err)
	}
	src, err := iofs.New(scriptsFS, opts.Dialect.dir())
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("load embedded scripts: %w", err)
	}
	mig, err := migrate.NewWithInstance("iofs", src, string(opts.Dialect), driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	mig.LockTimeout = opts.LockTimeout
	mig.Log = zapLog{logger}

	return &Migrator{dialect: opts.Dialect, mig: mig, scripts: scripts, logger: logger}, nil
}

// OpenURL 按方言名称与连接 URL 打开迁移器
func OpenURL(dialect, dbURL string, logger *zap.Logger) (*Migrator, error) {
	d, err := ParseDialect(dialect)
	if err != nil {
		return nil, err
	}
	return Open(Options{Dialect: d, URL: dbURL, Logger: logger})
}

// OpenDatabase 按 database 配置段打开迁移器
func OpenDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*Migrator, error) {
	d, dbURL, err := URLFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}
	return Open(Options{Dialect: d, URL: dbURL, Logger: logger})
}

// Dialect 返回迁移器使用的方言
func (m *Migrator) Dialect() Dialect { return m.dialect }

// Scripts 返回按版本排序的内嵌脚本
func (m *Migrator) Scripts() []Script {
	return append([]Script(nil), m.scripts...)
}

// Up 应用全部待执行脚本
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "up", m.mig.Up)
}

// Down 回滚最近一个脚本
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, "down", func() error { return m.mig.Steps(-1) })
}

// Reset 回滚全部脚本
func (m *Migrator) Reset(ctx context.Context) error {
	return m.run(ctx, "reset", m.mig.Down)
}

// Steps n 为正时前进 n 个版本，为负时回滚
func (m *Migrator) Steps(ctx context.Context, n int) error {
	return m.run(ctx, "steps", func() error { return m.mig.Steps(n) })
}

// Goto 迁移到指定版本
func (m *Migrator) Goto(ctx context.Context, version uint) error {
	return m.run(ctx, "goto", func() error { return m.mig.Migrate(version) })
}

// Force 只改写版本记录并清除 dirty 标记，不执行脚本
func (m *Migrator) Force(ctx context.Context, version int) error {
	if err := m.mig.Force(version); err != nil {
		return fmt.Errorf("migrate force: %w", err)
	}
	m.logger.Warn("schema version forced", zap.Int("version", version))
	return nil
}

// Version 返回当前版本；尚未执行任何脚本时为 0
func (m *Migrator) Version(context.Context) (uint, bool, error) {
	v, dirty, err := m.mig.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read schema version: %w", err)
	}
	return v, dirty, nil
}

// Plan 列出每个脚本的执行状态
func (m *Migrator) Plan(ctx context.Context) ([]Step, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(m.scripts))
	for _, s := range m.scripts {
		steps = append(steps, Step{
			Script:  s,
			Applied: current > 0 && s.Version <= current,
			Dirty:   dirty && s.Version == current,
		})
	}
	return steps, nil
}

// Summary 汇总当前 Schema 状态
func (m *Migrator) Summary(ctx context.Context) (Summary, error) {
	steps, err := m.Plan(ctx)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Total: len(steps)}
	for _, s := range steps {
		if s.Applied {
			sum.Applied++
		}
	}
	sum.Pending = sum.Total - sum.Applied
	sum.Version, sum.Dirty, err = m.Version(ctx)
	return sum, err
}

// EnsureLatest 应用待执行脚本，Schema 处于 dirty 状态时报错。
// 服务启动时在打开 GORM 存储之前调用。
func (m *Migrator) EnsureLatest(ctx context.Context) (uint, error) {
	if err := m.Up(ctx); err != nil {
		return 0, err
	}
	v, dirty, err := m.Version(ctx)
	if err != nil {
		return 0, err
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty, run migrate force after fixing it", v)
	}
	m.logger.Info("schema up to date", zap.Uint("version", v))
	return v, nil
}

// Close 关闭脚本源与数据库连接
func (m *Migrator) Close() error {
	srcErr, dbErr := m.mig.Close()
	return errors.Join(srcErr, dbErr)
}

// run 执行一次迁移操作。golang-migrate 不接受 context，
// ctx 取消时通过 GracefulStop 让它在当前脚本结束后停下；停下之后该迁移器不再执行脚本。
func (m *Migrator) run(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migrate %s: %w", op, err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			select {
			case m.mig.GracefulStop <- true:
			default:
			}
		case <-done:
		}
	}()

	err := fn()
	close(done)
	wg.Wait()
	// 未被消费的停止信号不能影响下一次操作
	select {
	case <-m.mig.GracefulStop:
	default:
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migrate %s interrupted: %w", op, err)
	}
	return nil
}

// loadScripts 从文件名解析版本与名称，例如 000001_init_schema.up.sql
func loadScripts(d Dialect) ([]Script, error) {
	entries, err := fs.ReadDir(scriptsFS, d.dir())
	if err != nil {
		return nil, fmt.Errorf("read embedded scripts for %s: %w", d, err)
	}
	var scripts []Script
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".up.sql")
		if e.IsDir() || !ok {
			continue
		}
		num, label, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		v, err := strconv.ParseUint(num, 10, 32)
		if err != nil {
			continue
		}
		scripts = append(scripts, Script{Version: uint(v), Name: label})
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version < scripts[j].Version })
	return scripts, nil
}

// zapLog 把 golang-migrate 的输出接到 zap
type zapLog struct{ logger *zap.Logger }

func (l zapLog) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l zapLog) Verbose() bool {
	return l.logger.Core().Enabled(zap.DebugLevel)
}
