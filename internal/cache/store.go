package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrMiss   = errors.New("cache miss")
	ErrClosed = errors.New("cache store is closed")
)

// Options 缓存选项
type Options struct {
	// 所有键的前缀，例如 "payroll:cache:"
	KeyPrefix string
	// ttl 传 0 时使用
	DefaultTTL time.Duration
	// TTL 随机抖动比例 [0,1)，避免同一批键同时过期
	Jitter float64
}

// Loader 回源函数。store 为 false 时结果不写入缓存。
type Loader func(ctx context.Context) (value any, store bool, err error)

// Store 在共享的 Redis 客户端上保存 JSON 值。
// 客户端归调用方所有，Close 不会关闭它。
type Store struct {
	client redis.UniversalClient
	opts   Options
	logger *zap.Logger
	group  singleflight.Group
	closed atomic.Bool
}

func NewStore(client redis.UniversalClient, opts Options, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	opts.Jitter = min(max(opts.Jitter, 0), 0.9)
	return &Store{
		client: client,
		opts:   opts,
		logger: logger.With(zap.String("component", "cache"), zap.String("prefix", opts.KeyPrefix)),
	}
}

// Load 读取 key 并解码到 dest，不存在时返回 ErrMiss
func (s *Store) Load(ctx context.Context, key string, dest any) error {
	if s.closed.Load() {
		return ErrClosed
	}
	raw, err := s.client.Get(ctx, s.opts.KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("cache load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("cache decode %s: %w", key, err)
	}
	return nil
}

// Save 编码 value 并写入；ttl 为 0 时使用默认 TTL
func (s *Store) Save(ctx context.Context, key string, value any, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, s.opts.KeyPrefix+key, data, s.ttl(ttl)).Err(); err != nil {
		return fmt.Errorf("cache save %s: %w", key, err)
	}
	return nil
}

// Fetch 读穿：命中时直接解码；未命中时回源，同一 key 的并发回源合并为一次。
// Redis 故障只记录日志，结果仍来自 load。返回值表示是否命中缓存。
func (s *Store) Fetch(ctx context.Context, key string, dest any, ttl time.Duration, load Loader) (bool, error) {
	err := s.Load(ctx, key, dest)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, ErrMiss) {
		s.logger.Warn("cache read failed, loading from source", zap.String("key", key), zap.Error(err))
	}

	v, err, shared := s.group.Do(key, func() (any, error) {
		value, store, err := load(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("cache encode %s: %w", key, err)
		}
		if store && !s.closed.Load() {
			if err := s.client.Set(ctx, s.opts.KeyPrefix+key, data, s.ttl(ttl)).Err(); err != nil {
				s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return data, nil
	})
	if err != nil {
		return false, err
	}
	if shared {
		s.logger.Debug("cache load shared", zap.String("key", key))
	}
	return false, json.Unmarshal(v.([]byte), dest)
}

// Delete 删除若干键
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.opts.KeyPrefix + k
	}
	if err := s.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Purge 用 SCAN 删除前缀下的全部键，返回删除数量
func (s *Store) Purge(ctx context.Context) (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.opts.KeyPrefix+"*", 200).Result()
		if err != nil {
			return removed, fmt.Errorf("cache scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("cache purge: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	s.logger.Info("cache purged", zap.Int("keys", removed))
	return removed, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close 之后所有操作返回 ErrClosed
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = s.opts.DefaultTTL
	}
	if s.opts.Jitter > 0 {
		ttl -= time.Duration(rand.Float64() * s.opts.Jitter * float64(ttl))
	}
	return ttl
}
