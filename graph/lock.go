package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RunLock is the per-session in-progress marker. Acquire fails with
// ErrLockHeld while another holder owns the session; release is idempotent.
type RunLock interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// MemoryRunLock 进程内运行锁
type MemoryRunLock struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMemoryRunLock() *MemoryRunLock {
	return &MemoryRunLock{held: make(map[string]string)}
}

func (l *MemoryRunLock) Acquire(_ context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[sessionID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, sessionID)
	}
	token := uuid.NewString()
	l.held[sessionID] = token

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if l.held[sessionID] == token {
				delete(l.held, sessionID)
			}
			l.mu.Unlock()
		})
	}, nil
}

// Held 判断会话是否被锁定
func (l *MemoryRunLock) Held(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[sessionID]
	return ok
}

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunLock 基于 SET NX PX 的跨进程运行锁。
// 租期到期后锁自动失效，释放时校验 token。
type RedisRunLock struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisRunLock(client redis.UniversalClient, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisRunLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisRunLock{
		client: client,
		prefix: keyPrefix,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "run_lock")),
	}
}

func (l *RedisRunLock) key(sessionID string) string {
	return l.prefix + "runlock:" + sessionID
}

func (l *RedisRunLock) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := l.key(sessionID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, sessionID)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil {
				l.logger.Warn("release run lock failed",
					zap.String("session_id", sessionID),
					zap.Error(err))
			}
		})
	}, nil
}
