package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps each session's chain under {prefix}checkpoint:{session}:*.
// Writes use WATCH on the session's latest pointer so two writers racing for
// the same sequence cannot both commit.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	logger    *zap.Logger
	now       func() time.Time
}

// NewRedisStore 创建 Redis 检查点存储
func NewRedisStore(client redis.UniversalClient, keyPrefix string, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyPrefix == "" {
		keyPrefix = "payroll:"
	}
	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "checkpoint:",
		logger:    logger.With(zap.String("store", "redis_checkpoint")),
		now:       time.Now,
	}
}

func (s *RedisStore) recordKey(sessionID string, seq int64) string {
	return s.keyPrefix + sessionID + ":" + strconv.FormatInt(seq, 10)
}

func (s *RedisStore) latestKey(sessionID string) string {
	return s.keyPrefix + sessionID + ":latest"
}

func (s *RedisStore) indexKey(sessionID string) string {
	return s.keyPrefix + sessionID + ":index"
}

func (s *RedisStore) Write(ctx context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	stored := rec.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	latestKey := s.latestKey(rec.SessionID)
	txf := func(tx *redis.Tx) error {
		current := int64(-1)
		v, err := tx.Get(ctx, latestKey).Int64()
		switch {
		case err == nil:
			current = v
		case errors.Is(err, redis.Nil):
		default:
			return err
		}
		if rec.Seq != current+1 {
			return fmt.Errorf("%w: session %s expected seq %d, got %d", ErrSequenceConflict, rec.SessionID, current+1, rec.Seq)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.recordKey(rec.SessionID, rec.Seq), data, 0)
			pipe.Set(ctx, latestKey, rec.Seq, 0)
			pipe.ZAdd(ctx, s.indexKey(rec.SessionID), redis.Z{Score: float64(rec.Seq), Member: rec.Seq})
			return nil
		})
		return err
	}

	err = s.client.Watch(ctx, txf, latestKey)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: session %s seq %d lost race", ErrSequenceConflict, rec.SessionID, rec.Seq)
	}
	if err != nil && !errors.Is(err, ErrSequenceConflict) {
		s.logger.Error("checkpoint write failed",
			zap.String("session_id", rec.SessionID),
			zap.Int64("seq", rec.Seq),
			zap.Error(err))
	}
	return err
}

func (s *RedisStore) ReadLatest(ctx context.Context, sessionID string) (*Record, error) {
	seq, err := s.client.Get(ctx, s.latestKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchSession, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("read latest checkpoint: %w", err)
	}
	return s.ReadAt(ctx, sessionID, seq)
}

func (s *RedisStore) ReadAt(ctx context.Context, sessionID string, seq int64) (*Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(sessionID, seq)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s@%d", ErrNotFound, sessionID, seq)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) List(ctx context.Context, sessionID string) ([]*Record, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.keyPrefix + sessionID + ":" + m
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	out := make([]*Record, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			s.logger.Warn("skipping corrupt checkpoint", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (s *RedisStore) Prune(ctx context.Context, sessionID string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	latest, err := s.client.Get(ctx, s.latestKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	cutoff := latest - int64(keep)
	if cutoff < 0 {
		return 0, nil
	}
	members, err := s.client.ZRangeByScore(ctx, s.indexKey(sessionID), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.keyPrefix + sessionID + ":" + m
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRemRangeByScore(ctx, s.indexKey(sessionID), "-inf", strconv.FormatInt(cutoff, 10))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	s.logger.Debug("pruned checkpoints", zap.String("session_id", sessionID), zap.Int("removed", len(members)))
	return len(members), nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the client is owned by the caller.
func (s *RedisStore) Close() error { return nil }
