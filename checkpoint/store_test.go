package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type storeFactory func(t *testing.T) Store

func newMemoryTestStore(t *testing.T) Store {
	return NewMemoryStore()
}

func newRedisTestStore(t *testing.T) Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:", zaptest.NewLogger(t))
}

func newGormTestStore(t *testing.T) Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	store := NewGormStore(db, zaptest.NewLogger(t))
	require.NoError(t, store.AutoMigrate())
	return store
}

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": newMemoryTestStore,
		"redis":  newRedisTestStore,
		"gorm":   newGormTestStore,
	}
}

func rec(session string, seq int64, node string) *Record {
	return &Record{
		SessionID: session,
		Seq:       seq,
		Node:      node,
		State:     json.RawMessage(fmt.Sprintf(`{"node":%q,"seq":%d}`, node, seq)),
	}
}

func TestStore_WriteAndRead(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			require.NoError(t, s.Write(ctx, rec("s1", 0, "START")))
			require.NoError(t, s.Write(ctx, rec("s1", 1, "CLASSIFY")))

			latest, err := s.ReadLatest(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, int64(1), latest.Seq)
			assert.Equal(t, "CLASSIFY", latest.Node)
			assert.JSONEq(t, `{"node":"CLASSIFY","seq":1}`, string(latest.State))
			assert.False(t, latest.CreatedAt.IsZero())

			first, err := s.ReadAt(ctx, "s1", 0)
			require.NoError(t, err)
			assert.Equal(t, "START", first.Node)

			assert.NoError(t, s.Ping(ctx))
		})
	}
}

func TestStore_Errors(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			_, err := s.ReadLatest(ctx, "missing")
			assert.ErrorIs(t, err, ErrNoSuchSession)

			_, err = s.ReadAt(ctx, "missing", 0)
			assert.ErrorIs(t, err, ErrNotFound)

			// 新会话必须从 0 开始
			assert.ErrorIs(t, s.Write(ctx, rec("s1", 1, "START")), ErrSequenceConflict)

			require.NoError(t, s.Write(ctx, rec("s1", 0, "START")))
			assert.ErrorIs(t, s.Write(ctx, rec("s1", 0, "START")), ErrSequenceConflict)
			assert.ErrorIs(t, s.Write(ctx, rec("s1", 2, "ROUTE")), ErrSequenceConflict)

			_, err = s.ReadAt(ctx, "s1", 7)
			assert.ErrorIs(t, err, ErrNotFound)

			assert.ErrorIs(t, s.Write(ctx, &Record{Seq: 0, State: json.RawMessage(`{}`)}), ErrInvalidRecord)
			assert.ErrorIs(t, s.Write(ctx, &Record{SessionID: "s2"}), ErrInvalidRecord)

			// 失败的写入不应改变链
			latest, err := s.ReadLatest(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, int64(0), latest.Seq)
		})
	}
}

func TestStore_ListAndPrune(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			empty, err := s.List(ctx, "s1")
			require.NoError(t, err)
			assert.Empty(t, empty)

			for i := int64(0); i < 6; i++ {
				require.NoError(t, s.Write(ctx, rec("s1", i, "SPECIALIST_REASON")))
			}
			require.NoError(t, s.Write(ctx, rec("other", 0, "START")))

			all, err := s.List(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, all, 6)
			for i, r := range all {
				assert.Equal(t, int64(i), r.Seq)
			}

			removed, err := s.Prune(ctx, "s1", 2)
			require.NoError(t, err)
			assert.Equal(t, 4, removed)

			kept, err := s.List(ctx, "s1")
			require.NoError(t, err)
			require.Len(t, kept, 2)
			assert.Equal(t, int64(4), kept[0].Seq)
			assert.Equal(t, int64(5), kept[1].Seq)

			// keep < 1 仍保留最新的检查点
			removed, err = s.Prune(ctx, "s1", 0)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)
			latest, err := s.ReadLatest(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, int64(5), latest.Seq)

			// 裁剪后仍然只接受 latest+1
			require.NoError(t, s.Write(ctx, rec("s1", 6, "ANSWER")))

			other, err := s.List(ctx, "other")
			require.NoError(t, err)
			assert.Len(t, other, 1)
		})
	}
}

func TestStore_ConcurrentWritersSameSeq(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			require.NoError(t, s.Write(ctx, rec("race", 0, "START")))

			const writers = 8
			var (
				wg        sync.WaitGroup
				succeeded atomic.Int32
				conflicts atomic.Int32
			)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := s.Write(ctx, rec("race", 1, "CLASSIFY"))
					switch {
					case err == nil:
						succeeded.Add(1)
					case assert.ErrorIs(t, err, ErrSequenceConflict):
						conflicts.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), succeeded.Load())
			assert.Equal(t, int32(writers-1), conflicts.Load())

			all, err := s.List(ctx, "race")
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	original := rec("s1", 0, "START")
	require.NoError(t, s.Write(ctx, original))
	original.State[0] = 'X'

	got, err := s.ReadLatest(ctx, "s1")
	require.NoError(t, err)
	got.State[0] = 'Y'

	again, err := s.ReadLatest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, byte('{'), again.State[0])
}
