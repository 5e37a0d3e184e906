package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts Options) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, opts, nil), mr
}

type payslip struct {
	Code  string  `json:"code"`
	Gross float64 `json:"gross"`
}

func TestStore_SaveAndLoad(t *testing.T) {
	s, mr := newTestStore(t, Options{KeyPrefix: "payroll:cache:", DefaultTTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "slip:E001", payslip{Code: "E001", Gross: 7250.5}, 0))
	assert.True(t, mr.Exists("payroll:cache:slip:E001"))
	assert.Equal(t, time.Minute, mr.TTL("payroll:cache:slip:E001"))

	var got payslip
	require.NoError(t, s.Load(ctx, "slip:E001", &got))
	assert.Equal(t, payslip{Code: "E001", Gross: 7250.5}, got)

	assert.ErrorIs(t, s.Load(ctx, "slip:E404", &got), ErrMiss)
}

func TestStore_LoadRejectsCorruptValue(t *testing.T) {
	s, mr := newTestStore(t, Options{KeyPrefix: "c:"})
	require.NoError(t, mr.Set("c:broken", "{not json"))

	var got payslip
	err := s.Load(context.Background(), "broken", &got)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
	assert.Contains(t, err.Error(), "cache decode broken")
}

func TestStore_TTLJitterStaysInRange(t *testing.T) {
	s, _ := newTestStore(t, Options{DefaultTTL: time.Minute, Jitter: 0.2})
	for range 50 {
		ttl := s.ttl(0)
		assert.LessOrEqual(t, ttl, time.Minute)
		assert.GreaterOrEqual(t, ttl, 48*time.Second)
	}
	assert.Equal(t, 0.9, NewStore(nil, Options{Jitter: 5}, nil).opts.Jitter)
}

func TestStore_FetchReadsThrough(t *testing.T) {
	s, mr := newTestStore(t, Options{KeyPrefix: "c:", DefaultTTL: time.Minute})
	ctx := context.Background()
	loads := 0
	load := func(context.Context) (any, bool, error) {
		loads++
		return payslip{Code: "E002", Gross: 5100}, true, nil
	}

	var first payslip
	hit, err := s.Fetch(ctx, "slip:E002", &first, 0, load)
	require.NoError(t, err)
	assert.False(t, hit)

	var second payslip
	hit, err = s.Fetch(ctx, "slip:E002", &second, 0, load)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, loads)

	mr.FastForward(2 * time.Minute)
	_, err = s.Fetch(ctx, "slip:E002", &second, 0, load)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestStore_FetchSkipsStoreAndErrors(t *testing.T) {
	s, mr := newTestStore(t, Options{KeyPrefix: "c:"})
	ctx := context.Background()

	var list []string
	_, err := s.Fetch(ctx, "department:legal", &list, 0, func(context.Context) (any, bool, error) {
		return []string{}, false, nil
	})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, mr.Exists("c:department:legal"))

	boom := errors.New("directory offline")
	_, err = s.Fetch(ctx, "employee:E001", &list, 0, func(context.Context) (any, bool, error) {
		return nil, false, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("c:employee:E001"))
}

func TestStore_FetchCoalescesConcurrentLoads(t *testing.T) {
	s, _ := newTestStore(t, Options{KeyPrefix: "c:"})
	var loads atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (any, bool, error) {
		loads.Add(1)
		<-release
		return payslip{Code: "E003"}, true, nil
	}

	var wg sync.WaitGroup
	results := make([]payslip, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Fetch(context.Background(), "slip:E003", &results[i], 0, load)
			assert.NoError(t, err)
		}()
	}
	// 让所有调用进入 singleflight 后再放行
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, loads.Load(), int32(2))
	for _, r := range results {
		assert.Equal(t, "E003", r.Code)
	}
}

func TestStore_FetchFallsBackWhenRedisDown(t *testing.T) {
	s, mr := newTestStore(t, Options{KeyPrefix: "c:"})
	mr.Close()

	var got payslip
	hit, err := s.Fetch(context.Background(), "slip:E004", &got, 0, func(context.Context) (any, bool, error) {
		return payslip{Code: "E004"}, true, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "E004", got.Code)
}

func TestStore_DeleteAndPurge(t *testing.T) {
	s, mr := newTestStore(t, Options{KeyPrefix: "payroll:cache:"})
	ctx := context.Background()
	require.NoError(t, mr.Set("payroll:sessions:s-1", "keep"))
	for i := range 450 {
		require.NoError(t, s.Save(ctx, fmt.Sprintf("employee:E%03d", i), i, 0))
	}

	require.NoError(t, s.Delete(ctx, "employee:E000", "employee:E001"))
	require.NoError(t, s.Delete(ctx))
	assert.False(t, mr.Exists("payroll:cache:employee:E000"))

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 448, n)
	assert.Equal(t, []string{"payroll:sessions:s-1"}, mr.Keys())
}

func TestStore_Closed(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Close())

	var v int
	assert.ErrorIs(t, s.Load(ctx, "k", &v), ErrClosed)
	assert.ErrorIs(t, s.Save(ctx, "k", 1, 0), ErrClosed)
	assert.ErrorIs(t, s.Delete(ctx, "k"), ErrClosed)
	assert.ErrorIs(t, s.Ping(ctx), ErrClosed)
	_, err := s.Purge(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}
