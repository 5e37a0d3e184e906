package approval

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
)

func newGormTestStore(t *testing.T) Store {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := NewGormStore(db, zaptest.NewLogger(t))
	require.NoError(t, s.AutoMigrate())
	return s
}

func backends() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"gorm":   newGormTestStore,
	}
}

func sampleRecord(id, session string, created time.Time) *Record {
	return &Record{
		ID:        id,
		SessionID: session,
		Seq:       4,
		ToolCall: governance.ToolCall{
			ID:        "call_1",
			Name:      "calculate_department_payroll",
			Arguments: json.RawMessage(`{"department":"Engineering"}`),
			Risk:      governance.RiskMedium,
		},
		Requester: "compliance",
		Status:    StatusPending,
		CreatedAt: created,
	}
}

func TestStore_CreateGetResolve(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			now := time.Now().UTC().Truncate(time.Second)

			require.NoError(t, s.Create(ctx, sampleRecord("a1", "S2", now)))

			got, err := s.Get(ctx, "a1")
			require.NoError(t, err)
			assert.Equal(t, StatusPending, got.Status)
			assert.Equal(t, "calculate_department_payroll", got.ToolCall.Name)
			assert.JSONEq(t, `{"department":"Engineering"}`, string(got.ToolCall.Arguments))
			assert.Equal(t, governance.RiskMedium, got.ToolCall.Risk)
			assert.Nil(t, got.DecidedAt)

			resolved, err := s.Resolve(ctx, "a1", StatusRejected, "manager@example.com", "over budget", now)
			require.NoError(t, err)
			assert.Equal(t, StatusRejected, resolved.Status)
			assert.Equal(t, "manager@example.com", resolved.Decider)
			assert.Equal(t, "over budget", resolved.Reason)
			require.NotNil(t, resolved.DecidedAt)

			_, err = s.Resolve(ctx, "a1", StatusApproved, "other", "", now)
			assert.ErrorIs(t, err, ErrAlreadyResolved)

			err = s.Create(ctx, sampleRecord("a1", "S2", now))
			assert.ErrorIs(t, err, ErrExists)
			kept, err := s.Get(ctx, "a1")
			require.NoError(t, err)
			assert.Equal(t, StatusRejected, kept.Status)

			_, err = s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Resolve(ctx, "missing", StatusApproved, "x", "", now)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			base := time.Now().UTC().Truncate(time.Second)

			require.NoError(t, s.Create(ctx, sampleRecord("a1", "S1", base)))
			require.NoError(t, s.Create(ctx, sampleRecord("a2", "S2", base.Add(time.Second))))
			require.NoError(t, s.Create(ctx, sampleRecord("a3", "S2", base.Add(2*time.Second))))
			_, err := s.Resolve(ctx, "a2", StatusApproved, "boss", "", base)
			require.NoError(t, err)

			all, err := s.List(ctx, Filter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, "a1", all[0].ID)

			pending, err := s.List(ctx, Filter{Status: StatusPending})
			require.NoError(t, err)
			assert.Len(t, pending, 2)

			s2, err := s.List(ctx, Filter{SessionID: "S2", Status: StatusPending})
			require.NoError(t, err)
			require.Len(t, s2, 1)
			assert.Equal(t, "a3", s2[0].ID)

			limited, err := s.List(ctx, Filter{Limit: 1})
			require.NoError(t, err)
			assert.Len(t, limited, 1)
		})
	}
}

func TestStore_ConcurrentResolveExactlyOnce(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			require.NoError(t, s.Create(ctx, sampleRecord("race", "S2", time.Now())))

			const deciders = 10
			var (
				wg      sync.WaitGroup
				won     atomic.Int32
				already atomic.Int32
			)
			for i := 0; i < deciders; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					status := StatusApproved
					if i%2 == 0 {
						status = StatusRejected
					}
					_, err := s.Resolve(ctx, "race", status, "d", "", time.Now())
					if err == nil {
						won.Add(1)
					} else if assert.ErrorIs(t, err, ErrAlreadyResolved) {
						already.Add(1)
					}
				}(i)
			}
			wg.Wait()
			assert.Equal(t, int32(1), won.Load())
			assert.Equal(t, int32(deciders-1), already.Load())
		})
	}
}
