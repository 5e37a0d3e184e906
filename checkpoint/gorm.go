package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/FaresOuhachi/HR-Payroll-Agent/internal/database"
)

// Row 检查点表模型
type Row struct {
	SessionID string    `gorm:"primaryKey;size:128" json:"session_id"`
	Seq       int64     `gorm:"primaryKey;autoIncrement:false" json:"seq"`
	Node      string    `gorm:"size:32;not null" json:"node"`
	State     []byte    `gorm:"not null" json:"state"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Row) TableName() string {
	return "graph_checkpoints"
}

func (r *Row) record() *Record {
	return &Record{
		SessionID: r.SessionID,
		Seq:       r.Seq,
		Node:      r.Node,
		State:     append([]byte(nil), r.State...),
		CreatedAt: r.CreatedAt,
	}
}

// GormStore persists chains in a relational table keyed by (session_id, seq).
// The composite primary key is the final arbiter for concurrent writers.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewGormStore 创建数据库检查点存储
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("store", "gorm_checkpoint")),
		now:    time.Now,
	}
}

// AutoMigrate creates the checkpoint table. Production deployments use the
// SQL migrations instead.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Row{})
}

func (s *GormStore) latestSeq(tx *gorm.DB, sessionID string) (int64, error) {
	var latest sql.NullInt64
	err := tx.Model(&Row{}).
		Where("session_id = ?", sessionID).
		Select("MAX(seq)").
		Row().
		Scan(&latest)
	if err != nil {
		return 0, err
	}
	if !latest.Valid {
		return -1, nil
	}
	return latest.Int64, nil
}

func (s *GormStore) Write(ctx context.Context, rec *Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	row := &Row{
		SessionID: rec.SessionID,
		Seq:       rec.Seq,
		Node:      rec.Node,
		State:     append([]byte(nil), rec.State...),
		CreatedAt: rec.CreatedAt,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.now()
	}

	err := database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		current, err := s.latestSeq(tx, rec.SessionID)
		if err != nil {
			return err
		}
		if rec.Seq != current+1 {
			return fmt.Errorf("%w: session %s expected seq %d, got %d", ErrSequenceConflict, rec.SessionID, current+1, rec.Seq)
		}
		return tx.Create(row).Error
	})
	if err == nil || errors.Is(err, ErrSequenceConflict) {
		return err
	}

	// 插入失败：若其他写入者已占用该序号，则视为冲突
	if current, lerr := s.latestSeq(s.db.WithContext(ctx), rec.SessionID); lerr == nil && current >= rec.Seq {
		return fmt.Errorf("%w: session %s seq %d already written", ErrSequenceConflict, rec.SessionID, rec.Seq)
	}
	s.logger.Error("checkpoint write failed",
		zap.String("session_id", rec.SessionID),
		zap.Int64("seq", rec.Seq),
		zap.Error(err))
	return fmt.Errorf("write checkpoint: %w", err)
}

func (s *GormStore) ReadLatest(ctx context.Context, sessionID string) (*Record, error) {
	var row Row
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchSession, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("read latest checkpoint: %w", err)
	}
	return row.record(), nil
}

func (s *GormStore) ReadAt(ctx context.Context, sessionID string, seq int64) (*Record, error) {
	var row Row
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND seq = ?", sessionID, seq).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s@%d", ErrNotFound, sessionID, seq)
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return row.record(), nil
}

func (s *GormStore) List(ctx context.Context, sessionID string) ([]*Record, error) {
	var rows []Row
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	out := make([]*Record, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].record())
	}
	return out, nil
}

func (s *GormStore) Prune(ctx context.Context, sessionID string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	var removed int64
	err := database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		latest, err := s.latestSeq(tx, sessionID)
		if err != nil {
			return err
		}
		cutoff := latest - int64(keep)
		if cutoff < 0 {
			return nil
		}
		res := tx.Where("session_id = ? AND seq <= ?", sessionID, cutoff).Delete(&Row{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	return int(removed), nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close is a no-op; the *gorm.DB is owned by the pool manager.
func (s *GormStore) Close() error { return nil }
