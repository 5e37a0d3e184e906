package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/FaresOuhachi/HR-Payroll-Agent/governance"
)

// Row 审批表模型
type Row struct {
	ID            string     `gorm:"primaryKey;size:64" json:"id"`
	SessionID     string     `gorm:"size:128;not null;index" json:"session_id"`
	Seq           int64      `gorm:"not null" json:"seq"`
	ToolName      string     `gorm:"size:100;not null" json:"tool_name"`
	ToolCallID    string     `gorm:"size:64" json:"tool_call_id"`
	ToolArguments string     `gorm:"type:text" json:"tool_arguments"`
	ToolRisk      string     `gorm:"size:16" json:"tool_risk"`
	Requester     string     `gorm:"size:128" json:"requester"`
	Status        string     `gorm:"size:16;not null;index" json:"status"`
	Decider       string     `gorm:"size:128" json:"decider"`
	Reason        string     `gorm:"type:text" json:"reason"`
	DecidedAt     *time.Time `json:"decided_at"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
}

func (Row) TableName() string {
	return "approvals"
}

func toRow(r *Record) *Row {
	return &Row{
		ID:            r.ID,
		SessionID:     r.SessionID,
		Seq:           r.Seq,
		ToolName:      r.ToolCall.Name,
		ToolCallID:    r.ToolCall.ID,
		ToolArguments: string(r.ToolCall.Arguments),
		ToolRisk:      string(r.ToolCall.Risk),
		Requester:     r.Requester,
		Status:        string(r.Status),
		Decider:       r.Decider,
		Reason:        r.Reason,
		DecidedAt:     r.DecidedAt,
		CreatedAt:     r.CreatedAt,
	}
}

func (r *Row) record() *Record {
	rec := &Record{
		ID:        r.ID,
		SessionID: r.SessionID,
		Seq:       r.Seq,
		ToolCall: governance.ToolCall{
			ID:   r.ToolCallID,
			Name: r.ToolName,
			Risk: governance.Risk(r.ToolRisk),
		},
		Requester: r.Requester,
		Status:    Status(r.Status),
		Decider:   r.Decider,
		Reason:    r.Reason,
		DecidedAt: r.DecidedAt,
		CreatedAt: r.CreatedAt,
	}
	if r.ToolArguments != "" {
		rec.ToolCall.Arguments = json.RawMessage(r.ToolArguments)
	}
	return rec
}

// GormStore keeps approval records in the approvals table. Resolve is a
// conditional UPDATE on status = 'pending'.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{db: db, logger: logger.With(zap.String("store", "gorm_approval"))}
}

func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(&Row{})
}

func (s *GormStore) Create(ctx context.Context, rec *Record) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(toRow(rec))
	if res.Error != nil {
		return fmt.Errorf("create approval: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrExists, rec.ID)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*Record, error) {
	var row Row
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get approval: %w", err)
	}
	return row.record(), nil
}

func (s *GormStore) List(ctx context.Context, filter Filter) ([]*Record, error) {
	q := s.db.WithContext(ctx).Model(&Row{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var rows []Row
	if err := q.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	out := make([]*Record, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].record())
	}
	return out, nil
}

func (s *GormStore) Resolve(ctx context.Context, id string, status Status, decider, reason string, at time.Time) (*Record, error) {
	res := s.db.WithContext(ctx).Model(&Row{}).
		Where("id = ? AND status = ?", id, string(StatusPending)).
		Updates(map[string]any{
			"status":     string(status),
			"decider":    decider,
			"reason":     reason,
			"decided_at": at,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("resolve approval: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, id, current.Status)
	}
	s.logger.Debug("approval resolved", zap.String("approval_id", id), zap.String("status", string(status)))
	return s.Get(ctx, id)
}
