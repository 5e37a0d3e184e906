package payroll

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MemoryDirectory 内存员工目录
type MemoryDirectory struct {
	mu        sync.RWMutex
	employees map[string]*Employee
}

func NewMemoryDirectory(employees []Employee) *MemoryDirectory {
	d := &MemoryDirectory{employees: make(map[string]*Employee, len(employees))}
	for i := range employees {
		e := employees[i]
		d.employees[e.Code] = &e
	}
	return d
}

func (d *MemoryDirectory) Get(_ context.Context, code string) (*Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.employees[code]
	if !ok || !e.Active {
		return nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, code)
	}
	c := *e
	return &c, nil
}

func (d *MemoryDirectory) ListByDepartment(_ context.Context, department string) ([]*Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*Employee
	for _, e := range d.employees {
		if e.Active && strings.EqualFold(e.Department, department) {
			c := *e
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (d *MemoryDirectory) Departments(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, e := range d.employees {
		if e.Active && !seen[e.Department] {
			seen[e.Department] = true
			out = append(out, e.Department)
		}
	}
	sort.Strings(out)
	return out, nil
}

// GormDirectory reads employees from the employees table.
type GormDirectory struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewGormDirectory(db *gorm.DB, logger *zap.Logger) *GormDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormDirectory{db: db, logger: logger.With(zap.String("store", "gorm_employees"))}
}

func (d *GormDirectory) AutoMigrate() error {
	return d.db.AutoMigrate(&Employee{})
}

// Seed upserts the given employees; existing rows keep their values.
func (d *GormDirectory) Seed(ctx context.Context, employees []Employee) error {
	if len(employees) == 0 {
		return nil
	}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&employees).Error
	if err != nil {
		return fmt.Errorf("seed employees: %w", err)
	}
	d.logger.Info("employee directory seeded", zap.Int("count", len(employees)))
	return nil
}

func (d *GormDirectory) Get(ctx context.Context, code string) (*Employee, error) {
	var e Employee
	err := d.db.WithContext(ctx).
		Where("employee_code = ? AND active = ?", code, true).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEmployeeNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return &e, nil
}

func (d *GormDirectory) ListByDepartment(ctx context.Context, department string) ([]*Employee, error) {
	var rows []*Employee
	err := d.db.WithContext(ctx).
		Where("LOWER(department) = LOWER(?) AND active = ?", department, true).
		Order("employee_code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return rows, nil
}

func (d *GormDirectory) Departments(ctx context.Context) ([]string, error) {
	var out []string
	err := d.db.WithContext(ctx).Model(&Employee{}).
		Where("active = ?", true).
		Distinct().
		Order("department ASC").
		Pluck("department", &out).Error
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return out, nil
}
