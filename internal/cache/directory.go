package cache

import (
	"context"
	"strings"
	"time"

	"github.com/FaresOuhachi/HR-Payroll-Agent/payroll"
)

// HitRecorder 接收命中/未命中计数，通常是 metrics.Collector
type HitRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

const directoryCacheType = "employee_directory"

// Directory 是 payroll.Directory 的读穿缓存。
// 缓存读写失败时直接回源，不会让工具调用失败。
type Directory struct {
	inner    payroll.Directory
	cache    *Store
	ttl      time.Duration
	recorder HitRecorder
}

var _ payroll.Directory = (*Directory)(nil)

// NewDirectory 包装员工目录。recorder 可以为 nil。
func NewDirectory(inner payroll.Directory, store *Store, ttl time.Duration, recorder HitRecorder) *Directory {
	return &Directory{inner: inner, cache: store, ttl: ttl, recorder: recorder}
}

func employeeKey(code string) string   { return "employee:" + strings.ToUpper(code) }
func departmentKey(dept string) string { return "department:" + strings.ToLower(dept) }

const departmentsKey = "departments"

func (d *Directory) Get(ctx context.Context, code string) (*payroll.Employee, error) {
	var e payroll.Employee
	hit, err := d.cache.Fetch(ctx, employeeKey(code), &e, d.ttl, func(ctx context.Context) (any, bool, error) {
		got, err := d.inner.Get(ctx, code)
		return got, true, err
	})
	d.record(hit)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (d *Directory) ListByDepartment(ctx context.Context, department string) ([]*payroll.Employee, error) {
	var list []*payroll.Employee
	hit, err := d.cache.Fetch(ctx, departmentKey(department), &list, d.ttl, func(ctx context.Context) (any, bool, error) {
		got, err := d.inner.ListByDepartment(ctx, department)
		// 空部门不缓存，新员工入职后立即可见
		return got, len(got) > 0, err
	})
	d.record(hit)
	return list, err
}

func (d *Directory) Departments(ctx context.Context) ([]string, error) {
	var names []string
	hit, err := d.cache.Fetch(ctx, departmentsKey, &names, d.ttl, func(ctx context.Context) (any, bool, error) {
		got, err := d.inner.Departments(ctx)
		return got, true, err
	})
	d.record(hit)
	return names, err
}

// Invalidate 删除一名员工及其部门的缓存条目
func (d *Directory) Invalidate(ctx context.Context, code, department string) error {
	keys := []string{departmentsKey}
	if code != "" {
		keys = append(keys, employeeKey(code))
	}
	if department != "" {
		keys = append(keys, departmentKey(department))
	}
	return d.cache.Delete(ctx, keys...)
}

func (d *Directory) record(hit bool) {
	if d.recorder == nil {
		return
	}
	if hit {
		d.recorder.RecordCacheHit(directoryCacheType)
	} else {
		d.recorder.RecordCacheMiss(directoryCacheType)
	}
}
