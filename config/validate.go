package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(validateLockLease, Config{})
	return v
}

// validateLockLease Redis 运行锁没有续租，租期必须覆盖整个运行超时
func validateLockLease(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.Store.Backend != "redis" || c.Engine.RunTimeout <= 0 {
		return
	}
	ttl := c.Store.LockTTL
	if ttl <= 0 {
		ttl = DefaultStoreConfig().LockTTL
	}
	if ttl <= c.Engine.RunTimeout {
		sl.ReportError(ttl, "store.lock_ttl", "LockTTL", "gtfield",
			fmt.Sprintf("engine.run_timeout (%s)", c.Engine.RunTimeout))
	}
}

// Validate 检查字段取值范围与字段间依赖，所有问题合并为一个错误返回
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// describe 输出 "server.http_port must be >= 1" 这种形式
func describe(fe validator.FieldError) string {
	_, path, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return path + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be >= %s, got %v", path, fe.Param(), fe.Value())
	case "max", "lte":
		return fmt.Sprintf("%s must be <= %s, got %v", path, fe.Param(), fe.Value())
	case "gt", "gtfield":
		return fmt.Sprintf("%s must be > %s, got %v", path, fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", path, fe.Param(), fe.Value())
	}
	return fmt.Sprintf("%s failed %s", path, fe.Tag())
}
