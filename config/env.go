package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// applyEnv 按 env 标签遍历配置，嵌套结构的标签逐级用下划线拼接。
// 标签为 "-" 的字段只能通过文件配置。
func applyEnv(cfg *Config, prefix string) error {
	return walkEnv(reflect.ValueOf(cfg).Elem(), prefix)
}

func walkEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		tag := sf.Tag.Get("env")
		if tag == "" || tag == "-" || !sf.IsExported() {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)

		if field.Kind() == reflect.Struct {
			if err := walkEnv(field, key); err != nil {
				return err
			}
			continue
		}
		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("env %s=%q: %w", key, raw, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	raw = strings.TrimSpace(raw)
	switch p := field.Addr().Interface().(type) {
	case *string:
		*p = raw
	case *bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*p = b
	case *int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*p = n
	case *float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		*p = f
	case *time.Duration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*p = d
	case *[]string:
		*p = splitList(raw)
	case *map[string]float64:
		m, err := parseNumberMap(raw)
		if err != nil {
			return err
		}
		*p = m
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseNumberMap 解析 "a=1, b=2.5"
func parseNumberMap(raw string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range splitList(raw) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q is not key=value", pair)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", pair, err)
		}
		out[strings.TrimSpace(k)] = f
	}
	return out, nil
}
