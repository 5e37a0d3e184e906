package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 环境变量前缀，例如 PAYROLL_SERVER_HTTP_PORT
const DefaultEnvPrefix = "PAYROLL"

type loadOptions struct {
	path      string
	envPrefix string
	validate  bool
}

// Option 配置加载选项
type Option func(*loadOptions)

// WithFile 从 YAML 文件加载；文件不存在时使用默认值
func WithFile(path string) Option {
	return func(o *loadOptions) { o.path = path }
}

// WithEnvPrefix 替换环境变量前缀
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) { o.envPrefix = prefix }
}

// WithValidation 加载完成后执行 Validate
func WithValidation() Option {
	return func(o *loadOptions) { o.validate = true }
}

// Load 依次叠加默认值、YAML 文件与环境变量。
// YAML 中的未知字段会报错，避免拼错的键被静默忽略。
func Load(opts ...Option) (*Config, error) {
	o := loadOptions{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := DefaultConfig()
	if o.path != "" {
		if err := mergeFile(cfg, o.path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg, o.envPrefix); err != nil {
		return nil, err
	}
	if o.validate {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
