package config

import "time"

// Config 服务的完整配置。yaml 标签对应配置文件，env 标签拼成
// PREFIX_SECTION_FIELD 形式的环境变量，validate 标签由 Validate 检查。
type Config struct {
	Server     ServerConfig     `yaml:"server" env:"SERVER"`
	Engine     EngineConfig     `yaml:"engine" env:"ENGINE"`
	Router     RouterConfig     `yaml:"router" env:"ROUTER"`
	Governance GovernanceConfig `yaml:"governance" env:"GOVERNANCE"`
	Store      StoreConfig      `yaml:"store" env:"STORE"`
	Redis      RedisConfig      `yaml:"redis" env:"REDIS"`
	Database   DatabaseConfig   `yaml:"database" env:"DATABASE"`
	Events     EventsConfig     `yaml:"events" env:"EVENTS"`
	Guardrails GuardrailsConfig `yaml:"guardrails" env:"GUARDRAILS"`
	Auth       AuthConfig       `yaml:"auth" env:"AUTH"`
	Log        LogConfig        `yaml:"log" env:"LOG"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" env:"TELEMETRY"`
}

type ServerConfig struct {
	HTTPPort    int `yaml:"http_port" env:"HTTP_PORT" validate:"min=1,max=65535"`
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT" validate:"min=0,max=65535"`

	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 事件流连接不受写超时限制
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// 按客户端 IP 限流，RPS 为 0 时关闭
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" validate:"min=0"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" validate:"min=0"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 0 不限制
	MaxConnections int `yaml:"max_connections" env:"MAX_CONNECTIONS" validate:"min=0"`

	// 两者都配置时 API 端口启用 HTTPS
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE" validate:"required_with=TLSKeyFile"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE" validate:"required_with=TLSCertFile"`
}

type EngineConfig struct {
	// SPECIALIST_REASON 循环上限
	MaxIterations int `yaml:"max_iterations" env:"MAX_ITERATIONS" validate:"min=1"`
	// 一次 start/resume/recover 调用的超时
	RunTimeout  time.Duration `yaml:"run_timeout" env:"RUN_TIMEOUT" validate:"gt=0"`
	ToolTimeout time.Duration `yaml:"tool_timeout" env:"TOOL_TIMEOUT"`

	RetrievalTopK      int    `yaml:"retrieval_top_k" env:"RETRIEVAL_TOP_K" validate:"min=0"`
	HistoryTokenBudget int    `yaml:"history_token_budget" env:"HISTORY_TOKEN_BUDGET" validate:"min=0"`
	TokenizerModel     string `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`
}

// RouterConfig 可热更新
type RouterConfig struct {
	// 分类置信度低于该值时交给 FallbackSpecialist
	ConfidenceThreshold float64 `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD" validate:"min=0,max=1"`
	FallbackSpecialist  string  `yaml:"fallback_specialist" env:"FALLBACK_SPECIALIST" validate:"required"`
}

// GovernanceConfig 可热更新
type GovernanceConfig struct {
	// 角色 -> 允许调用的工具
	Allowlists map[string][]string `yaml:"allowlists" env:"-"`
	// 工具 -> 数量阈值，超过时中风险工具需要审批
	Thresholds map[string]float64 `yaml:"thresholds" env:"THRESHOLDS" validate:"dive,min=0"`
}

type StoreConfig struct {
	Backend   string `yaml:"backend" env:"BACKEND" validate:"oneof=memory redis database"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 运行锁租期
	LockTTL time.Duration `yaml:"lock_ttl" env:"LOCK_TTL"`
	// 每个会话保留的检查点数，0 不裁剪
	RetainCheckpoints int `yaml:"retain_checkpoints" env:"RETAIN_CHECKPOINTS" validate:"min=0"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB" validate:"min=0"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE" validate:"min=0"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS" validate:"min=0"`
	TLS          bool   `yaml:"tls" env:"TLS"`
	// 默认取 Addr 中的主机名
	TLSServerName string `yaml:"tls_server_name" env:"TLS_SERVER_NAME"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DRIVER" validate:"omitempty,oneof=postgres mysql sqlite"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT" validate:"min=0,max=65535"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	// sqlite 时为文件路径
	Name    string `yaml:"name" env:"NAME"`
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`

	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS" validate:"min=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`

	SeedDemoData bool `yaml:"seed_demo_data" env:"SEED_DEMO_DATA"`
}

type EventsConfig struct {
	// 每个订阅者的缓冲，满了丢弃
	BufferSize int `yaml:"buffer_size" env:"BUFFER_SIZE" validate:"min=0"`

	// 开启后事件写入 MongoDB 审计集合
	AuditEnabled    bool   `yaml:"audit_enabled" env:"AUDIT_ENABLED"`
	MongoURI        string `yaml:"mongo_uri" env:"MONGO_URI" validate:"required_if=AuditEnabled true"`
	MongoDatabase   string `yaml:"mongo_database" env:"MONGO_DATABASE"`
	MongoCollection string `yaml:"mongo_collection" env:"MONGO_COLLECTION"`
}

type GuardrailsConfig struct {
	MaxInputLength  int  `yaml:"max_input_length" env:"MAX_INPUT_LENGTH" validate:"min=0"`
	MaxOutputLength int  `yaml:"max_output_length" env:"MAX_OUTPUT_LENGTH" validate:"min=0"`
	RedactPII       bool `yaml:"redact_pii" env:"REDACT_PII"`
	BlockInjection  bool `yaml:"block_injection" env:"BLOCK_INJECTION"`
}

type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" validate:"required_if=Enabled true"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
	// 可以做审批决定的角色
	ApproverRole string   `yaml:"approver_role" env:"APPROVER_ROLE"`
	SkipPaths    []string `yaml:"skip_paths" env:"SKIP_PATHS"`
}

type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	Format           string   `yaml:"format" env:"FORMAT" validate:"omitempty,oneof=json console"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT" validate:"required_if=Enabled true"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE" validate:"min=0,max=1"`
	// 明文 gRPC 连接收集器
	Insecure       bool          `yaml:"insecure" env:"INSECURE"`
	MetricInterval time.Duration `yaml:"metric_interval" env:"METRIC_INTERVAL"`
}
