package config

import "time"

// DefaultConfig 开箱即用的配置：内存存储、不开认证，角色白名单与阈值为演示策略
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Engine:     DefaultEngineConfig(),
		Router:     DefaultRouterConfig(),
		Governance: DefaultGovernanceConfig(),
		Store:      DefaultStoreConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Events:     DefaultEventsConfig(),
		Guardrails: DefaultGuardrailsConfig(),
		Auth:       DefaultAuthConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       60 * time.Second,
		ShutdownTimeout:    15 * time.Second,
		RateLimitRPS:       50,
		RateLimitBurst:     100,
		CORSAllowedOrigins: []string{"*"},
	}
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxIterations:      5,
		RunTimeout:         2 * time.Minute,
		ToolTimeout:        30 * time.Second,
		RetrievalTopK:      3,
		HistoryTokenBudget: 4000,
		TokenizerModel:     "gpt-4o",
	}
}

func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		ConfidenceThreshold: 0.6,
		FallbackSpecialist:  "general",
	}
}

func DefaultGovernanceConfig() GovernanceConfig {
	return GovernanceConfig{
		Allowlists: map[string][]string{
			"payroll": {
				"get_employee_info",
				"calculate_gross_pay",
				"calculate_deductions",
				"calculate_net_pay",
				"get_leave_balance",
				"search_employees_by_department",
				"calculate_department_payroll",
			},
			"employee": {
				"get_employee_info",
				"get_leave_balance",
				"calculate_net_pay",
			},
			"compliance": {
				"get_employee_info",
				"search_employees_by_department",
				"calculate_department_payroll",
			},
			"general": {
				"get_employee_info",
			},
		},
		Thresholds: map[string]float64{
			"calculate_department_payroll": 50000,
		},
	}
}

func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Backend:   "memory",
		KeyPrefix: "payroll:",
		LockTTL:   5 * time.Minute,
	}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "payroll",
		Name:            "payroll",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		SeedDemoData:    true,
	}
}

func DefaultEventsConfig() EventsConfig {
	return EventsConfig{
		BufferSize:      64,
		MongoDatabase:   "payroll",
		MongoCollection: "graph_events",
	}
}

func DefaultGuardrailsConfig() GuardrailsConfig {
	return GuardrailsConfig{
		MaxInputLength:  5000,
		MaxOutputLength: 10000,
		RedactPII:       true,
		BlockInjection:  true,
	}
}

func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		ApproverRole: "approver",
		SkipPaths:    []string{"/health", "/healthz", "/ready", "/version"},
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "payroll-agent",
		SampleRate:     0.1,
		Insecure:       true,
		MetricInterval: 30 * time.Second,
	}
}
