package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Crowd:     DefaultCrowdConfig(),
		Templates: DefaultTemplatesConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultDatabaseConfig 默认使用本地 sqlite 文件
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "crowdflow",
		Name:            "crowdflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 默认关闭 bundle 缓存
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:   false,
		Addr:      "localhost:6379",
		PoolSize:  10,
		KeyPrefix: "crowdflow:",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "crowdflow",
		SampleRate:   0.1,
	}
}

// DefaultCrowdConfig 默认启用内置 internal 众包
func DefaultCrowdConfig() CrowdConfig {
	return CrowdConfig{
		AutoMigrate:   true,
		EnabledCrowds: []string{"internal"},
		TxRetries:     3,
	}
}

// DefaultTemplatesConfig 返回默认模板配置
func DefaultTemplatesConfig() TemplatesConfig {
	return TemplatesConfig{
		RejectCycles:   true,
		BundleCacheTTL: 10 * time.Minute,
	}
}
