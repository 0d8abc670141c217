// =============================================================================
// 📦 SkillBridge 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultGenericErrorText 出错时发送给用户的默认提示
const DefaultGenericErrorText = "Sorry, something went wrong. Please try again."

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Host:      DefaultHostConfig(),
		Skills:    SkillsConfig{ManifestDir: "skills", WatchInterval: 2 * time.Second},
		Dispatch:  DefaultDispatchConfig(),
		Transport: DefaultTransportConfig(),
		State:     DefaultStateConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        3978,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// DefaultHostConfig 返回默认宿主身份配置
func DefaultHostConfig() HostConfig {
	return HostConfig{
		TokenTTL:         time.Hour,
		TokenRefreshSkew: 5 * time.Minute,
	}
}

// DefaultDispatchConfig 返回默认调度配置
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		SkillSwitchConfirmation: true,
		MaxCallbackHops:         32,
		GenericErrorText:        DefaultGenericErrorText,
		SwitchPromptTemplate:    "Would you like to switch to %s?",
		ConfirmMaxRetries:       2,
		SignInPromptText:        "Please sign in to continue.",
	}
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		DialTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		ForwardRPS:   20,
		ForwardBurst: 40,
		ReadLimit:    1 << 20,
		IdleTimeout:  30 * time.Minute,
	}
}

// DefaultStateConfig 返回默认状态存储配置
func DefaultStateConfig() StateConfig {
	return StateConfig{
		Backend:   "memory",
		KeyPrefix: "skillbridge:",
		TTL:       24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "skillbridge",
		Password:        "",
		Name:            "skillbridge",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "skillbridge",
		SampleRate:   0.1,
	}
}
