// =============================================================================
// 📦 careerflow 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Session:   DefaultSessionConfig(),
		Memory:    DefaultMemoryConfig(),
		Qdrant:    DefaultQdrantConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Search:    DefaultSearchConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:          8080,
		MetricsPort:       9091,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   15 * time.Second,
		WSKeepAlive:       30 * time.Second,
		RateLimitRPS:      20,
		RateLimitBurst:    40,
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxTurns:          30,
		ShortTermCapacity: 10,
		GatewayID:         "TriageAgent",
		SpecialistIDs:     []string{"ProfilerAgent", "SkillAgent", "LearningPlanAgent", "GlobalJobsAgent"},
		ProxyID:           "user_proxy",
		RecallTopK:        3,
		CVHook: CVHookConfig{
			Enabled:       true,
			Query:         "resume OR curriculum OR cv",
			TopK:          1,
			PreviewChars:  500,
			SessionScoped: true,
		},
	}
}

// DefaultMemoryConfig 返回默认长期记忆配置
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		Backend:           "memory",
		CoreIndex:         "core_memory",
		ProfileIndex:      "user_profiles",
		EmbeddingCacheTTL: 24 * time.Hour,
	}
}

// DefaultQdrantConfig 返回默认 Qdrant 配置
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		BaseURL:    "http://localhost:6333",
		Timeout:    10 * time.Second,
		VectorSize: 1536,
		Distance:   "Cosine",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "careerflow:",
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
		User:            "careerflow",
		Name:            "careerflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "openai",
		AgentModel:  "gpt-4o",
		ToolModel:   "gpt-4o-mini",
		APIVersion:  "2024-06-01",
		Temperature: 0.7,
		MaxTokens:   1024,
		Timeout:     2 * time.Minute,
		MaxRetries:  3,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{Model: "text-embedding-3-small"}
}

// DefaultSearchConfig 返回默认搜索配置
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Endpoint: "https://api.search.brave.com/res/v1/web/search",
		Timeout:  15 * time.Second,
		CacheTTL: time.Hour,
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
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "careerflow",
		SampleRate:     0.1,
		Insecure:       true,
		Environment:    "development",
		MetricInterval: 30 * time.Second,
	}
}
