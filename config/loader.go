// =============================================================================
// 📦 careerflow 配置加载器
// =============================================================================
// 配置来源依次叠加: 默认值 → YAML 文件 → 环境变量（CAREERFLOW_ 前缀）
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    Load()
//
// YAML 中的 ${VAR} 与 ${VAR:-default} 在解析前展开；未知字段视为错误.
// =============================================================================
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 careerflow 服务的完整配置
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Session   SessionConfig   `yaml:"session" env:"SESSION"`
	Memory    MemoryConfig    `yaml:"memory" env:"MEMORY"`
	Qdrant    QdrantConfig    `yaml:"qdrant" env:"QDRANT"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`
	Search    SearchConfig    `yaml:"search" env:"SEARCH"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort    int `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读写超时作用于劫持后的 websocket 连接，默认 0
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	TLSCertFile       string        `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile        string        `yaml:"tls_key_file" env:"TLS_KEY_FILE"`

	// 跨域与 websocket Origin 白名单，空表示只允许同源
	CORSAllowedOrigins []string      `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	WSOriginPatterns   []string      `yaml:"ws_origin_patterns" env:"WS_ORIGIN_PATTERNS"`
	WSKeepAlive        time.Duration `yaml:"ws_keep_alive" env:"WS_KEEP_ALIVE"`

	// 认证：APIKeys 与 JWT 任选其一，都为空时不启用
	APIKeys          []string  `yaml:"api_keys" env:"API_KEYS"`
	AllowQueryAPIKey bool      `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	JWT              JWTConfig `yaml:"jwt" env:"JWT"`

	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// JWTConfig JWT 校验配置。PublicKey（PEM）存在时按 RSA 校验，否则用 Secret 做 HMAC。
type JWTConfig struct {
	Secret    string `yaml:"secret" env:"SECRET"`
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	Issuer    string `yaml:"issuer" env:"ISSUER"`
	Audience  string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled 是否配置了 JWT
func (j JWTConfig) Enabled() bool {
	return j.Secret != "" || j.PublicKey != ""
}

// SessionConfig 会话与参与者配置
type SessionConfig struct {
	MaxTurns          int      `yaml:"max_turns" env:"MAX_TURNS"`
	ShortTermCapacity int      `yaml:"short_term_capacity" env:"SHORT_TERM_CAPACITY"`
	GatewayID         string   `yaml:"gateway_id" env:"GATEWAY_ID"`
	SpecialistIDs     []string `yaml:"specialist_ids" env:"SPECIALIST_IDS"`
	ProxyID           string   `yaml:"proxy_id" env:"PROXY_ID"`
	// 0 表示一直等待用户输入
	HumanInputTimeout time.Duration `yaml:"human_input_timeout" env:"HUMAN_INPUT_TIMEOUT"`
	// 长期记忆召回条数，0 关闭
	RecallTopK int          `yaml:"recall_top_k" env:"RECALL_TOP_K"`
	CVHook     CVHookConfig `yaml:"cv_hook" env:"CV_HOOK"`
}

// CVHookConfig ProfilerAgent 首轮 CV 检索配置
type CVHookConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	Query         string `yaml:"query" env:"QUERY"`
	TopK          int    `yaml:"top_k" env:"TOP_K"`
	PreviewChars  int    `yaml:"preview_chars" env:"PREVIEW_CHARS"`
	SessionScoped bool   `yaml:"session_scoped" env:"SESSION_SCOPED"`
}

// MemoryConfig 长期记忆配置
type MemoryConfig struct {
	// memory | qdrant | redis
	Backend      string `yaml:"backend" env:"BACKEND"`
	CoreIndex    string `yaml:"core_index" env:"CORE_INDEX"`
	ProfileIndex string `yaml:"profile_index" env:"PROFILE_INDEX"`
	// 嵌入结果缓存，需要 Redis
	EmbeddingCacheTTL time.Duration `yaml:"embedding_cache_ttl" env:"EMBEDDING_CACHE_TTL"`
}

// QdrantConfig Qdrant 向量存储配置
type QdrantConfig struct {
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	VectorSize int           `yaml:"vector_size" env:"VECTOR_SIZE"`
	Distance   string        `yaml:"distance" env:"DISTANCE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool   `yaml:"enabled" env:"ENABLED"`
	Addr         string `yaml:"addr" env:"ADDR"`
	Password     string `yaml:"password" env:"PASSWORD"`
	DB           int    `yaml:"db" env:"DB"`
	KeyPrefix    string `yaml:"key_prefix" env:"KEY_PREFIX"`
	PoolSize     int    `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	// sqlite 时为文件路径
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// serve 启动时自动执行迁移
	AutoMigrate bool `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// LLMConfig 大模型配置
type LLMConfig struct {
	// openai | azure
	Provider     string        `yaml:"provider" env:"PROVIDER"`
	APIKey       string        `yaml:"api_key" env:"API_KEY"`
	BaseURL      string        `yaml:"base_url" env:"BASE_URL"`
	Organization string        `yaml:"organization" env:"ORGANIZATION"`
	AgentModel   string        `yaml:"agent_model" env:"AGENT_MODEL"`
	ToolModel    string        `yaml:"tool_model" env:"TOOL_MODEL"`
	APIVersion   string        `yaml:"api_version" env:"API_VERSION"`
	Temperature  float64       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens    int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout      time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
}

// EmbeddingConfig 嵌入模型配置。APIKey/BaseURL 为空时沿用 LLM 配置。
type EmbeddingConfig struct {
	Model      string `yaml:"model" env:"MODEL"`
	APIKey     string `yaml:"api_key" env:"API_KEY"`
	BaseURL    string `yaml:"base_url" env:"BASE_URL"`
	Dimensions int    `yaml:"dimensions" env:"DIMENSIONS"`
}

// SearchConfig Brave 搜索配置，APIKey 为空时不注册搜索工具
type SearchConfig struct {
	BraveAPIKey string        `yaml:"brave_api_key" env:"BRAVE_API_KEY"`
	Endpoint    string        `yaml:"endpoint" env:"ENDPOINT"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 结果缓存时长，Redis 启用时生效，0 关闭缓存
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	Insecure     bool    `yaml:"insecure" env:"INSECURE"`
	// Environment 写入 deployment.environment 资源属性
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	// MetricInterval 指标导出周期
	MetricInterval time.Duration `yaml:"metric_interval" env:"METRIC_INTERVAL"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// EnvPrefix 环境变量前缀
const EnvPrefix = "CAREERFLOW"

// Loader 按 Builder 方式组装加载流程.
type Loader struct {
	configPath string
	envPrefix  string
	lookup     func(string) (string, bool)
	validators []func(*Config) error
}

func NewLoader() *Loader {
	return &Loader{envPrefix: EnvPrefix, lookup: os.LookupEnv}
}

// WithConfigPath 设置 YAML 路径. 文件不存在时只用默认值与环境变量.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 追加自定义校验，在 Load 末尾按注册顺序执行.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.applyFile(cfg); err != nil {
			return nil, fmt.Errorf("config file %s: %w", l.configPath, err)
		}
	}
	if err := applyEnv(cfg, l.envPrefix, l.lookup); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) applyFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(expandVars(data, l.lookup)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse: %w", err)
	}
	return nil
}

var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandVars 只展开 ${NAME} 形式，裸 $ 原样保留（密码里常见）.
func expandVars(data []byte, lookup func(string) (string, bool)) []byte {
	return varPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := varPattern.FindSubmatch(m)
		if v, ok := lookup(string(sub[1])); ok && v != "" {
			return []byte(v)
		}
		return sub[2]
	})
}

// MustLoad 加载配置，失败时 panic. 只用于测试与脚本.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 不读文件，只叠加环境变量.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}
