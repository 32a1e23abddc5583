package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/careerflow/internal/tlsutil"
)

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// Manager 持有 CareerFlow 共用的 Redis 客户端. 所有键都带 KeyPrefix.
// Close 之后的操作一律返回 ErrClosed.
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`

	// 多个部署共用一个 Redis 时靠前缀隔离
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	DefaultTTL   time.Duration `yaml:"default_ttl" json:"default_ttl"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	DialTimeout  time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		KeyPrefix:    "careerflow:",
		DefaultTTL:   10 * time.Minute,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
	}
}

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrClosed    = errors.New("cache manager is closed")
)

func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// NewManager 连接 Redis 并 PING 一次，失败时不返回半初始化的 Manager.
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	opts := &redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
	}
	if config.TLSEnabled {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", config.Addr, err)
	}

	logger = logger.With(zap.String("component", "cache"))
	logger.Info("redis connected",
		zap.String("addr", config.Addr),
		zap.String("key_prefix", config.KeyPrefix),
		zap.Int("pool_size", config.PoolSize),
		zap.Bool("tls", config.TLSEnabled))
	return &Manager{redis: client, config: config, logger: logger}, nil
}

// Client 给需要完整命令集的组件（Redis 向量存储）使用，调用方自行加 Key 前缀.
func (m *Manager) Client() *redis.Client { return m.redis }

func (m *Manager) Key(key string) string { return m.config.KeyPrefix + key }

// run 在读锁下执行 fn，统一处理关闭状态与错误包装. redis.Nil 交给调用方判断.
func (m *Manager) run(op string, fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	err := fn()
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	m.logger.Warn("redis command failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("cache %s: %w", op, err)
}

// =============================================================================
// 🎯 键值
// =============================================================================

func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := m.run("get", func() (err error) {
		val, err = m.redis.Get(ctx, m.Key(key)).Result()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// Set 的 ttl 为 0 时使用 DefaultTTL.
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	return m.run("set", func() error {
		return m.redis.Set(ctx, m.Key(key), value, ttl).Err()
	})
}

func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("decode cached %s: %w", key, err)
	}
	return nil
}

func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return m.run("del", func() error {
		return m.redis.Del(ctx, m.keys(keys)...).Err()
	})
}

// =============================================================================
// 📚 集合（活跃会话索引）
// =============================================================================

func (m *Manager) AddMembers(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return m.run("sadd", func() error {
		return m.redis.SAdd(ctx, m.Key(key), toAny(members)...).Err()
	})
}

func (m *Manager) RemoveMembers(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return m.run("srem", func() error {
		return m.redis.SRem(ctx, m.Key(key), toAny(members)...).Err()
	})
}

func (m *Manager) Members(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := m.run("smembers", func() (err error) {
		out, err = m.redis.SMembers(ctx, m.Key(key)).Result()
		return err
	})
	return out, err
}

// =============================================================================
// 🏥 生命周期
// =============================================================================

// Ping 注册为 /ready 的 redis 检查.
func (m *Manager) Ping(ctx context.Context) error {
	return m.run("ping", func() error { return m.redis.Ping(ctx).Err() })
}

// PoolStats 在 /metrics 抓取时读取.
func (m *Manager) PoolStats() *redis.PoolStats {
	return m.redis.PoolStats()
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing redis client")
	return m.redis.Close()
}

func (m *Manager) keys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = m.Key(k)
	}
	return out
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
