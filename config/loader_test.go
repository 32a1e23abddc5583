// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 30, cfg.Session.MaxTurns)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
server:
  http_port: 8888
  cors_allowed_origins: ["https://app.example.com"]
  jwt:
    secret: "s3cret"

session:
  max_turns: 12
  specialist_ids: ["ProfilerAgent", "SkillAgent"]
  human_input_timeout: 5m
  cv_hook:
    preview_chars: 200

memory:
  backend: qdrant

qdrant:
  base_url: "http://qdrant:6333"

llm:
  provider: azure
  base_url: "https://res.openai.azure.com"
  agent_model: "gpt-4o-agents"

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.True(t, cfg.Server.JWT.Enabled())

	assert.Equal(t, 12, cfg.Session.MaxTurns)
	assert.Equal(t, []string{"ProfilerAgent", "SkillAgent"}, cfg.Session.SpecialistIDs)
	assert.Equal(t, 5*time.Minute, cfg.Session.HumanInputTimeout)
	assert.Equal(t, 200, cfg.Session.CVHook.PreviewChars)
	// 未出现在 YAML 中的嵌套字段保留默认值
	assert.Equal(t, "resume OR curriculum OR cv", cfg.Session.CVHook.Query)
	assert.Equal(t, "TriageAgent", cfg.Session.GatewayID)

	assert.Equal(t, "qdrant", cfg.Memory.Backend)
	assert.Equal(t, "azure", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-agents", cfg.LLM.AgentModel)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("CAREERFLOW_SERVER_HTTP_PORT", "7777")
	t.Setenv("CAREERFLOW_SERVER_API_KEYS", "k1, k2")
	t.Setenv("CAREERFLOW_SESSION_MAX_TURNS", "8")
	t.Setenv("CAREERFLOW_SESSION_HUMAN_INPUT_TIMEOUT", "90s")
	t.Setenv("CAREERFLOW_SESSION_CV_HOOK_ENABLED", "false")
	t.Setenv("CAREERFLOW_LLM_TEMPERATURE", "0.2")
	t.Setenv("CAREERFLOW_SEARCH_BRAVE_API_KEY", "brave")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)
	assert.Equal(t, 8, cfg.Session.MaxTurns)
	assert.Equal(t, 90*time.Second, cfg.Session.HumanInputTimeout)
	assert.False(t, cfg.Session.CVHook.Enabled)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, "brave", cfg.Search.BraveAPIKey)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
server:
  http_port: 8888
llm:
  agent_model: "yaml-model"
  tool_model: "yaml-tool"
`), 0o644))

	t.Setenv("CAREERFLOW_SERVER_HTTP_PORT", "9999")
	t.Setenv("CAREERFLOW_LLM_AGENT_MODEL", "env-model")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-model", cfg.LLM.AgentModel)
	assert.Equal(t, "yaml-tool", cfg.LLM.ToolModel)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("CAREERFLOW_SESSION_HUMAN_INPUT_TIMEOUT", "soon")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAREERFLOW_SESSION_HUMAN_INPUT_TIMEOUT")
}

func TestLoader_SecretFile(t *testing.T) {
	secret := filepath.Join(t.TempDir(), "openai_key")
	require.NoError(t, os.WriteFile(secret, []byte("sk-from-file\n"), 0o600))
	t.Setenv("CAREERFLOW_LLM_API_KEY_FILE", secret)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", cfg.LLM.APIKey)

	// 直接设置的值优先于文件
	t.Setenv("CAREERFLOW_LLM_API_KEY", "sk-direct")
	cfg, err = NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-direct", cfg.LLM.APIKey)
}

func TestLoader_MissingSecretFile(t *testing.T) {
	t.Setenv("CAREERFLOW_REDIS_PASSWORD_FILE", "/non/existent/secret")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CAREERFLOW_REDIS_PASSWORD_FILE")
}

func TestLoader_ExpandsVarsInYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
search:
  brave_api_key: "${TEST_BRAVE_KEY}"
redis:
  addr: "${TEST_REDIS_ADDR:-cache:6379}"
  password: "pa$$word"
`), 0o644))
	t.Setenv("TEST_BRAVE_KEY", "brave-123")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "brave-123", cfg.Search.BraveAPIKey)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "pa$$word", cfg.Redis.Password)
}

func TestLoader_RejectsUnknownFields(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("session:\n  max_turn: 5\n"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_turn")
}

func TestLoader_EmptyFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(configPath, nil, 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestConfig_ValidateReportsAll(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = -1
	cfg.Session.MaxTurns = 0
	cfg.LLM.Provider = "anthropic"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"invalid HTTP port", "max_turns", "llm provider"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("CAREERFLOW_SERVER_HTTP_PORT", "80")
	_, err := NewLoader().
		WithValidator(func(cfg *Config) error {
			if cfg.Server.HTTPPort < 1024 {
				return assert.AnError
			}
			return nil
		}).
		Load()
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/non/existent/path/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server:\n  http_port: [invalid\n"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }, "invalid HTTP port"},
		{"same ports", func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort }, "metrics port"},
		{"no turns", func(c *Config) { c.Session.MaxTurns = 0 }, "max_turns"},
		{"no specialists", func(c *Config) { c.Session.SpecialistIDs = nil }, "specialist"},
		{"no proxy", func(c *Config) { c.Session.ProxyID = "" }, "proxy"},
		{"unknown backend", func(c *Config) { c.Memory.Backend = "milvus" }, "memory backend"},
		{"qdrant without url", func(c *Config) {
			c.Memory.Backend = "qdrant"
			c.Qdrant.BaseURL = ""
		}, "qdrant.base_url"},
		{"redis backend disabled", func(c *Config) { c.Memory.Backend = "redis" }, "redis must be enabled"},
		{"azure without endpoint", func(c *Config) { c.LLM.Provider = "azure" }, "Azure endpoint"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "anthropic" }, "llm provider"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }, "temperature"},
		{"bad driver", func(c *Config) {
			c.Database.Enabled = true
			c.Database.Driver = "oracle"
		}, "database driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", d.DSN())

	d.Password = "p w'd"
	assert.Equal(t, `host=db port=5432 user=u password='p w\'d' dbname=n sslmode=disable`, d.DSN())

	d.Driver = "mysql"
	d.Port = 3306
	d.Password = "p@ss"
	mc, err := mysqldriver.ParseDSN(d.DSN())
	require.NoError(t, err)
	assert.Equal(t, "u", mc.User)
	assert.Equal(t, "p@ss", mc.Passwd)
	assert.Equal(t, "db:3306", mc.Addr)
	assert.Equal(t, "n", mc.DBName)
	assert.True(t, mc.ParseTime)
	assert.Contains(t, d.DSN(), "charset=utf8mb4")

	d.Driver = "sqlite"
	d.Name = "/var/lib/careerflow.db"
	assert.Equal(t, "/var/lib/careerflow.db", d.DSN())

	d.Driver = "oracle"
	assert.Empty(t, d.DSN())
}

func TestMustLoad(t *testing.T) {
	assert.NotPanics(t, func() { MustLoad("") })

	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("::::"), 0o644))
	assert.Panics(t, func() { MustLoad(configPath) })
}
