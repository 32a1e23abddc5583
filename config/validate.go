package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// =============================================================================
// 🔍 校验
// =============================================================================

// Validate 一次报告全部问题，每条一行.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	s := c.Server
	check(validPort(s.HTTPPort), "invalid HTTP port %d", s.HTTPPort)
	check(s.MetricsPort == 0 || validPort(s.MetricsPort), "invalid metrics port %d", s.MetricsPort)
	check(s.MetricsPort == 0 || s.MetricsPort != s.HTTPPort, "metrics port must differ from HTTP port")

	sess := c.Session
	check(sess.MaxTurns > 0, "session.max_turns must be positive")
	check(sess.ShortTermCapacity >= 0, "session.short_term_capacity must not be negative")
	check(sess.GatewayID != "", "session.gateway_id is required")
	check(sess.ProxyID != "", "session.proxy_id is required")
	check(len(sess.SpecialistIDs) > 0, "at least one specialist is required")

	switch c.Memory.Backend {
	case "memory":
	case "qdrant":
		check(c.Qdrant.BaseURL != "", "qdrant.base_url is required for the qdrant backend")
	case "redis":
		check(c.Redis.Enabled, "redis must be enabled for the redis backend")
	default:
		check(false, "unsupported memory backend %q", c.Memory.Backend)
	}

	switch c.LLM.Provider {
	case "openai":
	case "azure":
		check(c.LLM.BaseURL != "", "llm.base_url (Azure endpoint) is required for azure")
	default:
		check(false, "unsupported llm provider %q", c.LLM.Provider)
	}
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2,
		"llm.temperature must be between 0 and 2, got %g", c.LLM.Temperature)

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			check(false, "unsupported database driver %q", c.Database.Driver)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config validation errors:\n%w", err)
	}
	return nil
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

// =============================================================================
// 🗄️ DSN
// =============================================================================

// DSN 返回 gorm 方言使用的连接串，未知驱动返回空串.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return d.postgresDSN()
	case "mysql":
		cfg := mysqldriver.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.Name
		cfg.ParseTime = true
		cfg.Params = map[string]string{"charset": "utf8mb4"}
		return cfg.FormatDSN()
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

// postgresDSN 生成 libpq keyword/value 格式，空值省略交给驱动默认.
func (d *DatabaseConfig) postgresDSN() string {
	pairs := []struct{ k, v string }{
		{"host", d.Host},
		{"port", strconv.Itoa(d.Port)},
		{"user", d.User},
		{"password", d.Password},
		{"dbname", d.Name},
		{"sslmode", d.SSLMode},
	}
	var b strings.Builder
	for _, p := range pairs {
		if p.v == "" || (p.k == "port" && d.Port == 0) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p.k)
		b.WriteByte('=')
		b.WriteString(quotePG(p.v))
	}
	return b.String()
}

func quotePG(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}
