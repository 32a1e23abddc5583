package migration

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	appconfig "github.com/BaSui01/careerflow/config"
)

// Option 调整 NewMigratorFrom* 生成的 Config.
type Option func(*Config)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithTable 覆盖版本表名，默认 schema_migrations.
func WithTable(name string) Option {
	return func(c *Config) { c.TableName = name }
}

func build(dbType string, cfg Config, opts []Option) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	cfg.DatabaseType = dt
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewMigrator(&cfg)
}

// NewMigratorFromDatabaseConfig 用应用数据库配置单独建连，migrate 子命令使用.
func NewMigratorFromDatabaseConfig(dbCfg appconfig.DatabaseConfig, opts ...Option) (*DefaultMigrator, error) {
	dbURL, err := URLFor(dbCfg)
	if err != nil {
		return nil, err
	}
	return build(dbCfg.Driver, Config{DatabaseURL: dbURL}, opts)
}

func NewMigratorFromURL(dbType, dbURL string, opts ...Option) (*DefaultMigrator, error) {
	return build(dbType, Config{DatabaseURL: dbURL}, opts)
}

// NewMigratorFromDB 复用 serve 已打开的连接池，Close 不会关闭 db.
func NewMigratorFromDB(dbType string, db *sql.DB, opts ...Option) (*DefaultMigrator, error) {
	return build(dbType, Config{DB: db}, opts)
}

// URLFor 生成迁移专用连接串. 与 gorm 的 DSN 不同，mysql 需要 multiStatements，
// sqlite 需要打开外键并设置忙等待.
func URLFor(d appconfig.DatabaseConfig) (string, error) {
	dt, err := ParseDatabaseType(d.Driver)
	if err != nil {
		return "", err
	}
	addr := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))

	switch dt {
	case DatabaseTypePostgres:
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     addr,
			Path:     "/" + d.Name,
			RawQuery: url.Values{"sslmode": {sslMode}}.Encode(),
		}
		return u.String(), nil

	case DatabaseTypeMySQL:
		c := mysqldriver.NewConfig()
		c.User, c.Passwd = d.User, d.Password
		c.Net, c.Addr = "tcp", addr
		c.DBName = d.Name
		c.ParseTime = true
		c.MultiStatements = true
		return c.FormatDSN(), nil

	case DatabaseTypeSQLite:
		if d.Name == "" {
			return "", fmt.Errorf("sqlite database path is required")
		}
		return "file:" + d.Name + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
	}
	return "", fmt.Errorf("unsupported database type: %s", dt)
}
