package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
	// SiteDomain 站点域名，用于构造 no-reply 发件地址
	SiteDomain string
}

// FormConfig 定义联系表单的业务配置（配置文件层面的默认值，
// 可被数据库中的站点配置覆盖）
type FormConfig struct {
	AdminEmail    string // 站点管理员邮箱，收件人缺省值
	RateLimit     int    // 单 IP 每窗口允许的提交次数
	RateWindow    time.Duration
	NonceLifetime time.Duration // 提交令牌有效期
}

// SMTPConfig 定义外发邮件的 SMTP 传输配置
type SMTPConfig struct {
	Host     string // SMTP 服务器地址
	Port     int    // SMTP 端口，默认 587
	Username string // SASL 用户名，留空表示匿名
	Password string
	// TemplatePath 邮件模板覆盖路径，留空时走内置模板解析顺序
	TemplatePath string
	// TemplateDir 主题级模板目录（次优先级覆盖）
	TemplateDir string
}

// AdminConfig 定义管理接口配置
type AdminConfig struct {
	APIToken string // 管理接口 Bearer 令牌
	// ExportEnabled CSV 导出授权开关（外部授权标记）
	ExportEnabled bool
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	LogFile     string // 日志文件路径，留空仅输出到 stdout
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，格式 "host:port"
	Password string
	DB       int
}

// NonceConfig 定义 CSRF 风格令牌的签名配置
type NonceConfig struct {
	Secret string // HMAC 签名密钥，生产环境必须至少 32 字符
	Issuer string // 令牌签发者标识
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server   ServerConfig
	Form     FormConfig
	SMTP     SMTPConfig
	Admin    AdminConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Nonce    NonceConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: ZONTACT_
// 例如: ZONTACT_SERVER_HOST, ZONTACT_NONCE_SECRET
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，.env 是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("zontact")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.site_domain", "localhost")
	viper.SetDefault("form.admin_email", "")
	viper.SetDefault("form.rate_limit", 10)
	viper.SetDefault("form.rate_window", "1m")
	viper.SetDefault("form.nonce_lifetime", "1h")
	viper.SetDefault("smtp.host", "localhost")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.template_path", "")
	viper.SetDefault("smtp.template_dir", "templates")
	viper.SetDefault("admin.api_token", "")
	viper.SetDefault("admin.export_enabled", false)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.log_file", "")
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("nonce.secret", "change-me-in-production")
	viper.SetDefault("nonce.issuer", "zontact")

	rateWindow, err := time.ParseDuration(viper.GetString("form.rate_window"))
	if err != nil {
		rateWindow = time.Minute
	}

	nonceLifetime, err := time.ParseDuration(viper.GetString("form.nonce_lifetime"))
	if err != nil {
		nonceLifetime = time.Hour
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	development := viper.GetBool("log.development")

	nonceSecret := viper.GetString("nonce.secret")

	// 安全检查：生产环境禁止使用默认签名密钥
	if !development {
		if nonceSecret == "change-me-in-production" {
			return nil, fmt.Errorf("SECURITY ERROR: nonce secret cannot be the default value, set ZONTACT_NONCE_SECRET")
		}
		if len(nonceSecret) < 32 {
			return nil, fmt.Errorf("SECURITY ERROR: nonce secret must be at least 32 characters long")
		}
	}

	rateLimit := viper.GetInt("form.rate_limit")
	if rateLimit <= 0 {
		rateLimit = 10
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:       viper.GetString("server.host"),
			Port:       viper.GetInt("server.port"),
			SiteDomain: viper.GetString("server.site_domain"),
		},
		Form: FormConfig{
			AdminEmail:    viper.GetString("form.admin_email"),
			RateLimit:     rateLimit,
			RateWindow:    rateWindow,
			NonceLifetime: nonceLifetime,
		},
		SMTP: SMTPConfig{
			Host:         viper.GetString("smtp.host"),
			Port:         viper.GetInt("smtp.port"),
			Username:     viper.GetString("smtp.username"),
			Password:     viper.GetString("smtp.password"),
			TemplatePath: viper.GetString("smtp.template_path"),
			TemplateDir:  viper.GetString("smtp.template_dir"),
		},
		Admin: AdminConfig{
			APIToken:      viper.GetString("admin.api_token"),
			ExportEnabled: viper.GetBool("admin.export_enabled"),
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: development,
			LogFile:     viper.GetString("log.log_file"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Nonce: NonceConfig{
			Secret: nonceSecret,
			Issuer: viper.GetString("nonce.issuer"),
		},
	}

	return cfg, nil
}

// parseList 将逗号分隔的字符串解析为字符串切片
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载当前目录或父目录的 .env 文件。
// 已存在的环境变量不会被覆盖。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
