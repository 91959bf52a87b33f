package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Render   RenderConfig   `mapstructure:"render"`
	Intake   IntakeConfig   `mapstructure:"intake"`
	Job      JobConfig      `mapstructure:"job"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	BaseURL   string          `mapstructure:"base_url"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RateLimitConfig 入站限流：每个 key 在 Window 内最多 Limit 次
type RateLimitConfig struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// TelegramConfig Bot API 配置
type TelegramConfig struct {
	Token         string        `mapstructure:"token"`
	APIBase       string        `mapstructure:"api_base"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// CatalogConfig NUSMods 课程目录配置
type CatalogConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	AcadYear   string        `mapstructure:"acad_year"`
	Semester   int           `mapstructure:"semester"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	RateLimit  float64       `mapstructure:"rate_limit"` // 每秒外呼次数上限
	RateBurst  int           `mapstructure:"rate_burst"`
	RedisCache bool          `mapstructure:"redis_cache"` // 启用 Redis 二级缓存
	Timezone   string        `mapstructure:"timezone"`    // 课表所在时区，空闲查询按此取当前时刻
}

// Location 课表时区
func (c *CatalogConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// ShareBase NUSMods 分享链接前缀（特别学期使用 st-i / st-ii）
func (c *CatalogConfig) ShareBase() string {
	sem := fmt.Sprintf("sem-%d", c.Semester)
	switch c.Semester {
	case 3:
		sem = "st-i"
	case 4:
		sem = "st-ii"
	}
	return "https://nusmods.com/timetable/" + sem + "/share"
}

// DatabaseConfig 数据库配置：postgres 或 sqlite
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"` // sqlite 文件路径
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 分钟
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置；Addr 为空时不启用
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled 是否配置了 Redis
func (c *RedisConfig) Enabled() bool { return c.Addr != "" }

// AuthConfig REST API 的 JWT 配置
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RenderConfig 课表图片配置
type RenderConfig struct {
	CellWidth  int `mapstructure:"cell_width"`
	CellHeight int `mapstructure:"cell_height"`
	StartHour  int `mapstructure:"start_hour"`
	EndHour    int `mapstructure:"end_hour"`
}

// IntakeConfig 录入会话配置
type IntakeConfig struct {
	DraftTTL time.Duration `mapstructure:"draft_ttl"`
}

// JobConfig 定时任务配置；WarmSpec 为空时不启用
type JobConfig struct {
	WarmSpec string `mapstructure:"warm_spec"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.cors.allow_origins", []string{"*"})
	v.SetDefault("server.rate_limit.limit", 60)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "15s")

	v.SetDefault("catalog.base_url", "https://api.nusmods.com/v2")
	v.SetDefault("catalog.acad_year", "2024-2025")
	v.SetDefault("catalog.semester", 1)
	v.SetDefault("catalog.timeout", "10s")
	v.SetDefault("catalog.cache_ttl", "6h")
	v.SetDefault("catalog.rate_limit", 5.0)
	v.SetDefault("catalog.rate_burst", 5)
	v.SetDefault("catalog.redis_cache", true)
	v.SetDefault("catalog.timezone", "Asia/Singapore")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.path", "freenow.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "freenow")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Asia/Singapore")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", 60)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.token_ttl", "720h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("render.cell_width", 60)
	v.SetDefault("render.cell_height", 12)
	v.SetDefault("render.start_hour", 8)
	v.SetDefault("render.end_hour", 23)

	v.SetDefault("intake.draft_ttl", "15m")

	v.SetDefault("job.warm_spec", "0 0 4 * * *")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("FREENOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("配置校验失败: db.driver 仅支持 postgres 或 sqlite，当前为 %q", c.Database.Driver)
	}
	if c.Catalog.AcadYear == "" {
		return fmt.Errorf("配置校验失败: catalog.acad_year 不能为空")
	}
	if c.Catalog.Semester < 1 || c.Catalog.Semester > 4 {
		return fmt.Errorf("配置校验失败: catalog.semester 必须在 1-4 之间")
	}
	if c.Catalog.Timeout <= 0 {
		return fmt.Errorf("配置校验失败: catalog.timeout 必须大于 0")
	}
	if _, err := c.Catalog.Location(); err != nil {
		return fmt.Errorf("配置校验失败: catalog.timezone 无效: %w", err)
	}
	if c.Render.StartHour < 0 || c.Render.EndHour > 24 || c.Render.StartHour >= c.Render.EndHour {
		return fmt.Errorf("配置校验失败: render.start_hour 必须小于 render.end_hour")
	}
	return nil
}
