package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	API         APIConfig         `mapstructure:"api"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Permissions PermissionsConfig `mapstructure:"permissions"`
	Log         LogConfig         `mapstructure:"log"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

// ServerConfig 门户服务配置
type ServerConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
}

// HTTPConfig HTTP服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`
	WriteTimeout int    `mapstructure:"writeTimeout"`
}

// Addr 监听地址
func (c *HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// APIConfig 后端REST接口配置
type APIConfig struct {
	BaseURL             string `mapstructure:"baseURL"`       // 显式指定时优先
	LocalBaseURL        string `mapstructure:"localBaseURL"`  // 本地开发后端
	RemoteBaseURL       string `mapstructure:"remoteBaseURL"` // 线上后端
	Timeout             int    `mapstructure:"timeout"`       // 秒
	UnauthorizedKeyword string `mapstructure:"unauthorizedKeyword"`
	TokenPath           string `mapstructure:"tokenPath"`
	RefreshPath         string `mapstructure:"refreshPath"`
	RegisterPath        string `mapstructure:"registerPath"`
}

// ResolveBaseURL 根据门户主机名选择后端地址
func (c *APIConfig) ResolveBaseURL(host string) string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	switch strings.ToLower(host) {
	case "", "localhost", "127.0.0.1", "::1":
		return c.LocalBaseURL
	default:
		return c.RemoteBaseURL
	}
}

// RequestTimeout 请求超时时间
func (c *APIConfig) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// AuthConfig 会话认证配置
type AuthConfig struct {
	RefreshInterval  int             `mapstructure:"refreshInterval"` // 秒
	RefreshRetries   int             `mapstructure:"refreshRetries"`
	LoginPath        string          `mapstructure:"loginPath"`
	UnauthorizedPath string          `mapstructure:"unauthorizedPath"`
	DevBypass        DevBypassConfig `mapstructure:"devBypass"`
}

// RefreshEvery 令牌刷新周期
func (c *AuthConfig) RefreshEvery() time.Duration {
	if c.RefreshInterval <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.RefreshInterval) * time.Second
}

// DevBypassConfig 离线开发登录配置，仅在 devbypass 构建标签下生效
type DevBypassConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"passwordHash"` // bcrypt
}

// StorageConfig 令牌存储配置
type StorageConfig struct {
	Driver    string `mapstructure:"driver"` // sqlite, mysql, postgres, redis, memory
	KeyPrefix string `mapstructure:"keyPrefix"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Charset      string `mapstructure:"charset"`
	MaxIdleConns int    `mapstructure:"maxIdleConns"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
	LogLevel     string `mapstructure:"logLevel"`
}

// DSN 生成数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.Username, c.Password, c.Host, c.Port, c.Database, c.Charset)
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.Username, c.Password, c.Database)
	case "sqlite":
		if c.Database == "" {
			return ":memory:"
		}
		return c.Database
	default:
		return ""
	}
}

// RedisConfig Redis配置
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"poolSize"`
	Mode     string `mapstructure:"mode"` // "standalone" 外部 Redis, "memory" 内存模式
}

// Addr 获取Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// PermissionsConfig 角色权限表配置
type PermissionsConfig struct {
	Source string              `mapstructure:"source"` // config 或 database
	Roles  map[string][]string `mapstructure:"roles"`  // 为空时使用内置权限表
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAge     int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// Load 加载配置文件；未指定路径且找不到配置文件时使用默认值
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = v.GetString("app.env")
	}
	if env != "" && env != "default" && v.ConfigFileUsed() != "" {
		v.SetConfigName(fmt.Sprintf("config.%s", env))
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to merge env config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveEnvVars(cfg)
	return cfg, nil
}

// setDefaults 默认配置
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "erpconsole")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "1.0.0")

	v.SetDefault("server.http.host", "127.0.0.1")
	v.SetDefault("server.http.port", 5173)
	v.SetDefault("server.http.readTimeout", 30)
	v.SetDefault("server.http.writeTimeout", 30)

	v.SetDefault("api.localBaseURL", "http://127.0.0.1:8000/api/")
	v.SetDefault("api.remoteBaseURL", "https://unibrainerps.onrender.com/api/")
	v.SetDefault("api.timeout", 30)
	v.SetDefault("api.tokenPath", "token/")
	v.SetDefault("api.refreshPath", "token/refresh/")
	v.SetDefault("api.registerPath", "accounts/register/")

	v.SetDefault("auth.refreshInterval", 600)
	v.SetDefault("auth.refreshRetries", 0)
	v.SetDefault("auth.loginPath", "/login")
	v.SetDefault("auth.unauthorizedPath", "/unauthorized")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.keyPrefix", "erpconsole")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.database", "data/erpconsole.db")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.maxIdleConns", 2)
	v.SetDefault("database.maxOpenConns", 4)
	v.SetDefault("database.logLevel", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.poolSize", 4)
	v.SetDefault("redis.mode", "standalone")

	v.SetDefault("permissions.source", "config")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "console")
	v.SetDefault("log.filename", "logs/erpconsole.log")
	v.SetDefault("log.maxSize", 50)
	v.SetDefault("log.maxBackups", 5)
	v.SetDefault("log.maxAge", 30)
}

// resolveEnvVars 解析环境变量占位符
func resolveEnvVars(cfg *Config) {
	cfg.API.BaseURL = resolveEnvVar(cfg.API.BaseURL)
	cfg.Database.Host = resolveEnvVar(cfg.Database.Host)
	cfg.Database.Username = resolveEnvVar(cfg.Database.Username)
	cfg.Database.Password = resolveEnvVar(cfg.Database.Password)
	cfg.Database.Database = resolveEnvVar(cfg.Database.Database)
	cfg.Redis.Host = resolveEnvVar(cfg.Redis.Host)
	cfg.Redis.Password = resolveEnvVar(cfg.Redis.Password)
	cfg.Auth.DevBypass.PasswordHash = resolveEnvVar(cfg.Auth.DevBypass.PasswordHash)
}

// resolveEnvVar 解析单个环境变量，未设置的占位符视为空
func resolveEnvVar(value string) string {
	if strings.HasPrefix(value, "${") && strings.HasSuffix(value, "}") {
		envKey := strings.TrimSuffix(strings.TrimPrefix(value, "${"), "}")
		return os.Getenv(envKey)
	}
	return value
}

// IsProd 是否为生产环境
func (c *Config) IsProd() bool {
	return c.App.Env == "prod" || c.App.Env == "production"
}
