package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置
type Config struct {
	ServiceURL string `mapstructure:"service_url"` // 后端服务地址（必填）
	APIKey     string `mapstructure:"api_key"`     // 后端公钥（必填）

	Server struct {
		Addr      string  `mapstructure:"addr"`
		Mode      string  `mapstructure:"mode"`       // debug / release
		RateLimit float64 `mapstructure:"rate_limit"` // 每 IP 每秒请求数
		RateBurst int     `mapstructure:"rate_burst"`
	} `mapstructure:"server"`

	Database struct {
		Driver string `mapstructure:"driver"` // postgres / sqlite
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Auth struct {
		JWTSecret string        `mapstructure:"jwt_secret"`
		TokenTTL  time.Duration `mapstructure:"token_ttl"`
	} `mapstructure:"auth"`

	Sync struct {
		CallTimeout    time.Duration `mapstructure:"call_timeout"`    // 单次外呼超时
		PageSize       int           `mapstructure:"page_size"`       // 分页默认大小
		GuardCacheTTL  time.Duration `mapstructure:"guard_cache_ttl"` // 关系集合缓存 TTL
		FanoutWorkers  int           `mapstructure:"fanout_workers"`
		FanoutQueueLen int           `mapstructure:"fanout_queue_len"`
	} `mapstructure:"sync"`

	Log struct {
		Level     string `mapstructure:"level"`
		SentryDSN string `mapstructure:"sentry_dsn"`
	} `mapstructure:"log"`

	Trace struct {
		Endpoint string `mapstructure:"endpoint"` // OTLP HTTP collector，空则关闭
	} `mapstructure:"trace"`
}

// Load 读取配置：环境变量优先，其次 config.yaml。
// SERVICE_URL / API_KEY 缺失视为启动致命错误。
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("ESFERA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.rate_limit", 50)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("sync.call_timeout", 12*time.Second)
	v.SetDefault("sync.page_size", 10)
	v.SetDefault("sync.guard_cache_ttl", 10*time.Minute)
	v.SetDefault("sync.fanout_workers", 4)
	v.SetDefault("sync.fanout_queue_len", 10000)
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		// 配置文件可选，读不到时只依赖环境变量
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.ServiceURL == "" {
		return nil, fmt.Errorf("missing required config: service_url (ESFERA_SERVICE_URL)")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing required config: api_key (ESFERA_API_KEY)")
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = cfg.APIKey
	}
	return &cfg, nil
}
