package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Acquirers AcquirerConfig  `mapstructure:"acquirers"`
	Webhooks  WebhookConfig   `mapstructure:"webhooks"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Tenants   []TenantConfig  `mapstructure:"tenants"`
}

type ServerConfig struct {
	Port     string `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

type AuthConfig struct {
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	DSN                       string `mapstructure:"dsn"`
	IdempotencyRetentionHours int    `mapstructure:"idempotency_retention_hours"`
	AuditRetentionDays        int    `mapstructure:"audit_retention_days"`
}

type RedisConfig struct {
	Addr                  string `mapstructure:"addr"`
	Password              string `mapstructure:"password"`
	DB                    int    `mapstructure:"db"`
	IdempotencyTTLSeconds int    `mapstructure:"idempotency_ttl_seconds"`
	AuditListKey          string `mapstructure:"audit_list_key"`
	AuditListMax          int    `mapstructure:"audit_list_max"`
}

type RateLimitConfig struct {
	MaxRequests int `mapstructure:"max_requests"`
	WindowMs    int `mapstructure:"window_ms"`
}

type AcquirerConfig struct {
	DefaultAdapter string            `mapstructure:"default_adapter"`
	Candidates     []string          `mapstructure:"candidates"`
	Strategy       string            `mapstructure:"strategy"`
	TimeoutMs      int               `mapstructure:"timeout_ms"`
	RestBridge     RestBridgeConfig  `mapstructure:"rest_bridge"`
	Metadata       map[string]string `mapstructure:"metadata"`
}

type RestBridgeConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type WebhookConfig struct {
	MaxAttempts     int     `mapstructure:"max_attempts"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	BatchSize       int     `mapstructure:"batch_size"`
	ToleranceSecs   int     `mapstructure:"tolerance_seconds"`
	SendRatePerSec  float64 `mapstructure:"send_rate_per_sec"`
	SendBurst       int     `mapstructure:"send_burst"`
	MaxResponseBody int     `mapstructure:"max_response_body"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// TenantConfig seeds development tenants when no database is configured. The
// secret key is hashed at load time; only its hash stays in memory.
type TenantConfig struct {
	ID             string                `mapstructure:"id"`
	Name           string                `mapstructure:"name"`
	PublishableKey string                `mapstructure:"publishable_key"`
	SecretKey      string                `mapstructure:"secret_key"`
	WebhookSecret  string                `mapstructure:"webhook_secret"`
	Routing        TenantRoutingConfig   `mapstructure:"routing"`
	RateLimit      TenantRateLimitConfig `mapstructure:"rate_limit"`
}

type TenantRoutingConfig struct {
	DefaultAdapter string   `mapstructure:"default_adapter"`
	Candidates     []string `mapstructure:"candidates"`
	Strategy       string   `mapstructure:"strategy"`
}

type TenantRateLimitConfig struct {
	MaxRequests int `mapstructure:"max_requests"`
	WindowMs    int `mapstructure:"window_ms"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")

	// Environment variables support, e.g. PAGORA_DATABASE_DSN
	viper.SetEnvPrefix("pagora")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("auth.admin_key", "")
	viper.SetDefault("database.idempotency_retention_hours", 24)
	viper.SetDefault("database.audit_retention_days", 30)
	viper.SetDefault("redis.idempotency_ttl_seconds", 86400)
	viper.SetDefault("redis.audit_list_key", "audit_logs")
	viper.SetDefault("redis.audit_list_max", 10000)
	viper.SetDefault("rate_limit.max_requests", 60)
	viper.SetDefault("rate_limit.window_ms", 60000)
	viper.SetDefault("acquirers.default_adapter", "simbank")
	viper.SetDefault("acquirers.candidates", []string{"simbank"})
	viper.SetDefault("acquirers.strategy", "manual")
	viper.SetDefault("acquirers.timeout_ms", 15000)
	viper.SetDefault("webhooks.max_attempts", 3)
	viper.SetDefault("webhooks.timeout_seconds", 10)
	viper.SetDefault("webhooks.batch_size", 50)
	viper.SetDefault("webhooks.tolerance_seconds", 300)
	viper.SetDefault("webhooks.send_rate_per_sec", 25)
	viper.SetDefault("webhooks.send_burst", 5)
	viper.SetDefault("webhooks.max_response_body", 1000)
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found, using defaults and env vars")
		} else {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
