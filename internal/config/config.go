package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Letters   LettersConfig   `mapstructure:"letters"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Reset     ResetConfig     `mapstructure:"password_reset"`
	LogLevel  string          `mapstructure:"log_level"`
}

type ServerConfig struct {
	Port           int   `mapstructure:"port"`
	TimeoutSeconds int   `mapstructure:"timeoutSeconds"`
	MaxUploadBytes int64 `mapstructure:"maxUploadBytes"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"maxOpenConns"`
	MaxIdleConns int    `mapstructure:"maxIdleConns"`
	Migrate      bool   `mapstructure:"migrate"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LettersConfig struct {
	DedupeCC            bool     `mapstructure:"dedupe_cc"`
	ReplyOnReject       bool     `mapstructure:"reply_on_reject"`
	AllowedContentTypes []string `mapstructure:"allowed_content_types"`
	MaxAttachmentBytes  int64    `mapstructure:"max_attachment_bytes"`
}

type ResolverConfig struct {
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type WorkerConfig struct {
	ReminderInterval          time.Duration `mapstructure:"reminder_interval"`
	PendingReminderAge        time.Duration `mapstructure:"pending_reminder_age"`
	NotificationRetentionDays int           `mapstructure:"notification_retention_days"`
	CleanupInterval           time.Duration `mapstructure:"cleanup_interval"`
	HealthPort                int           `mapstructure:"health_port"`
}

// ResetConfig drives the forgot-password flow. URL gets the token appended
// as its last path segment.
type ResetConfig struct {
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	URL       string        `mapstructure:"url"`
	FromName  string        `mapstructure:"from_name"`
	FromEmail string        `mapstructure:"from_email"`
}

// secretOverrides are read straight from the environment after the YAML is
// applied, so credentials never have to live in config files.
type secretOverrides struct {
	DBPassword   string `envconfig:"DB_PASSWORD"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPUsername string `envconfig:"SMTP_USERNAME"`
	JWTSecret    string `envconfig:"JWT_SECRET"`
	RedisURL     string `envconfig:"REDIS_URL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeoutSeconds", 30)
	v.SetDefault("server.maxUploadBytes", 6<<20)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.migrate", true)
	v.SetDefault("jwt.expiry_hours", 24)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("letters.allowed_content_types", []string{
		"application/pdf",
		"image/jpeg",
		"image/png",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	})
	v.SetDefault("letters.max_attachment_bytes", 5<<20)
	v.SetDefault("resolver.cache_ttl", 5*time.Minute)
	v.SetDefault("resolver.cleanup_interval", 10*time.Minute)
	v.SetDefault("rate_limit.rps", 20)
	v.SetDefault("rate_limit.burst", 40)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("worker.reminder_interval", time.Hour)
	v.SetDefault("worker.pending_reminder_age", 24*time.Hour)
	v.SetDefault("worker.notification_retention_days", 90)
	v.SetDefault("worker.cleanup_interval", 6*time.Hour)
	v.SetDefault("worker.health_port", 8081)
	v.SetDefault("password_reset.token_ttl", time.Hour)
	v.SetDefault("password_reset.url", "http://localhost:3000/reset-password")
	v.SetDefault("password_reset.from_name", "Letter Management System")
	v.SetDefault("password_reset.from_email", "no-reply@localhost")
	v.SetDefault("log_level", "info")
}

func LoadConfig() (*Config, error) {
	// .env is optional; a missing file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app/config")

	v.SetEnvPrefix("LETTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applySecretOverrides(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func applySecretOverrides(cfg *Config) error {
	var secrets secretOverrides
	if err := envconfig.Process("LETTER", &secrets); err != nil {
		return fmt.Errorf("failed to read secret overrides: %w", err)
	}
	if secrets.DBPassword != "" {
		cfg.Database.Password = secrets.DBPassword
	}
	if secrets.SMTPUsername != "" {
		cfg.SMTP.Username = secrets.SMTPUsername
	}
	if secrets.SMTPPassword != "" {
		cfg.SMTP.Password = secrets.SMTPPassword
	}
	if secrets.JWTSecret != "" {
		cfg.JWT.Secret = secrets.JWTSecret
	}
	if secrets.RedisURL != "" {
		cfg.Redis.URL = secrets.RedisURL
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if c.Database.Port <= 0 {
		return fmt.Errorf("database.port must be positive")
	}
	switch c.Database.SSLMode {
	case "disable", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("database.sslmode %q is not supported", c.Database.SSLMode)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.SMTP.Enabled && c.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required when smtp is enabled")
	}
	if c.Reset.TokenTTL < 0 {
		return fmt.Errorf("password_reset.token_ttl must not be negative")
	}
	return nil
}

// Timeout returns the per-request timeout.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}
