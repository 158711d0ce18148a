// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Notification drivers.
const (
	NotifyLog   = "log"
	NotifyRedis = "redis"
	NotifyKafka = "kafka"
)

// Config is the full service configuration.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	Env       string `env:"APP_ENV" envDefault:"local"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	HTTP      HTTPConfig
	Database  DatabaseConfig
	Admission AdmissionConfig
	Notify    NotifyConfig
	Worker    WorkerConfig
}

// HTTPConfig tunes the HTTP surface.
type HTTPConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	TokenRateRPS   float64  `env:"TOKEN_RATE_RPS" envDefault:"5"`
	TokenRateBurst int      `env:"TOKEN_RATE_BURST" envDefault:"10"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
	Name     string `env:"DB_NAME" envDefault:"eventadmission"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	Migrate  bool   `env:"DB_MIGRATE" envDefault:"true"`
}

// DSN returns DATABASE_URL when set, otherwise a libpq keyword string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// AdmissionConfig tunes the admission core.
type AdmissionConfig struct {
	MaxAttempts   int           `env:"ADMISSION_MAX_ATTEMPTS" envDefault:"5"`
	RetryBase     time.Duration `env:"ADMISSION_RETRY_BASE" envDefault:"25ms"`
	InvitationTTL time.Duration `env:"INVITATION_TTL" envDefault:"168h"`
	// OfferTTL bounds how long a waitlist offer stays open; 0 disables.
	OfferTTL      time.Duration `env:"WAITLIST_OFFER_TTL" envDefault:"48h"`
}

// NotifyConfig selects and configures the notification sender.
type NotifyConfig struct {
	Driver        string   `env:"NOTIFY_DRIVER" envDefault:"log"`
	RedisAddr     string   `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string   `env:"REDIS_PASSWORD"`
	RedisDB       int      `env:"REDIS_DB" envDefault:"0"`
	RedisKey      string   `env:"REDIS_NOTIFY_KEY" envDefault:"event_admission:notifications"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaTopic    string   `env:"KAFKA_TOPIC" envDefault:"event-admission-notifications"`
}

// WorkerConfig configures the promoter and sweeper.
type WorkerConfig struct {
	PromotionQueueSize   int           `env:"PROMOTION_QUEUE_SIZE" envDefault:"256"`
	PromotionMaxAttempts int           `env:"PROMOTION_MAX_ATTEMPTS" envDefault:"5"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SweepBatch           int           `env:"SWEEP_BATCH" envDefault:"100"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Port == "":
		return fmt.Errorf("PORT is required")
	case c.Database.MaxConns <= 0:
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	case c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns:
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS")
	case c.Admission.MaxAttempts <= 0:
		return fmt.Errorf("ADMISSION_MAX_ATTEMPTS must be positive")
	case c.Admission.InvitationTTL <= 0:
		return fmt.Errorf("INVITATION_TTL must be positive")
	case c.Admission.OfferTTL < 0:
		return fmt.Errorf("WAITLIST_OFFER_TTL must not be negative")
	case c.Worker.PromotionQueueSize <= 0:
		return fmt.Errorf("PROMOTION_QUEUE_SIZE must be positive")
	case c.Worker.PromotionMaxAttempts <= 0:
		return fmt.Errorf("PROMOTION_MAX_ATTEMPTS must be positive")
	case c.Worker.SweepInterval <= 0:
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	case c.Worker.SweepBatch <= 0:
		return fmt.Errorf("SWEEP_BATCH must be positive")
	case c.HTTP.TokenRateRPS <= 0 || c.HTTP.TokenRateBurst <= 0:
		return fmt.Errorf("TOKEN_RATE_RPS and TOKEN_RATE_BURST must be positive")
	}
	switch c.Notify.Driver {
	case NotifyLog, NotifyRedis, NotifyKafka:
	default:
		return fmt.Errorf("NOTIFY_DRIVER %q is not one of log, redis, kafka", c.Notify.Driver)
	}
	return nil
}
