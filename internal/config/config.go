package config

import (
	"errors"
	"time"

	"github.com/marketa/catalog/pkg/config"
	"github.com/marketa/catalog/pkg/database"
	"github.com/marketa/catalog/pkg/tracing"
)

// Config holds the complete catalog service configuration, loaded from
// environment variables.
type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"catalog-api"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	HTTP      HTTPConfig      `envPrefix:"HTTP_"`
	Log       LogConfig       `envPrefix:"LOG_"`
	Postgres  PostgresConfig  `envPrefix:"POSTGRES_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_"`
	JWT       JWTConfig       `envPrefix:"JWT_"`
	AssetHost AssetHostConfig `envPrefix:"ASSET_HOST_"`
	Tracing   TracingConfig   `envPrefix:"TRACING_"`
	CORS      CORSConfig      `envPrefix:"CORS_"`
}

// HTTPConfig holds the HTTP server settings.
type HTTPConfig struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" envDefault:"33554432"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`
}

// PostgresConfig holds database settings.
type PostgresConfig struct {
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            int           `env:"PORT" envDefault:"5432"`
	User            string        `env:"USER" envDefault:"catalog"`
	Password        string        `env:"PASSWORD" envDefault:"catalog"`
	DBName          string        `env:"DB" envDefault:"catalog"`
	SSLMode         string        `env:"SSL_MODE" envDefault:"disable"`
	MaxConns        int32         `env:"MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"MIN_CONNS" envDefault:"2"`
	MaxConnLifetime time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"30m"`
	Migrate         bool          `env:"MIGRATE" envDefault:"true"`
}

// RedisConfig holds cache settings. The cache is optional; when disabled all
// reads go straight to Postgres.
type RedisConfig struct {
	Enabled  bool          `env:"ENABLED" envDefault:"false"`
	Host     string        `env:"HOST" envDefault:"localhost"`
	Port     int           `env:"PORT" envDefault:"6379"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	TTL      time.Duration `env:"TTL" envDefault:"5m"`
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envDefault:"localhost:9092" envSeparator:","`
}

// JWTConfig holds token issuing settings.
type JWTConfig struct {
	Secret        string        `env:"SECRET" envDefault:"dev-secret-change-me"`
	AccessExpiry  time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry time.Duration `env:"REFRESH_EXPIRY" envDefault:"168h"`
}

// AssetHostConfig holds the external image host settings. When BaseURL is
// empty an in-memory store is used, which only makes sense for local runs.
type AssetHostConfig struct {
	BaseURL string        `env:"BASE_URL"`
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool    `env:"ENABLED" envDefault:"false"`
	OTLPEndpoint string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	SampleRate   float64 `env:"SAMPLE_RATE" envDefault:"1.0"`
}

// CORSConfig holds allowed origins for browser clients.
type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Environment == "production" && c.JWT.Secret == "dev-secret-change-me" {
		return errors.New("JWT_SECRET must be set in production")
	}
	if c.Environment == "production" && c.AssetHost.BaseURL == "" {
		return errors.New("ASSET_HOST_BASE_URL must be set in production")
	}
	return nil
}

// PostgresPoolConfig converts to the database package's connection config.
func (c *Config) PostgresPoolConfig() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.Postgres.Host,
		Port:            c.Postgres.Port,
		User:            c.Postgres.User,
		Password:        c.Postgres.Password,
		DBName:          c.Postgres.DBName,
		SSLMode:         c.Postgres.SSLMode,
		MaxConns:        c.Postgres.MaxConns,
		MinConns:        c.Postgres.MinConns,
		MaxConnLifetime: c.Postgres.MaxConnLifetime,
		MaxConnIdleTime: c.Postgres.MaxConnIdleTime,
	}
}

// RedisClientConfig converts to the database package's Redis config.
func (c *Config) RedisClientConfig() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.Redis.Host,
		Port:     c.Redis.Port,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// TracerConfig converts to the tracing package's config.
func (c *Config) TracerConfig() tracing.Config {
	return tracing.Config{
		ServiceName:    c.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    c.Environment,
		OTLPEndpoint:   c.Tracing.OTLPEndpoint,
		SampleRate:     c.Tracing.SampleRate,
		Enabled:        c.Tracing.Enabled,
	}
}
