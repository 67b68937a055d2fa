package config

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Port          string        `env:"PORT" envDefault:"8080"`
	BindAddress   string        `env:"BIND_ADDRESS" envDefault:"localhost"`
	DBHost        string        `env:"DB_HOST" envDefault:"localhost"`
	DBPort        string        `env:"DB_PORT" envDefault:"5432"`
	DBUser        string        `env:"DB_USER" envDefault:"sharedplay"`
	DBPassword    string        `env:"DB_PASSWORD" envDefault:"sharedplay"`
	DBName        string        `env:"DB_NAME" envDefault:"sharedplay"`
	RedisHost     string        `env:"REDIS_HOST"`
	RedisPort     string        `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	SnapshotTTL   time.Duration `env:"SNAPSHOT_TTL" envDefault:"30s"`
	JWTSecret     string        `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	PublicBaseURL string        `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`

	MaxParticipants    int           `env:"MAX_PARTICIPANTS" envDefault:"50"`
	DefaultExpiryHours float64       `env:"DEFAULT_EXPIRY_HOURS" envDefault:"24"`
	PresenceTimeout    time.Duration `env:"PRESENCE_TIMEOUT" envDefault:"0s"`
	ReaperInterval     time.Duration `env:"REAPER_INTERVAL" envDefault:"30s"`

	RateLimitRPS   int           `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int           `env:"RATE_LIMIT_BURST" envDefault:"40"`
	RateLimiterTTL time.Duration `env:"RATE_LIMITER_TTL" envDefault:"30m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	return Parse()
}

// Parse reads the configuration from the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MaxParticipants <= 0 {
		return nil, fmt.Errorf("MAX_PARTICIPANTS must be positive, got %d", cfg.MaxParticipants)
	}
	if cfg.DefaultExpiryHours <= 0 {
		return nil, fmt.Errorf("DEFAULT_EXPIRY_HOURS must be positive, got %v", cfg.DefaultExpiryHours)
	}
	if cfg.PresenceTimeout < 0 {
		return nil, fmt.Errorf("PRESENCE_TIMEOUT must not be negative, got %s", cfg.PresenceTimeout)
	}
	if cfg.PresenceTimeout > 0 && cfg.ReaperInterval <= 0 {
		return nil, fmt.Errorf("REAPER_INTERVAL must be positive when PRESENCE_TIMEOUT is set, got %s", cfg.ReaperInterval)
	}
	if cfg.RateLimiterTTL <= 0 {
		return nil, fmt.Errorf("RATE_LIMITER_TTL must be positive, got %s", cfg.RateLimiterTTL)
	}
	if cfg.RateLimitRPS <= 0 || cfg.RateLimitBurst <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive, got %d/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	return &cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// InitRedis returns nil when REDIS_HOST is unset; the server then delivers
// realtime messages to local clients only.
func InitRedis(ctx context.Context, cfg *Config) (*redis.Client, error) {
	if cfg.RedisHost == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
