package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN         string
	Environment   string
	LogLevel      string // пусто: уровень по ENV
	HTTPAddr      string
	JWTSecret     string
	Timezone      string
	TelegramToken string // пустой токен отключает бота

	RedisAddr     string // пустой адрес отключает лимиты и блокировку прогона
	RedisPassword string
	RedisDB       int

	RabbitMQURL string // пустой адрес отключает публикацию событий

	PublishSweepInterval time.Duration
	BulkConcurrency      int

	RateLimit RateLimitConfig

	// EnvFileLoaded был ли найден .env
	EnvFileLoaded bool
}

// RateLimitConfig параметры token bucket для бронирования
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

func Load() (*Config, error) {
	// .env не обязателен, переменные окружения имеют приоритет
	loaded := godotenv.Load(".env") == nil

	cfg := &Config{
		DBDSN:                os.Getenv("DB_DSN"),
		Environment:          envStr("ENV", "development"),
		LogLevel:             os.Getenv("LOG_LEVEL"),
		HTTPAddr:             envStr("HTTP_ADDR", ":8080"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		Timezone:             envStr("TIMEZONE", "Asia/Seoul"),
		TelegramToken:        os.Getenv("TELEGRAM_TOKEN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              envInt("REDIS_DB", 0),
		RabbitMQURL:          os.Getenv("RABBITMQ_URL"),
		PublishSweepInterval: envDur("PUBLISH_SWEEP_INTERVAL", time.Minute),
		BulkConcurrency:      envInt("BULK_GRANT_CONCURRENCY", 8),
		RateLimit:            loadRateLimit(),
		EnvFileLoaded:        loaded,
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	}
	if cfg.PublishSweepInterval <= 0 {
		return nil, fmt.Errorf("PUBLISH_SWEEP_INTERVAL must be positive, got %s", cfg.PublishSweepInterval)
	}
	if cfg.BulkConcurrency < 1 {
		return nil, fmt.Errorf("BULK_GRANT_CONCURRENCY must be positive, got %d", cfg.BulkConcurrency)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func loadRateLimit() RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 10),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", 6*time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "mentor_queue:rl"),
	}
	if rl.Capacity < 1 {
		rl.Capacity = 1
	}
	if rl.RefillTokens < 1 {
		rl.RefillTokens = 1
	}
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	// ключ не должен истечь раньше, чем ведро успеет наполниться
	if minTTL := 5 * rl.RefillInterval; rl.TTL < minTTL {
		rl.TTL = minTTL
	}
	return rl
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v, err := strconv.ParseBool(os.Getenv(k))
	if err != nil {
		return d
	}
	return v
}

func envInt(k string, d int) int {
	n, err := strconv.Atoi(os.Getenv(k))
	if err != nil {
		return d
	}
	return n
}

func envDur(k string, d time.Duration) time.Duration {
	dur, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return d
	}
	return dur
}
