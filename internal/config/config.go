// Package config содержит логику чтения конфигурации журнала лояльности.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress = "localhost:8080"
	// Аренда продлевается каждую треть срока.
	minLockTTL = time.Second
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress    string
	DatabaseURI   string
	RedisAddress  string
	RedisPassword string
	SeedDemo      bool
	LockTTL       time.Duration
}

// envConfig отличает незаданные переменные окружения от пустых значений.
type envConfig struct {
	RunAddress    string        `env:"RUN_ADDRESS"`
	DatabaseURI   string        `env:"DATABASE_URI"`
	RedisAddress  string        `env:"REDIS_ADDRESS"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	SeedDemo      *bool         `env:"SEED_DEMO"`
	LockTTL       time.Duration `env:"LOCK_TTL" envDefault:"10s"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	// Файл .env необязателен.
	_ = godotenv.Load()

	var e envConfig
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{
		RedisPassword: e.RedisPassword,
		LockTTL:       e.LockTTL,
	}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for the writer lock")
	flag.BoolVar(&cfg.SeedDemo, "s", false, "seed the demo clinic into an empty ledger")

	flag.Parse()

	if e.RunAddress != "" {
		cfg.RunAddress = e.RunAddress
	}
	if e.DatabaseURI != "" {
		cfg.DatabaseURI = e.DatabaseURI
	}
	if e.RedisAddress != "" {
		cfg.RedisAddress = e.RedisAddress
	}
	if e.SeedDemo != nil {
		cfg.SeedDemo = *e.SeedDemo
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.LockTTL < minLockTTL {
		return nil, fmt.Errorf("lock ttl must be at least %s, got %s", minLockTTL, cfg.LockTTL)
	}

	return cfg, nil
}
