package store

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the trajectory database connection pool configuration.
// Field names mirror the teacher's database.Config shape; the DSN itself is
// a single DATABASE_URL per spec.md §6 rather than discrete host/port/user
// fields, since a Postgres connection URL already encodes those.
type Config struct {
	DatabaseURL string

	MaxOpenConns    int32
	MaxIdleConns    int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv reads DATABASE_URL and the connection pool tuning knobs,
// applying production-ready defaults for anything unset.
func LoadConfigFromEnv() (Config, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	maxOpen, err := envInt("PIPELINE_DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return Config{}, err
	}
	maxIdle, err := envInt("PIPELINE_DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return Config{}, err
	}
	maxLifetime, err := envDuration("PIPELINE_DB_CONN_MAX_LIFETIME", time.Hour)
	if err != nil {
		return Config{}, err
	}
	maxIdleTime, err := envDuration("PIPELINE_DB_CONN_MAX_IDLE_TIME", 15*time.Minute)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DatabaseURL:     url,
		MaxOpenConns:    int32(maxOpen),
		MaxIdleConns:    int32(maxIdle),
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}
	return cfg, cfg.Validate()
}

// Validate checks the pool configuration is internally consistent.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("max_open_conns must be at least 1")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns (%d) cannot exceed max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
