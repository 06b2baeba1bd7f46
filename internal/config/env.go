package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Server holds runtime settings for `orderflow serve`.
type Server struct {
	Addr      string `env:"ORDERFLOW_ADDR" envDefault:"127.0.0.1:8080"`
	BasePath  string `env:"ORDERFLOW_BASE_PATH" envDefault:"/api/v1"`
	Workspace string `env:"ORDERFLOW_WORKSPACE" envDefault:"."`
	JWTSecret string `env:"ORDERFLOW_JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	Redis RedisConfig
}

// RedisConfig enables publishing lifecycle events to a Redis stream when Addr is set.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASS"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Stream   string `env:"REDIS_STREAM" envDefault:"orderflow:events"`
}

// LoadServer reads .env files (if present) and then the environment.
func LoadServer(dotenvFiles ...string) (*Server, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	cfg := &Server{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}

func (s *Server) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("ORDERFLOW_JWT_SECRET is required")
	}
	if s.Addr == "" {
		return fmt.Errorf("ORDERFLOW_ADDR is required")
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", s.LogLevel)
	}
	return nil
}
