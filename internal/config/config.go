package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Session storage backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type Config struct {
	Server struct {
		Port         string   `yaml:"port"`
		ReadTimeout  string   `yaml:"read_timeout"`
		WriteTimeout string   `yaml:"write_timeout"`
		CORSOrigins  []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		TTL     string `yaml:"ttl"`
		Fixture string `yaml:"fixture"`
	} `yaml:"catalog"`
	Sessions struct {
		Backend string `yaml:"backend"`
	} `yaml:"sessions"`
}

// Load reads YAML config from path. JWT_SECRET in the environment overrides the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	return cfg, nil
}

// SessionBackend picks the configured backend, or the strongest one available.
func (c Config) SessionBackend() string {
	if c.Sessions.Backend != "" {
		return c.Sessions.Backend
	}
	if c.Postgres.URL != "" {
		return BackendPostgres
	}
	if c.Redis.Addr != "" {
		return BackendRedis
	}
	return BackendMemory
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
