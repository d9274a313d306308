package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"

	minSecretLength = 32
)

// Authentication holds the token settings. It is built once at startup and never mutated.
type Authentication struct {
	AccessTokenSecret      string
	RefreshTokenSecret     string
	AccessTokenExpiration  time.Duration
	RefreshTokenExpiration time.Duration
	Issuer                 string
	Audience               string
}

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	LogLevel                string

	Auth Authentication

	StoreBackend    string
	DatabaseURL     string
	DBMaxConns      int32
	DBMinConns      int32
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CleanupInterval time.Duration

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
}

// fileConfig mirrors the optional YAML file referenced by AUTH_CONFIG_FILE.
type fileConfig struct {
	Authentication struct {
		AccessTokenSecret             string  `yaml:"accessTokenSecret"`
		RefreshTokenSecret            string  `yaml:"refreshTokenSecret"`
		AccessTokenExpirationMinutes  float64 `yaml:"accessTokenExpirationMinutes"`
		RefreshTokenExpirationMinutes float64 `yaml:"refreshTokenExpirationMinutes"`
		Issuer                        string  `yaml:"issuer"`
		Audience                      string  `yaml:"audience"`
	} `yaml:"authentication"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	base, err := loadFile(strings.TrimSpace(os.Getenv("AUTH_CONFIG_FILE")))
	if err != nil {
		return nil, err
	}
	fileAuth := base.Authentication

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 15*time.Second),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		Auth: Authentication{
			AccessTokenSecret:      getEnv("ACCESS_TOKEN_SECRET", fileAuth.AccessTokenSecret),
			RefreshTokenSecret:     getEnv("REFRESH_TOKEN_SECRET", fileAuth.RefreshTokenSecret),
			AccessTokenExpiration:  getMinutes("ACCESS_TOKEN_EXPIRATION_MINUTES", orDefault(fileAuth.AccessTokenExpirationMinutes, 15)),
			RefreshTokenExpiration: getMinutes("REFRESH_TOKEN_EXPIRATION_MINUTES", orDefault(fileAuth.RefreshTokenExpirationMinutes, 60*24*7)),
			Issuer:                 getEnv("TOKEN_ISSUER", fileAuth.Issuer),
			Audience:               getEnv("TOKEN_AUDIENCE", fileAuth.Audience),
		},
		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", BackendPostgres)),
		DatabaseURL:      strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:       int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:       int32(getInt("DB_MIN_CONNS", 2)),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisDB:          getInt("REDIS_DB", 0),
		CleanupInterval:  getDuration("CLEANUP_INTERVAL", time.Hour),
		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 10),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Auth.Validate(); err != nil {
		return err
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MAX_CONNS/DB_MIN_CONNS are inconsistent")
		}
	case BackendRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND %q is not supported", c.StoreBackend)
	}

	return nil
}

// Validate reports whether the token settings are usable. Two distinct secrets are mandatory:
// a shared secret would let a refresh token pass as an access token and the other way round.
func (a Authentication) Validate() error {
	if strings.TrimSpace(a.AccessTokenSecret) == "" {
		return fmt.Errorf("ACCESS_TOKEN_SECRET is required")
	}

	if strings.TrimSpace(a.RefreshTokenSecret) == "" {
		return fmt.Errorf("REFRESH_TOKEN_SECRET is required")
	}

	if len(a.AccessTokenSecret) < minSecretLength || len(a.RefreshTokenSecret) < minSecretLength {
		return fmt.Errorf("token secrets must be at least %d bytes", minSecretLength)
	}

	if a.AccessTokenSecret == a.RefreshTokenSecret {
		return fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	if a.AccessTokenExpiration <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRATION_MINUTES must be positive")
	}

	if a.RefreshTokenExpiration <= 0 {
		return fmt.Errorf("REFRESH_TOKEN_EXPIRATION_MINUTES must be positive")
	}

	if strings.TrimSpace(a.Issuer) == "" {
		return fmt.Errorf("TOKEN_ISSUER is required")
	}

	if strings.TrimSpace(a.Audience) == "" {
		return fmt.Errorf("TOKEN_AUDIENCE is required")
	}

	return nil
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file: %w", err)
	}

	return fc, nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

// getMinutes reads a possibly fractional number of minutes.
func getMinutes(key string, fallback float64) time.Duration {
	minutes := fallback
	raw := strings.TrimSpace(os.Getenv(key))
	if raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			minutes = v
		}
	}

	return time.Duration(minutes * float64(time.Minute))
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func orDefault(v float64, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
