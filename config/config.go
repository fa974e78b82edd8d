package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DevJWTSecret is the fallback signing secret, usable in local/dev only.
const DevJWTSecret = "dev-jwt-secret-change-me"

// ErrMissingJWTSecret is returned when no JWT secret is configured outside
// local/dev environments. The process refuses to start rather than signing
// tokens with a known default.
var ErrMissingJWTSecret = errors.New("JWT_SECRET is required outside local/dev environments")

// Config holds application configuration loaded from environment.
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Bootstrap   BootstrapConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret     string
	TTLSeconds int
}

// AWSConfig holds AWS credentials and the audit export bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ExportsBucket   string
}

// BootstrapConfig gates POST /auth/bootstrap. When Token is empty the
// endpoint falls back to first-user-only gating.
type BootstrapConfig struct {
	Token string
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// IsDev reports whether the environment permits development defaults.
func (c *Config) IsDev() bool {
	return c.Environment == "local" || c.Environment == "dev"
}

// Load reads configuration from environment, with optional .env file.
// It fails closed when no JWT secret is configured outside local/dev.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtTTL, _ := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_SECONDS", "3600"))

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "local"),
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "accesscore"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			TTLSeconds: jwtTTL,
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ExportsBucket:   getEnv("AWS_S3_EXPORTS_BUCKET", ""),
		},
		Bootstrap: BootstrapConfig{
			Token: getEnv("BOOTSTRAP_TOKEN", ""),
		},
	}

	if cfg.JWT.Secret == "" {
		if !cfg.IsDev() {
			return nil, ErrMissingJWTSecret
		}
		cfg.JWT.Secret = DevJWTSecret
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
