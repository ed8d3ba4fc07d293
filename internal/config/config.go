package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	Inventory InventoryConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port          string
	Env           string
	MigrationsDir string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	Schema       string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN builds a postgres connection URL
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   c.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// ClientTTL bounds how long expiring client keys such as the session
	// token survive without writes; carts and sale backups never expire
	ClientTTL time.Duration
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

type SessionConfig struct {
	TTL               time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	AdminEmailDomain  string
	CleanupInterval   time.Duration
	// BootstrapUsername and BootstrapPassword create the first admin when
	// no admin with that username exists
	BootstrapUsername string
	BootstrapPassword string
}

type InventoryConfig struct {
	ExecutorWorkers    int
	ExpiryScanInterval time.Duration
	ReloadInterval     time.Duration
	// ClientIdleTimeout is how long an unused client stays in memory
	ClientIdleTimeout time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

func Load() *Config {
	// Values already present in the environment win over .env
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: No .env file loaded: %v", err)
	}

	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_ENV", "development")
	viper.SetDefault("MIGRATIONS_DIR", "migrations")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_SCHEMA", "public")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 20)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("REDIS_HOST", "localhost")
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("REDIS_CLIENT_TTL", "720h")
	viper.SetDefault("SESSION_TTL", "24h")
	viper.SetDefault("SESSION_MAX_FAILED_ATTEMPTS", 5)
	viper.SetDefault("SESSION_LOCKOUT", "30m")
	viper.SetDefault("ADMIN_EMAIL_DOMAIN", "admin.local")
	viper.SetDefault("SESSION_CLEANUP_INTERVAL", "1h")
	viper.SetDefault("EXECUTOR_WORKERS", 4)
	viper.SetDefault("EXPIRY_SCAN_INTERVAL", "1m")
	viper.SetDefault("PRODUCT_RELOAD_INTERVAL", "30s")
	viper.SetDefault("CLIENT_IDLE_TIMEOUT", "30m")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("RATE_LIMIT_REQUESTS", 100)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")

	return &Config{
		Server: ServerConfig{
			Port:          viper.GetString("SERVER_PORT"),
			Env:           viper.GetString("SERVER_ENV"),
			MigrationsDir: viper.GetString("MIGRATIONS_DIR"),
		},
		Database: DatabaseConfig{
			Host:         viper.GetString("DB_HOST"),
			Port:         viper.GetString("DB_PORT"),
			User:         viper.GetString("DB_USER"),
			Password:     viper.GetString("DB_PASSWORD"),
			Name:         viper.GetString("DB_DATABASE"),
			Schema:       viper.GetString("DB_SCHEMA"),
			SSLMode:      viper.GetString("DB_SSLMODE"),
			MaxOpenConns: viper.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: viper.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			Host:      viper.GetString("REDIS_HOST"),
			Port:      viper.GetString("REDIS_PORT"),
			Password:  viper.GetString("REDIS_PASSWORD"),
			DB:        viper.GetInt("REDIS_DB"),
			ClientTTL: viper.GetDuration("REDIS_CLIENT_TTL"),
		},
		Session: SessionConfig{
			TTL:               viper.GetDuration("SESSION_TTL"),
			MaxFailedAttempts: viper.GetInt("SESSION_MAX_FAILED_ATTEMPTS"),
			LockoutDuration:   viper.GetDuration("SESSION_LOCKOUT"),
			AdminEmailDomain:  viper.GetString("ADMIN_EMAIL_DOMAIN"),
			CleanupInterval:   viper.GetDuration("SESSION_CLEANUP_INTERVAL"),
			BootstrapUsername: viper.GetString("ADMIN_BOOTSTRAP_USERNAME"),
			BootstrapPassword: viper.GetString("ADMIN_BOOTSTRAP_PASSWORD"),
		},
		Inventory: InventoryConfig{
			ExecutorWorkers:    viper.GetInt("EXECUTOR_WORKERS"),
			ExpiryScanInterval: viper.GetDuration("EXPIRY_SCAN_INTERVAL"),
			ReloadInterval:     viper.GetDuration("PRODUCT_RELOAD_INTERVAL"),
			ClientIdleTimeout:  viper.GetDuration("CLIENT_IDLE_TIMEOUT"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		RateLimit: RateLimitConfig{
			Requests: viper.GetInt("RATE_LIMIT_REQUESTS"),
			Window:   viper.GetDuration("RATE_LIMIT_WINDOW"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
