package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server         ServerConfig
	JWT            JWTConfig
	Postgres       PostgresConfig
	Redis          RedisConfig
	RateLimiter    RateLimiterConfig
	CircuitBreaker CircuitBreakerConfig
	Bulkhead       BulkheadConfig
	Dispatch       DispatchConfig
	Tracking       TrackingConfig
	RabbitMQ       RabbitMQConfig
	Mapbox         MapboxConfig
	CORS           CORSConfig
	Log            LogConfig
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type JWTConfig struct {
	Secret      string
	ExpiryHours time.Duration
}

type PostgresConfig struct {
	URL      string // DATABASE_URL takes precedence if set
	Host     string
	Port     int
	User     string
	Password string
	DB       string
	SSLMode  string
}

type RedisConfig struct {
	URL      string // REDIS_URL takes precedence if set
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimiterConfig struct {
	MaxRequests   int
	WindowSeconds int
}

type CircuitBreakerConfig struct {
	FailureThreshold int
	CooldownSeconds  int
}

type BulkheadConfig struct {
	LocationPool int
	MutationPool int
	ManagerPool  int
}

type DispatchConfig struct {
	GeofenceRadiusM    float64
	NotifyCount        int
	AutoAssign         bool
	AutoAssignSchedule string // cron spec with seconds
}

type TrackingConfig struct {
	ConnBuffer          int
	SinkBuffer          int
	LocationCacheTTLSec int
	IdempotencyTTLSec   int
}

// RabbitMQConfig enables the event exporter when URL is set.
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type MapboxConfig struct {
	BaseURL     string
	AccessToken string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string // text or json
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func getenvFloat(key string, fallback float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func getenvBool(key string, fallback bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return v
}

func getenvList(key string, fallback []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getenvInt("PORT", getenvInt("SERVER_PORT", 8080)),
			ShutdownTimeout: time.Duration(getenvInt("SHUTDOWN_TIMEOUT_SECONDS", 5)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:      getenv("JWT_SECRET", "default-secret-change-me"),
			ExpiryHours: time.Duration(getenvInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,
		},
		Postgres: PostgresConfig{
			URL:      getenv("DATABASE_URL", ""),
			Host:     getenv("POSTGRES_HOST", "localhost"),
			Port:     getenvInt("POSTGRES_PORT", 5432),
			User:     getenv("POSTGRES_USER", "dispatch"),
			Password: getenv("POSTGRES_PASSWORD", "secure_password"),
			DB:       getenv("POSTGRES_DB", "dispatch_engine"),
			SSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getenv("REDIS_URL", ""),
			Host:     getenv("REDIS_HOST", "localhost"),
			Port:     getenvInt("REDIS_PORT", 6379),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimiter: RateLimiterConfig{
			MaxRequests:   getenvInt("RATE_LIMIT_MAX_REQUESTS", 100),
			WindowSeconds: getenvInt("RATE_LIMIT_WINDOW_SECONDS", 60),
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: getenvInt("CB_FAILURE_THRESHOLD", 5),
			CooldownSeconds:  getenvInt("CB_COOLDOWN_SECONDS", 30),
		},
		Bulkhead: BulkheadConfig{
			LocationPool: getenvInt("BULKHEAD_LOCATION_POOL", 100),
			MutationPool: getenvInt("BULKHEAD_MUTATION_POOL", 50),
			ManagerPool:  getenvInt("BULKHEAD_MANAGER_POOL", 20),
		},
		Dispatch: DispatchConfig{
			GeofenceRadiusM:    getenvFloat("GEOFENCE_RADIUS_METERS", 150),
			NotifyCount:        getenvInt("DISPATCH_NOTIFY_COUNT", 3),
			AutoAssign:         getenvBool("DISPATCH_AUTO_ASSIGN", false),
			AutoAssignSchedule: getenv("DISPATCH_AUTO_ASSIGN_SCHEDULE", "*/15 * * * * *"),
		},
		Tracking: TrackingConfig{
			ConnBuffer:          getenvInt("TRACKING_CONN_BUFFER", 256),
			SinkBuffer:          getenvInt("TRACKING_SINK_BUFFER", 1024),
			LocationCacheTTLSec: getenvInt("LOCATION_CACHE_TTL_SECONDS", 300),
			IdempotencyTTLSec:   getenvInt("IDEMPOTENCY_TTL_SECONDS", 300),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getenv("RABBITMQ_URL", ""),
			Exchange: getenv("RABBITMQ_EXCHANGE", "dispatch.events"),
		},
		Mapbox: MapboxConfig{
			BaseURL:     getenv("MAPBOX_BASE_URL", "https://api.mapbox.com"),
			AccessToken: getenv("MAPBOX_ACCESS_TOKEN", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getenvList("CORS_ALLOWED_ORIGINS", nil),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Dispatch.GeofenceRadiusM <= 0 {
		return fmt.Errorf("GEOFENCE_RADIUS_METERS must be positive, got %v", c.Dispatch.GeofenceRadiusM)
	}
	if c.Dispatch.NotifyCount < 1 {
		return fmt.Errorf("DISPATCH_NOTIFY_COUNT must be at least 1, got %d", c.Dispatch.NotifyCount)
	}
	if c.Tracking.ConnBuffer < 1 || c.Tracking.SinkBuffer < 1 {
		return fmt.Errorf("tracking buffers must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.Log.Format)
	}
	return nil
}

func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DB, p.SSLMode)
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
