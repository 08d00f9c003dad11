package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type DatabaseConfig struct {
	Driver        string
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	ConnectTries  int
	MigrationsDir string
	AutoMigrate   bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// minSecretLength is the shortest JWT_SECRET accepted for HS256 signing.
const minSecretLength = 16

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

const (
	BackendRedis = "redis"
	BackendSQL   = "sql"
	BackendLocal = "local"
)

type EngineConfig struct {
	// StorageTimeout bounds every storage call; expiry surfaces as STORAGE_TIMEOUT.
	StorageTimeout time.Duration
	ServiceDayTZ   string
	CounterBackend string
	LockBackend    string
	LockTTL        time.Duration
	LockWait       time.Duration
	LatestReports  int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", ":8086"),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:        strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			DSN:           getEnv("DB_DSN", "file:salesreport.db"),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			ConnectTries:  getEnvInt("DB_CONNECT_TRIES", 5),
			MigrationsDir: getEnv("DB_MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", false),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getEnv("KAFKA_TOPIC_REPORTS", "salesreport.events"),
			Enabled: getEnvBool("KAFKA_ENABLED", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  time.Duration(getEnvInt("TOKEN_TTL_HOURS", 14)) * time.Hour,
		},
		Engine: EngineConfig{
			StorageTimeout: time.Duration(getEnvInt("STORAGE_TIMEOUT_MS", 3000)) * time.Millisecond,
			ServiceDayTZ:   getEnv("SERVICE_DAY_TZ", "America/Costa_Rica"),
			CounterBackend: strings.ToLower(getEnv("COUNTER_BACKEND", BackendSQL)),
			LockBackend:    strings.ToLower(getEnv("LOCK_BACKEND", BackendLocal)),
			LockTTL:        time.Duration(getEnvInt("LOCK_TTL_SECONDS", 10)) * time.Second,
			LockWait:       time.Duration(getEnvInt("LOCK_WAIT_MS", 2000)) * time.Millisecond,
			LatestReports:  getEnvInt("LATEST_REPORTS_LIMIT", 2),
		},
	}
}

// Validate rejects combinations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("DB_DSN not set")
	}
	switch c.Engine.CounterBackend {
	case BackendSQL:
	case BackendRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("COUNTER_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("COUNTER_BACKEND must be %q or %q, got %q", BackendSQL, BackendRedis, c.Engine.CounterBackend)
	}
	switch c.Engine.LockBackend {
	case BackendLocal:
	case BackendRedis:
		if !c.Redis.Enabled {
			return fmt.Errorf("LOCK_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("LOCK_BACKEND must be %q or %q, got %q", BackendLocal, BackendRedis, c.Engine.LockBackend)
	}
	if c.Engine.StorageTimeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT_MS must be positive")
	}
	if _, err := time.LoadLocation(c.Engine.ServiceDayTZ); err != nil {
		return fmt.Errorf("SERVICE_DAY_TZ %q: %w", c.Engine.ServiceDayTZ, err)
	}
	if len(c.Auth.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must have at least %d characters", minSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL_HOURS must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_ENABLED=true requires KAFKA_BROKERS")
	}
	return nil
}

func (c *Config) ServiceDayLocation() *time.Location {
	loc, err := time.LoadLocation(c.Engine.ServiceDayTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
