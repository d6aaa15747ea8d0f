// Package config loads application configuration from environment variables.
// An optional .env file in the working directory is read first; variables
// already set in the environment win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"
)

// Store drivers.
const (
	DriverMySQL  = "mysql"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// Lock backends.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // APP_ENV, e.g. "dev" or "prod"
	Port string // APP_PORT, HTTP port to listen on

	StoreDriver string // STORE_DRIVER: mysql, bolt or memory
	DBUser      string // DB_USER
	DBPass      string // DB_PASS (empty allowed)
	DBHost      string // DB_HOST
	DBPort      string // DB_PORT
	DBName      string // DB_NAME
	BoltPath    string // BOLT_PATH, file used by the bolt driver

	JWTSecret    string // JWT_SECRET, signs access tokens
	AccessTTLMin int    // ACCESS_TOKEN_TTL_MIN

	SlotCapacity  int           // SLOT_CAPACITY, slots provisioned as 1..N
	RatePerHour   int64         // RATE_PER_HOUR, tariff per started hour
	StoreTimeout  time.Duration // STORE_TIMEOUT, bound on store work per event
	LockBackend   string        // LOCK_BACKEND: local or redis
	LockTTL       time.Duration // LOCK_TTL, lease of a redis credential lock
	OccupyOnEntry bool          // OCCUPY_SLOT_ON_ENTRY
	PublishHTTP   bool          // PUBLISH_HTTP_DECISIONS, echo HTTP decisions to the bus

	LogLevel string // LOG_LEVEL: debug, info, warn, error, off
}

// Load reads configuration values from the environment and returns a
// Config. Missing required variables and invalid values stop the process
// with a fatal log message.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Env:           envStr("APP_ENV", "dev"),
		Port:          must("APP_PORT"),
		StoreDriver:   strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),
		BoltPath:      envStr("BOLT_PATH", "parking.db"),
		JWTSecret:     must("JWT_SECRET"),
		AccessTTLMin:  envInt("ACCESS_TOKEN_TTL_MIN", 60),
		SlotCapacity:  envInt("SLOT_CAPACITY", 8),
		RatePerHour:   int64(envInt("RATE_PER_HOUR", 50)),
		StoreTimeout:  envDur("STORE_TIMEOUT", 3*time.Second),
		LockBackend:   strings.ToLower(envStr("LOCK_BACKEND", LockLocal)),
		LockTTL:       envDur("LOCK_TTL", 10*time.Second),
		OccupyOnEntry: envBool("OCCUPY_SLOT_ON_ENTRY", true),
		PublishHTTP:   envBool("PUBLISH_HTTP_DECISIONS", true),
		LogLevel:      strings.ToLower(envStr("LOG_LEVEL", "info")),
	}
	if cfg.StoreDriver == DriverMySQL {
		db := LoadDatabase()
		cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName = db.User, db.Pass, db.Host, db.Port, db.Name
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return cfg
}

// Validate checks enumerations and ranges.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMySQL, DriverBolt, DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be mysql, bolt or memory, got %q", c.StoreDriver)
	}
	switch c.LockBackend {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("LOCK_BACKEND must be local or redis, got %q", c.LockBackend)
	}
	if c.SlotCapacity < 1 {
		return fmt.Errorf("SLOT_CAPACITY must be positive, got %d", c.SlotCapacity)
	}
	if c.RatePerHour < 1 {
		return fmt.Errorf("RATE_PER_HOUR must be positive, got %d", c.RatePerHour)
	}
	if c.AccessTTLMin < 1 {
		return fmt.Errorf("ACCESS_TOKEN_TTL_MIN must be positive, got %d", c.AccessTTLMin)
	}
	return nil
}

// Level maps LogLevel to a gommon log level, INFO when unknown.
func (c Config) Level() log.Lvl {
	switch c.LogLevel {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

// must retrieves the value of a required environment variable. If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
