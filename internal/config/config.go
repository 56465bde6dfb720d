package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Store drivers accepted by SELECTORD_STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

type Config struct {
	ListenPort      string        `validate:"required"` // ex: ":8080"
	ShutdownTimeout time.Duration `validate:"gt=0"`     // ex: 5s
	RequestTimeout  time.Duration `validate:"gt=0"`     // per request deadline (ex: 5s)

	LogLevel  string `validate:"oneof=debug info warn error"`
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Storage
	StoreDriver string `validate:"oneof=memory redis sqlite postgres mysql"`
	StoreDSN    string `validate:"required_if=StoreDriver sqlite,required_if=StoreDriver postgres,required_if=StoreDriver mysql"`

	// Supplementary workers
	SeedFile         string        // optional YAML file of proxy selectors applied on start and reload
	WatchSeedFile    bool          // reload the seed file as soon as it changes on disk
	ReloadInterval   time.Duration `validate:"gte=0"` // 0 disables periodic seed reload
	OrphanGCInterval time.Duration `validate:"gte=0"` // 0 disables the orphan collector
	OrphanGrace      time.Duration `validate:"gte=0"` // how long an orphan must be observed before removal
	ViewConcurrency  int           `validate:"min=1,max=64"`

	// Redis
	RedisAddr             string        `validate:"required_if=StoreDriver redis"` // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           `validate:"gte=0"`
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts
	RedisTxRetries        int           `validate:"gte=0"` // replays of a conflicting transaction

	// Access restrictions
	AllowedHosts    []string // optional, restrict access to specific Host headers
	AllowedCIDRS    []string `validate:"dive,cidr|ip"` // optional, restrict access to specific IP/CIDR
	TrustProxy      bool     // true => trust X-Forwarded-For headers
	WriteRatePerMin int      `validate:"gte=0"` // admin writes refilled per client per minute, 0 disables
	WriteRateBurst  int      `validate:"gte=0"`
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("SELECTORD_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("SELECTORD_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("SELECTORD_REQUEST_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("SELECTORD_LOG_LEVEL", "info"),
		PrettyLog: mustBool("SELECTORD_PRETTY_LOG", true),

		// Storage
		StoreDriver: getenv("SELECTORD_STORE_DRIVER", DriverMemory),

		// Workers
		SeedFile:         getenv("SELECTORD_SEED_FILE", ""),
		WatchSeedFile:    mustBool("SELECTORD_WATCH_SEED_FILE", true),
		ReloadInterval:   mustDuration("SELECTORD_RELOAD_INTERVAL", time.Hour),
		OrphanGCInterval: mustDuration("SELECTORD_ORPHAN_GC_INTERVAL", 10*time.Minute),
		OrphanGrace:      mustDuration("SELECTORD_ORPHAN_GRACE", time.Hour),
		ViewConcurrency:  getenvInt("SELECTORD_VIEW_CONCURRENCY", 8),

		// Redis settings
		RedisUser:             getenv("SELECTORD_REDIS_USERNAME", ""),
		RedisPasswordRequired: mustBool("SELECTORD_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("SELECTORD_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("SELECTORD_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),
		RedisTxRetries:        getenvInt("REDIS_TX_RETRIES", 10),

		// Access restrictions
		AllowedHosts:    splitAndTrim(getenv("SELECTORD_ALLOWED_HOSTS", "")),
		AllowedCIDRS:    parseAllowedIPs(getenv("SELECTORD_ALLOWED_CIDRS", "")),
		TrustProxy:      mustBool("SELECTORD_TRUST_PROXY", false),
		WriteRatePerMin: getenvInt("SELECTORD_WRITE_RATE_PER_MIN", 120),
		WriteRateBurst:  getenvInt("SELECTORD_WRITE_RATE_BURST", 20),
	}

	// Backends that cannot start without a target
	switch cfg.StoreDriver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
		cfg.StoreDSN = requireEnv("SELECTORD_STORE_DSN")
	case DriverRedis:
		cfg.RedisAddr = requireEnv("SELECTORD_REDIS_ADDR")
		if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
			panic("❌ FATAL: SELECTORD_REDIS_PASSWORD is required when SELECTORD_REDIS_PASSWORD_REQUIRED=true")
		}
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cp := *c
	if cp.RedisPassword != "" {
		cp.RedisPassword = "***REDACTED***"
	}
	if cp.RedisUser != "" {
		cp.RedisUser = "***REDACTED***"
	}
	if cp.StoreDSN != "" && cp.StoreDriver != DriverSQLite {
		cp.StoreDSN = "***REDACTED***"
	}
	return cp
}

// Validate checks the struct tags and returns every violation at once.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleValidationError(e))
	}
	return errors.New("invalid configuration: " + strings.Join(messages, "; "))
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "cidr|ip":
		return fmt.Sprintf("%s must be an IP or CIDR", e.Namespace())
	case "gt", "gte", "min", "max":
		return fmt.Sprintf("%s must be %s %s", field, e.Tag(), e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
