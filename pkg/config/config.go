package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/carepoint/gatekeeper/pkg/audit"
	"github.com/carepoint/gatekeeper/pkg/lockout"
	"github.com/carepoint/gatekeeper/pkg/observability"
	"github.com/carepoint/gatekeeper/pkg/rbac"
	"github.com/carepoint/gatekeeper/pkg/session"
	"github.com/carepoint/gatekeeper/pkg/storage"
	"github.com/sirupsen/logrus"
)

// Operating environments
const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
)

// Config holds all application configuration
type Config struct {
	Environment string

	Server   ServerConfig
	Redis    storage.Config
	Postgres storage.PostgresConfig
	Auth     AuthConfig
	Lockout  lockout.Config
	Session  SessionConfig
	Events   EventsConfig
	RBAC     RBACConfig
	Clinics  ClinicsConfig

	// PolicyFile is the YAML route policy table; empty uses the built-in routes
	PolicyFile string
	// OriginAllowList holds the IPs and CIDRs admitted on origin-filtered routes
	OriginAllowList []string

	Logging LoggingConfig
	Tracing observability.TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// AuthConfig holds token verification settings
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Leeway    time.Duration
	TokenTTL  time.Duration

	OIDCIssuerURL   string
	OIDCClientID    string
	OIDCJWKSURL     string
	OIDCSigningAlgs []string
}

// SessionConfig holds session validation and limiter settings
type SessionConfig struct {
	TTL           time.Duration
	MaxConcurrent int64
	// SetTTL expires an idle active-session set; zero keeps it until reaped
	SetTTL       time.Duration
	ReapSchedule string
}

// EventsConfig holds security event sink settings
type EventsConfig struct {
	MaxEntries  int64
	TTL         time.Duration
	AsyncBuffer int
}

// RBACConfig holds permission evaluator settings
type RBACConfig struct {
	RolesFile         string
	CacheTTL          time.Duration
	CacheSize         int
	BusinessStartHour int
	BusinessEndHour   int
	TimeZone          string
	EmergencyExpiry   time.Duration
}

// BusinessHours builds the evaluator's time window
func (c RBACConfig) BusinessHours() (rbac.BusinessHours, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return rbac.BusinessHours{}, fmt.Errorf("invalid time zone %q: %w", c.TimeZone, err)
	}
	hours := rbac.BusinessHours{StartHour: c.BusinessStartHour, EndHour: c.BusinessEndHour, Location: loc}
	if err := hours.Validate(); err != nil {
		return rbac.BusinessHours{}, err
	}
	return hours, nil
}

// ClinicsConfig holds tenant resolver settings
type ClinicsConfig struct {
	// ExemptRoles may act on any existing clinic without membership
	ExemptRoles []string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     strings.ToLower(getEnv("GATEKEEPER_ENV", EnvDevelopment)),
		Server:          loadServerConfig(),
		Redis:           loadRedisConfig(),
		Postgres:        loadPostgresConfig(),
		Auth:            loadAuthConfig(),
		Session:         loadSessionConfig(),
		Events:          loadEventsConfig(),
		RBAC:            loadRBACConfig(),
		Clinics:         ClinicsConfig{ExemptRoles: getEnvList("GATEKEEPER_CLINIC_EXEMPT_ROLES", []string{rbac.RoleSuperAdmin})},
		PolicyFile:      getEnv("GATEKEEPER_POLICY_FILE", ""),
		OriginAllowList: getEnvList("GATEKEEPER_ORIGIN_ALLOWLIST", nil),
		Logging: LoggingConfig{
			Level:  getEnv("GATEKEEPER_LOG_LEVEL", "info"),
			Format: getEnv("GATEKEEPER_LOG_FORMAT", observability.FormatJSON),
		},
		Tracing: loadTracingConfig(),
	}

	lockoutCfg, err := loadLockoutConfig()
	if err != nil {
		return nil, err
	}
	cfg.Lockout = lockoutCfg

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            getEnv("GATEKEEPER_ADDR", ":8080"),
		ReadTimeout:     getEnvDuration("GATEKEEPER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEKEEPER_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEKEEPER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEKEEPER_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("GATEKEEPER_MAX_BODY_BYTES", 1<<20),
	}
}

func loadRedisConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if redisURL := getEnv("GATEKEEPER_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("GATEKEEPER_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("GATEKEEPER_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if poolSize := getEnvInt("GATEKEEPER_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}
	if maxRetries := getEnvInt("GATEKEEPER_REDIS_MAX_RETRIES", 0); maxRetries > 0 {
		cfg.RedisMaxRetries = maxRetries
	}
	if opTimeout := getEnvDuration("GATEKEEPER_REDIS_OP_TIMEOUT", 0); opTimeout > 0 {
		cfg.OpTimeout = opTimeout
	}

	return cfg
}

func loadPostgresConfig() storage.PostgresConfig {
	return storage.PostgresConfig{
		URL:         getEnv("GATEKEEPER_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("GATEKEEPER_POSTGRES_MAX_CONNS", 20),
		MinConns:    getEnvInt("GATEKEEPER_POSTGRES_MIN_CONNS", 2),
		Timeout:     getEnvDuration("GATEKEEPER_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("GATEKEEPER_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("GATEKEEPER_POSTGRES_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:       getEnv("GATEKEEPER_JWT_SECRET", ""),
		Issuer:          getEnv("GATEKEEPER_JWT_ISSUER", ""),
		Leeway:          getEnvDuration("GATEKEEPER_JWT_LEEWAY", 30*time.Second),
		TokenTTL:        getEnvDuration("GATEKEEPER_TOKEN_TTL", 15*time.Minute),
		OIDCIssuerURL:   getEnv("GATEKEEPER_OIDC_ISSUER_URL", ""),
		OIDCClientID:    getEnv("GATEKEEPER_OIDC_CLIENT_ID", ""),
		OIDCJWKSURL:     getEnv("GATEKEEPER_OIDC_JWKS_URL", ""),
		OIDCSigningAlgs: getEnvList("GATEKEEPER_OIDC_SIGNING_ALGS", nil),
	}
}

func loadLockoutConfig() (lockout.Config, error) {
	cfg := lockout.DefaultConfig()
	cfg.Threshold = getEnvInt64("GATEKEEPER_LOCKOUT_THRESHOLD", cfg.Threshold)
	cfg.AttemptWindow = getEnvDuration("GATEKEEPER_LOCKOUT_WINDOW", cfg.AttemptWindow)

	if raw := getEnvList("GATEKEEPER_LOCKOUT_ESCALATION_MINUTES", nil); raw != nil {
		escalation := make([]time.Duration, 0, len(raw))
		for _, m := range raw {
			minutes, err := strconv.Atoi(m)
			if err != nil {
				return lockout.Config{}, fmt.Errorf("invalid lockout escalation entry %q: %w", m, err)
			}
			escalation = append(escalation, time.Duration(minutes)*time.Minute)
		}
		cfg.Escalation = escalation
	}

	return cfg, nil
}

func loadSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:           getEnvDuration("GATEKEEPER_SESSION_TTL", session.DefaultTTL),
		MaxConcurrent: getEnvInt64("GATEKEEPER_MAX_SESSIONS", session.DefaultMaxSessions),
		SetTTL:        getEnvDuration("GATEKEEPER_SESSION_SET_TTL", 24*time.Hour),
		ReapSchedule:  getEnv("GATEKEEPER_REAP_SCHEDULE", session.DefaultReapSchedule),
	}
}

func loadEventsConfig() EventsConfig {
	return EventsConfig{
		MaxEntries:  getEnvInt64("GATEKEEPER_EVENTS_MAX", audit.DefaultMaxEvents),
		TTL:         getEnvDuration("GATEKEEPER_EVENTS_TTL", audit.DefaultEventTTL),
		AsyncBuffer: getEnvInt("GATEKEEPER_EVENTS_BUFFER", audit.DefaultBufferSize),
	}
}

func loadRBACConfig() RBACConfig {
	return RBACConfig{
		RolesFile:         getEnv("GATEKEEPER_ROLES_FILE", ""),
		CacheTTL:          getEnvDuration("GATEKEEPER_PERMISSION_CACHE_TTL", rbac.DefaultCacheTTL),
		CacheSize:         getEnvInt("GATEKEEPER_PERMISSION_CACHE_SIZE", rbac.DefaultCacheSize),
		BusinessStartHour: getEnvInt("GATEKEEPER_BUSINESS_START_HOUR", 7),
		BusinessEndHour:   getEnvInt("GATEKEEPER_BUSINESS_END_HOUR", 19),
		TimeZone:          getEnv("GATEKEEPER_TIME_ZONE", "UTC"),
		EmergencyExpiry:   getEnvDuration("GATEKEEPER_EMERGENCY_EXPIRY", rbac.DefaultEmergencyExpiry),
	}
}

func loadTracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:        getEnvBool("GATEKEEPER_OTEL_ENABLED", false),
		Endpoint:       getEnv("GATEKEEPER_OTEL_ENDPOINT", "localhost:4317"),
		ServiceName:    getEnv("GATEKEEPER_OTEL_SERVICE_NAME", "gatekeeper"),
		ServiceVersion: getEnv("GATEKEEPER_OTEL_SERVICE_VERSION", "dev"),
		Insecure:       getEnvBool("GATEKEEPER_OTEL_INSECURE", true),
		SampleRatio:    getEnvFloat("GATEKEEPER_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvProduction, EnvStaging, EnvDevelopment:
	default:
		return fmt.Errorf("invalid environment: %s (must be production, staging, or development)", c.Environment)
	}

	if c.Server.Addr == "" {
		return errors.New("server address is required")
	}

	if c.Auth.JWTSecret == "" && c.Auth.OIDCIssuerURL == "" {
		return errors.New("a JWT secret or an OIDC issuer is required")
	}
	if c.Auth.OIDCIssuerURL != "" && c.Auth.OIDCClientID == "" {
		return errors.New("OIDC client id is required when an OIDC issuer is configured")
	}

	if err := c.Lockout.Validate(); err != nil {
		return fmt.Errorf("lockout: %w", err)
	}

	if c.Session.MaxConcurrent < 1 {
		return errors.New("max concurrent sessions must be at least 1")
	}
	if c.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}

	if _, err := c.RBAC.BusinessHours(); err != nil {
		return fmt.Errorf("rbac: %w", err)
	}

	if c.Postgres.URL == "" {
		return errors.New("postgres URL is required for the clinic directory")
	}

	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return errors.New("OpenTelemetry endpoint is required when tracing is enabled")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
