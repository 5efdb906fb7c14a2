package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	SLA          SLAConfig
	Lifecycle    LifecycleConfig
	Audit        AuditConfig
	Outbox       OutboxConfig
	Notification NotificationConfig
	Tracing      TracingConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Channel prefix for relayed domain events.
	EventChannel string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token verification parameters. Tokens are issued elsewhere.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	Required              bool
}

// SLAHours is one priority's override. Zero keeps the default.
type SLAHours struct {
	Response   int
	Resolution int
}

// SLAConfig overrides the built-in SLA table per priority.
type SLAConfig struct {
	Urgent SLAHours
	High   SLAHours
	Medium SLAHours
	Low    SLAHours
}

// LifecycleConfig tunes the transition orchestrator.
type LifecycleConfig struct {
	MaxRetries  int
	CodePrefix  string
	LockTimeout time.Duration
}

// AuditConfig tunes audit retention.
type AuditConfig struct {
	RetentionDays int
}

// OutboxConfig tunes the relay worker.
type OutboxConfig struct {
	Enabled      bool
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// NotificationConfig configures the outbound notification hooks. Empty values
// disable the channel.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// TracingConfig enables OTLP export when an endpoint is set.
type TracingConfig struct {
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-ticket-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           redisDB,
			EventChannel: getEnv("REDIS_EVENT_CHANNEL", "helpdesk.events"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			Required:              getEnvAsBool("AUTH_REQUIRED", false),
		},
		SLA: SLAConfig{
			Urgent: slaHours("URGENT"),
			High:   slaHours("HIGH"),
			Medium: slaHours("MEDIUM"),
			Low:    slaHours("LOW"),
		},
		Lifecycle: LifecycleConfig{
			MaxRetries:  getEnvAsInt("LIFECYCLE_MAX_RETRIES", 3),
			CodePrefix:  getEnv("LIFECYCLE_CODE_PREFIX", "HD"),
			LockTimeout: getEnvAsDuration("LIFECYCLE_LOCK_TIMEOUT", 5*time.Second),
		},
		Audit: AuditConfig{
			RetentionDays: getEnvAsInt("AUDIT_RETENTION_DAYS", 7*365),
		},
		Outbox: OutboxConfig{
			Enabled:      getEnvAsBool("OUTBOX_ENABLED", true),
			PollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts:  getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 10),
		},
		Notification: NotificationConfig{
			EmailFrom:  os.Getenv("NOTIFY_EMAIL_FROM"),
			WebhookURL: os.Getenv("NOTIFY_WEBHOOK_URL"),
		},
		Tracing: TracingConfig{
			Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "helpdesk-ticket-service"),
			Insecure:    getEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
	}

	if cfg.Lifecycle.MaxRetries < 1 {
		return nil, fmt.Errorf("LIFECYCLE_MAX_RETRIES must be at least 1")
	}
	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Retention returns the audit retention window.
func (a AuditConfig) Retention() time.Duration {
	return time.Duration(a.RetentionDays) * 24 * time.Hour
}

// ByPriority returns the overrides keyed by lowercase priority name.
func (s SLAConfig) ByPriority() map[string]SLAHours {
	return map[string]SLAHours{
		"urgent": s.Urgent,
		"high":   s.High,
		"medium": s.Medium,
		"low":    s.Low,
	}
}

func slaHours(priority string) SLAHours {
	return SLAHours{
		Response:   getEnvAsInt("SLA_"+priority+"_RESPONSE_HOURS", 0),
		Resolution: getEnvAsInt("SLA_"+priority+"_RESOLUTION_HOURS", 0),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
