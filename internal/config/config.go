package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3000"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	Database  DatabaseConfig
	Neo4j     Neo4jConfig
	Redis     RedisConfig
	Auth      AuthConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
	GraphSync GraphSyncConfig
	Scheduler SchedulerConfig
	Otel      OtelConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"crate"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"crate"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// Neo4jConfig holds graph store settings. An empty URI disables the graph
// mirror; relational writes keep working without it.
type Neo4jConfig struct {
	URI            string        `env:"NEO4J_URI" envDefault:""`
	Username       string        `env:"NEO4J_USERNAME" envDefault:"neo4j"`
	Password       string        `env:"NEO4J_PASSWORD" envDefault:""`
	Database       string        `env:"NEO4J_DATABASE" envDefault:"neo4j"`
	MaxPoolSize    int           `env:"NEO4J_MAX_POOL_SIZE" envDefault:"50"`
	ConnectTimeout time.Duration `env:"NEO4J_CONNECT_TIMEOUT" envDefault:"5s"`
}

// Enabled returns true when a Neo4j URI is configured
func (n Neo4jConfig) Enabled() bool {
	return n.URI != ""
}

// RedisConfig configures the optional token revocation backend.
type RedisConfig struct {
	URL       string `env:"REDIS_URL" envDefault:""`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"crate:"`
}

// Enabled returns true when a Redis URL is configured
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// AuthConfig holds token and password policy settings
type AuthConfig struct {
	JWTSecret          string `env:"JWT_SECRET" envDefault:""`
	JWTExpirationHours int    `env:"JWT_EXPIRATION_HOURS" envDefault:"24"`
	JWTIssuer          string `env:"JWT_ISSUER" envDefault:"crate"`
	PasswordMinLength  int    `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	AllowRegistration  bool   `env:"AUTH_ALLOW_REGISTRATION" envDefault:"true"`
}

// TokenTTL returns the lifetime of issued tokens
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.JWTExpirationHours) * time.Hour
}

// CORSConfig holds cross-origin settings
type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`
}

// RateLimitConfig holds per-client request throttling settings
type RateLimitConfig struct {
	Enabled bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RPS     float64       `env:"RATE_LIMIT_RPS" envDefault:"20"`
	Burst   int           `env:"RATE_LIMIT_BURST" envDefault:"40"`
	IdleTTL time.Duration `env:"RATE_LIMIT_IDLE_TTL" envDefault:"10m"`
}

// GraphSyncConfig controls the retry worker for failed graph mirror writes
type GraphSyncConfig struct {
	WorkerEnabled    bool `env:"GRAPH_SYNC_WORKER_ENABLED" envDefault:"true"`
	WorkerIntervalMs int  `env:"GRAPH_SYNC_WORKER_INTERVAL_MS" envDefault:"5000"`
	WorkerBatchSize  int  `env:"GRAPH_SYNC_WORKER_BATCH_SIZE" envDefault:"20"`
	MaxAttempts      int  `env:"GRAPH_SYNC_MAX_ATTEMPTS" envDefault:"8"`
	ReconcilePage    int  `env:"GRAPH_RECONCILE_PAGE_SIZE" envDefault:"500"`
}

// WorkerInterval returns the polling interval as a Duration
func (g GraphSyncConfig) WorkerInterval() time.Duration {
	return time.Duration(g.WorkerIntervalMs) * time.Millisecond
}

// SchedulerConfig controls the periodic maintenance tasks. Schedules use the
// six-field cron format with seconds. An empty stale recovery schedule falls
// back to StaleRecoveryInterval.
type SchedulerConfig struct {
	Enabled                bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	AmortizationSchedule   string        `env:"AMORTIZATION_SCHEDULE" envDefault:"0 0 2 * * *"`
	CleanupSchedule        string        `env:"STALE_DATA_CLEANUP_SCHEDULE" envDefault:"0 0 3 * * *"`
	GraphReconcileSchedule string        `env:"GRAPH_RECONCILE_SCHEDULE" envDefault:"0 30 4 * * *"`
	StaleRecoverySchedule  string        `env:"GRAPH_SYNC_STALE_RECOVERY_SCHEDULE" envDefault:""`
	StaleRecoveryInterval  time.Duration `env:"GRAPH_SYNC_STALE_RECOVERY_INTERVAL" envDefault:"10m"`
	StaleJobThreshold      time.Duration `env:"GRAPH_SYNC_STALE_THRESHOLD" envDefault:"10m"`
	SyncJobRetentionDays   int           `env:"SYNC_JOB_RETENTION_DAYS" envDefault:"7"`
	// AuditRetentionDays of 0 keeps audit entries forever.
	AuditRetentionDays     int           `env:"AUDIT_RETENTION_DAYS" envDefault:"365"`
	TaskTimeout            time.Duration `env:"SCHEDULER_TASK_TIMEOUT" envDefault:"30m"`
}

// Days converts a retention in days to a Duration.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// Validate checks values that env parsing cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" && c.Environment != "local" && c.Environment != "test" {
		errs = append(errs, errors.New("JWT_SECRET is required outside local and test environments"))
	}
	if c.Auth.JWTExpirationHours <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION_HOURS must be positive"))
	}
	if c.Auth.PasswordMinLength < 6 {
		errs = append(errs, errors.New("PASSWORD_MIN_LENGTH must be at least 6"))
	}
	if c.Scheduler.SyncJobRetentionDays <= 0 {
		errs = append(errs, errors.New("SYNC_JOB_RETENTION_DAYS must be positive"))
	}
	if c.Scheduler.AuditRetentionDays < 0 {
		errs = append(errs, errors.New("AUDIT_RETENTION_DAYS must not be negative"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}
	return errors.Join(errs...)
}

// localJWTSecret signs tokens in local and test environments when JWT_SECRET is unset.
const localJWTSecret = "crate-local-development-secret"

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		log.Warn("JWT_SECRET not set, using the local development secret")
		cfg.Auth.JWTSecret = localJWTSecret
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.Bool("graph_enabled", cfg.Neo4j.Enabled()),
		slog.Bool("redis_enabled", cfg.Redis.Enabled()),
	)

	return cfg, nil
}
