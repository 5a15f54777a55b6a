package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pkgstrings "custody/pkg/platform/strings"
)

// Config is the full runtime configuration of the custody audit server.
type Config struct {
	Server   Server
	Database Database
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     Auth
	Audit    Audit
	LogLevel string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	// AdminToken guards the recovery endpoints; empty leaves them unmounted.
	AdminToken     string
	TracingEnabled bool
}

// Database configures the PostgreSQL audit store. An empty URL selects the
// in-memory store.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Migrate         bool
}

// RedisConfig configures the optional summary cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SummaryTTL   time.Duration
}

// KafkaConfig configures the optional stream mirror. No brokers disables it.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
	Linger            time.Duration
}

// Auth configures bearer token validation and reporting access.
type Auth struct {
	JWTSigningKey  string
	Issuer         string
	Audience       string
	ReportingRoles []string
}

// Audit configures the interceptor and the writer.
type Audit struct {
	ExcludedPaths    []string
	Mode             string
	MaxBodyBytes     int
	WriteTimeout     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	RecoveryCapacity int
	RetryEnabled     bool
	RetryInterval    time.Duration
	RetryBatchSize   int
}

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding ones already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	r := &reader{}

	cfg := Config{
		Server: Server{
			Addr:            r.str("CUSTODY_ADDR", ":8080"),
			ShutdownTimeout: r.duration("CUSTODY_SHUTDOWN_TIMEOUT", 15*time.Second),
			AdminToken:      r.str("CUSTODY_ADMIN_TOKEN", ""),
			TracingEnabled:  r.boolean("CUSTODY_TRACING_ENABLED", false),
		},
		Database: Database{
			URL:             r.str("DATABASE_URL", ""),
			MaxOpenConns:    r.integer("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    r.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: r.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			Migrate:         r.boolean("DATABASE_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          r.str("REDIS_URL", ""),
			PoolSize:     r.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: r.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  r.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  r.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: r.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			SummaryTTL:   r.duration("AUDIT_SUMMARY_CACHE_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           pkgstrings.SplitList(r.str("KAFKA_BROKERS", "")),
			Topic:             r.str("KAFKA_AUDIT_TOPIC", "custody.audit.events"),
			ClientID:          r.str("KAFKA_CLIENT_ID", "custody-audit"),
			Partitions:        int32(r.integer("KAFKA_AUDIT_TOPIC_PARTITIONS", 3)),
			ReplicationFactor: int16(r.integer("KAFKA_AUDIT_TOPIC_REPLICATION", 1)),
			Linger:            r.duration("KAFKA_LINGER", 5*time.Millisecond),
		},
		Auth: Auth{
			JWTSigningKey:  r.str("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:         r.str("JWT_ISSUER", "custody"),
			Audience:       r.str("JWT_AUDIENCE", "custody-api"),
			ReportingRoles: pkgstrings.SplitListLower(r.str("AUDIT_REPORTING_ROLES", "admin,auditor")),
		},
		Audit: Audit{
			ExcludedPaths:    pkgstrings.SplitList(r.str("AUDIT_EXCLUDED_PATHS", "/health,/metrics")),
			Mode:             strings.ToLower(r.str("AUDIT_MODE", "after")),
			MaxBodyBytes:     r.integer("AUDIT_MAX_BODY_BYTES", 64<<10),
			WriteTimeout:     r.duration("AUDIT_WRITE_TIMEOUT", 5*time.Second),
			BreakerThreshold: r.integer("AUDIT_BREAKER_THRESHOLD", 5),
			BreakerCooldown:  r.duration("AUDIT_BREAKER_COOLDOWN", time.Minute),
			RecoveryCapacity: r.integer("AUDIT_RECOVERY_CAPACITY", 1000),
			RetryEnabled:     r.boolean("AUDIT_RETRY_ENABLED", false),
			RetryInterval:    r.duration("AUDIT_RETRY_INTERVAL", 30*time.Second),
			RetryBatchSize:   r.integer("AUDIT_RETRY_BATCH_SIZE", 100),
		},
		LogLevel: r.str("LOG_LEVEL", "info"),
	}

	if len(r.errs) > 0 {
		return Config{}, errors.Join(r.errs...)
	}
	if len(cfg.Auth.ReportingRoles) == 0 {
		return Config{}, errors.New("AUDIT_REPORTING_ROLES must name at least one role")
	}
	return cfg, nil
}

// reader collects parse errors so one bad variable does not hide the next.
type reader struct {
	errs []error
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) integer(key string, def int) int {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, raw))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return def
	}
	return d
}

func (r *reader) boolean(key string, def bool) bool {
	raw := r.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid boolean %q", key, raw))
		return def
	}
	return b
}
