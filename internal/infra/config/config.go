package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "GATE"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Storage   StorageSettings   `mapstructure:"storage"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	SQLite    SQLiteSettings    `mapstructure:"sqlite"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Lock      LockSettings      `mapstructure:"lock"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Admin     AdminSettings     `mapstructure:"admin"`
	Rules     RulesSettings     `mapstructure:"rules"`
	Password  PasswordSettings  `mapstructure:"password"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

// AppSettings configures the HTTP server. CORSAllowedOrigins enables CORS for
// the listed origins; "*" allows any.
type AppSettings struct {
	Name               string        `mapstructure:"name"`
	Env                string        `mapstructure:"env"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	CORSAllowedOrigins []string      `mapstructure:"cors_allowed_origins"`
}

// StorageSettings selects the account store backend.
type StorageSettings struct {
	Driver           string        `mapstructure:"driver"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

type SQLiteSettings struct {
	Path string `mapstructure:"path"`
}

// RedisSettings configures the Redis connection. Redis is optional unless the
// lock driver is redis or login rate limiting is enabled.
type RedisSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// LockSettings configures the per-identifier lock.
type LockSettings struct {
	Driver        string        `mapstructure:"driver"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

// KafkaSettings configures the account event producer.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// AdminSettings holds the reserved administrative credential.
type AdminSettings struct {
	Identifier   string        `mapstructure:"identifier"`
	Password     string        `mapstructure:"password"`
	PasswordHash string        `mapstructure:"password_hash"`
	TokenSecret  string        `mapstructure:"token_secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
}

// RulesSettings overrides the status state machine thresholds.
type RulesSettings struct {
	InactivityLimit time.Duration `mapstructure:"inactivity_limit"`
	FlagWindowDays  int           `mapstructure:"flag_window_days"`
	BlockThreshold  int           `mapstructure:"block_threshold"`
	BlockWindow     time.Duration `mapstructure:"block_window"`
}

type PasswordSettings struct {
	MinStrength int `mapstructure:"min_strength"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// RateLimitSettings configures the sliding window applied to login endpoints.
type RateLimitSettings struct {
	Enabled          bool          `mapstructure:"enabled"`
	WindowDuration   time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts int           `mapstructure:"login_max_attempts"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// DSN renders the PostgreSQL connection string.
func (p PostgresSettings) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.shutdown_timeout",
		"app.cors_allowed_origins",
		"storage.driver",
		"storage.operation_timeout",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"sqlite.path",
		"redis.enabled",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"lock.driver",
		"lock.ttl",
		"lock.retry_interval",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"admin.identifier",
		"admin.password",
		"admin.password_hash",
		"admin.token_secret",
		"admin.token_ttl",
		"rules.inactivity_limit",
		"rules.flag_window_days",
		"rules.block_threshold",
		"rules.block_window",
		"password.min_strength",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"rate_limit.enabled",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects combinations the service cannot start with.
func (c *AppConfig) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if c.Storage.Driver == "sqlite" && strings.TrimSpace(c.SQLite.Path) == "" {
		errs = append(errs, errors.New("sqlite.path: required for the sqlite driver"))
	}
	if c.Storage.OperationTimeout <= 0 {
		errs = append(errs, errors.New("storage.operation_timeout: must be positive"))
	}

	switch c.Lock.Driver {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("lock.driver: redis lock requires redis.enabled"))
		}
	default:
		errs = append(errs, fmt.Errorf("lock.driver: unknown driver %q", c.Lock.Driver))
	}

	if c.RateLimit.Enabled && !c.Redis.Enabled {
		errs = append(errs, errors.New("rate_limit.enabled: requires redis.enabled"))
	}

	if strings.TrimSpace(c.Admin.Identifier) == "" {
		errs = append(errs, errors.New("admin.identifier: required"))
	}
	if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		errs = append(errs, errors.New("admin: one of admin.password or admin.password_hash is required"))
	}
	if len(c.Admin.TokenSecret) < 32 {
		errs = append(errs, errors.New("admin.token_secret: must be at least 32 bytes"))
	}
	if c.Admin.TokenTTL <= 0 {
		errs = append(errs, errors.New("admin.token_ttl: must be positive"))
	}

	if c.Password.MinStrength < 0 || c.Password.MinStrength > 4 {
		errs = append(errs, errors.New("password.min_strength: must be between 0 and 4"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "credential-gate")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.shutdown_timeout", "10s")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.operation_timeout", "5s")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "gate")
	v.SetDefault("postgres.password", "gate_password")
	v.SetDefault("postgres.database", "gate")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("sqlite.path", "./data/gate.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("lock.driver", "memory")
	v.SetDefault("lock.ttl", "10s")
	v.SetDefault("lock.retry_interval", "25ms")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "gate")

	v.SetDefault("admin.identifier", "admin")
	v.SetDefault("admin.token_ttl", "30m")

	v.SetDefault("rules.inactivity_limit", "4320h") // 180 days
	v.SetDefault("rules.flag_window_days", 5)
	v.SetDefault("rules.block_threshold", 5)
	v.SetDefault("rules.block_window", "60s")

	v.SetDefault("password.min_strength", 0)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 10)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "credential-gate")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envPrefix+"_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
