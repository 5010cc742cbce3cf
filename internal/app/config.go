package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/progression-engine/internal/data/db"
	"github.com/yungbote/progression-engine/internal/observability"
	"github.com/yungbote/progression-engine/internal/platform/envutil"
	"github.com/yungbote/progression-engine/internal/platform/openai"
	"github.com/yungbote/progression-engine/internal/platform/redisx"
	"github.com/yungbote/progression-engine/internal/temporalx"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	LogMode  string `yaml:"log_mode"`
	LogLevel string `yaml:"log_level"`

	HTTP        HTTPConfig               `yaml:"http"`
	Auth        AuthConfig               `yaml:"auth"`
	DB          DBConfig                 `yaml:"db"`
	Redis       redisx.Config            `yaml:"redis"`
	OpenAI      openai.Config            `yaml:"openai"`
	Content     ContentConfig            `yaml:"content"`
	Progression ProgressionConfig        `yaml:"progression"`
	Temporal    temporalx.Config         `yaml:"temporal"`
	Otel        observability.OtelConfig `yaml:"otel"`
	Metrics     MetricsConfig            `yaml:"metrics"`
	Jobs        JobsConfig               `yaml:"jobs"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	// AllowLearnerHeader trusts X-Learner-Id. Never enable outside development.
	AllowLearnerHeader bool `yaml:"allow_learner_header"`
}

type DBConfig struct {
	Driver     string            `yaml:"driver"`
	SQLitePath string            `yaml:"sqlite_path"`
	Postgres   db.PostgresConfig `yaml:"postgres"`
}

type ContentConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	QuizQuestions   int           `yaml:"quiz_questions"`
	RetakeQuestions int           `yaml:"retake_questions"`
}

type ProgressionConfig struct {
	LockTimeout              time.Duration `yaml:"lock_timeout"`
	LockTTL                  time.Duration `yaml:"lock_ttl"`
	RemediationAfterAttempts int           `yaml:"remediation_after_attempts"`
	RemediationWorkers       int           `yaml:"remediation_workers"`
	RemediationTimeout       time.Duration `yaml:"remediation_timeout"`
	MaxMonths                int           `yaml:"max_months"`
	MaxDaysPerMonth          int           `yaml:"max_days_per_month"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type JobsConfig struct {
	OutboxRelayEvery  time.Duration `yaml:"outbox_relay_every"`
	OutboxGrace       time.Duration `yaml:"outbox_grace"`
	OutboxBatch       int           `yaml:"outbox_batch"`
	GaugeRefreshEvery time.Duration `yaml:"gauge_refresh_every"`
}

func DefaultConfig() Config {
	return Config{
		LogMode:  "development",
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		DB: DBConfig{
			Driver:     DriverPostgres,
			SQLitePath: "progression.db",
			Postgres: db.PostgresConfig{
				Host:    "localhost",
				Port:    "5432",
				User:    "postgres",
				Name:    "progression",
				SSLMode: "disable",
			},
		},
		Redis: redisx.Config{Channel: "progression:events"},
		OpenAI: openai.Config{
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
			MaxRetries:     2,
		},
		Content: ContentConfig{
			Timeout:         20 * time.Second,
			QuizQuestions:   10,
			RetakeQuestions: 15,
		},
		Progression: ProgressionConfig{
			LockTimeout:              10 * time.Second,
			LockTTL:                  30 * time.Second,
			RemediationAfterAttempts: 2,
			RemediationWorkers:       4,
			RemediationTimeout:       2 * time.Minute,
			MaxMonths:                24,
			MaxDaysPerMonth:          60,
		},
		Temporal: temporalx.DefaultConfig(),
		Otel: observability.OtelConfig{
			ServiceName: "progression-engine",
			Environment: "development",
			SampleRatio: 1,
		},
		Jobs: JobsConfig{
			OutboxRelayEvery:  30 * time.Second,
			OutboxGrace:       time.Minute,
			OutboxBatch:       100,
			GaugeRefreshEvery: time.Minute,
		},
	}
}

// LoadConfig layers DefaultConfig, the optional YAML file at path, a .env file
// in the working directory and the process environment, in that order.
func LoadConfig(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg := DefaultConfig()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.Temporal = cfg.Temporal.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)
	c.LogLevel = envutil.String("LOG_LEVEL", c.LogLevel)

	c.HTTP.Addr = envutil.String("PROGRESSION_HTTP_ADDR", c.HTTP.Addr)
	if port := envutil.String("PORT", ""); port != "" {
		c.HTTP.Addr = ":" + port
	}
	c.HTTP.CORSOrigins = envutil.List("PROGRESSION_CORS_ORIGINS", c.HTTP.CORSOrigins)
	c.HTTP.ShutdownTimeout = envutil.Duration("PROGRESSION_SHUTDOWN_TIMEOUT", c.HTTP.ShutdownTimeout)

	c.Auth.JWTSecret = envutil.String("JWT_SECRET_KEY", c.Auth.JWTSecret)
	c.Auth.AllowLearnerHeader = envutil.Bool("PROGRESSION_ALLOW_LEARNER_HEADER", c.Auth.AllowLearnerHeader)

	c.DB.Driver = strings.ToLower(envutil.String("PROGRESSION_DB_DRIVER", c.DB.Driver))
	c.DB.SQLitePath = envutil.String("PROGRESSION_SQLITE_PATH", c.DB.SQLitePath)
	pg := &c.DB.Postgres
	pg.DSN = envutil.String("POSTGRES_DSN", pg.DSN)
	pg.Host = envutil.String("POSTGRES_HOST", pg.Host)
	pg.Port = envutil.String("POSTGRES_PORT", pg.Port)
	pg.User = envutil.String("POSTGRES_USER", pg.User)
	pg.Password = envutil.String("POSTGRES_PASSWORD", pg.Password)
	pg.Name = envutil.String("POSTGRES_NAME", pg.Name)
	pg.SSLMode = envutil.String("POSTGRES_SSLMODE", pg.SSLMode)

	c.Redis.Addr = envutil.String("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envutil.String("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = envutil.Int("REDIS_DB", c.Redis.DB)
	c.Redis.Channel = envutil.String("REDIS_CHANNEL", c.Redis.Channel)

	c.OpenAI.APIKey = envutil.String("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = envutil.String("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.Model = envutil.String("OPENAI_MODEL", c.OpenAI.Model)
	c.OpenAI.TimeoutSeconds = envutil.Int("OPENAI_TIMEOUT_SECONDS", c.OpenAI.TimeoutSeconds)
	c.OpenAI.MaxRetries = envutil.Int("OPENAI_MAX_RETRIES", c.OpenAI.MaxRetries)

	c.Content.Timeout = envutil.Duration("PROGRESSION_CONTENT_TIMEOUT", c.Content.Timeout)
	c.Content.QuizQuestions = envutil.Int("PROGRESSION_QUIZ_QUESTIONS", c.Content.QuizQuestions)
	c.Content.RetakeQuestions = envutil.Int("PROGRESSION_RETAKE_QUESTIONS", c.Content.RetakeQuestions)

	p := &c.Progression
	p.LockTimeout = envutil.Duration("PROGRESSION_LOCK_TIMEOUT", p.LockTimeout)
	p.LockTTL = envutil.Duration("PROGRESSION_LOCK_TTL", p.LockTTL)
	p.RemediationAfterAttempts = envutil.Int("PROGRESSION_REMEDIATION_AFTER_ATTEMPTS", p.RemediationAfterAttempts)
	p.RemediationWorkers = envutil.Int("PROGRESSION_REMEDIATION_WORKERS", p.RemediationWorkers)
	p.RemediationTimeout = envutil.Duration("PROGRESSION_REMEDIATION_TIMEOUT", p.RemediationTimeout)
	p.MaxMonths = envutil.Int("PROGRESSION_MAX_MONTHS", p.MaxMonths)
	p.MaxDaysPerMonth = envutil.Int("PROGRESSION_MAX_DAYS_PER_MONTH", p.MaxDaysPerMonth)

	t := &c.Temporal
	t.Address = envutil.String("TEMPORAL_ADDRESS", t.Address)
	t.Namespace = envutil.String("TEMPORAL_NAMESPACE", t.Namespace)
	t.TaskQueue = envutil.String("TEMPORAL_TASK_QUEUE", t.TaskQueue)
	t.ClientCertPath = envutil.String("TEMPORAL_TLS_CERT", t.ClientCertPath)
	t.ClientKeyPath = envutil.String("TEMPORAL_TLS_KEY", t.ClientKeyPath)
	t.ClientCAPath = envutil.String("TEMPORAL_TLS_CA", t.ClientCAPath)
	t.AutoRegisterNamespace = envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", t.AutoRegisterNamespace)
	t.RetentionDays = envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", t.RetentionDays)
	t.DialTimeout = envutil.Duration("TEMPORAL_DIAL_TIMEOUT", t.DialTimeout)
	t.DialMaxWait = envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", t.DialMaxWait)
	t.WorkerConcurrency = envutil.Int("TEMPORAL_WORKER_CONCURRENCY", t.WorkerConcurrency)

	o := &c.Otel
	o.Enabled = envutil.Bool("OTEL_ENABLED", o.Enabled)
	o.ServiceName = envutil.String("OTEL_SERVICE_NAME", o.ServiceName)
	o.Environment = envutil.String("OTEL_ENVIRONMENT", o.Environment)
	o.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", o.Endpoint)
	o.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", o.Insecure)
	o.SampleRatio = envutil.Float("OTEL_SAMPLE_RATIO", o.SampleRatio)

	c.Metrics.Enabled = envutil.Bool("METRICS_ENABLED", c.Metrics.Enabled)

	j := &c.Jobs
	j.OutboxRelayEvery = envutil.Duration("PROGRESSION_OUTBOX_RELAY_EVERY", j.OutboxRelayEvery)
	j.OutboxGrace = envutil.Duration("PROGRESSION_OUTBOX_GRACE", j.OutboxGrace)
	j.OutboxBatch = envutil.Int("PROGRESSION_OUTBOX_BATCH", j.OutboxBatch)
	j.GaugeRefreshEvery = envutil.Duration("PROGRESSION_GAUGE_REFRESH_EVERY", j.GaugeRefreshEvery)
}

func (c Config) Validate() error {
	var errs []error
	switch c.DB.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.DB.Postgres.DSN) == "" && strings.TrimSpace(c.DB.Postgres.Host) == "" {
			errs = append(errs, fmt.Errorf("db.postgres: host or dsn is required"))
		}
	case DriverSQLite:
		if strings.TrimSpace(c.DB.SQLitePath) == "" {
			errs = append(errs, fmt.Errorf("db.sqlite_path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("db.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DB.Driver))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" && !c.Auth.AllowLearnerHeader {
		errs = append(errs, fmt.Errorf("auth: jwt_secret is required unless allow_learner_header is set"))
	}
	if c.Content.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("content.timeout must be positive"))
	}
	if c.Content.QuizQuestions < 3 || c.Content.RetakeQuestions < 3 {
		errs = append(errs, fmt.Errorf("content: quizzes need at least 3 questions"))
	}
	if c.Progression.RemediationAfterAttempts < 1 {
		errs = append(errs, fmt.Errorf("progression.remediation_after_attempts must be >= 1"))
	}
	if c.Progression.MaxMonths < 1 || c.Progression.MaxDaysPerMonth < 1 {
		errs = append(errs, fmt.Errorf("progression: plan size limits must be >= 1"))
	}
	if c.Jobs.OutboxRelayEvery <= 0 || c.Jobs.GaugeRefreshEvery <= 0 {
		errs = append(errs, fmt.Errorf("jobs: intervals must be positive"))
	}
	return errors.Join(errs...)
}
