package config

import (
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
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3002"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	// APIKey protects /api routes via the X-API-Key header. Empty disables auth.
	APIKey string `env:"API_KEY" envDefault:""`

	// Submission rate limiting per client (requests per second, 0 disables)
	SubmitRateLimit float64 `env:"SUBMIT_RATE_LIMIT" envDefault:"0"`
	SubmitRateBurst int     `env:"SUBMIT_RATE_BURST" envDefault:"10"`

	Database  DatabaseConfig
	Redis     RedisConfig `envPrefix:"REDIS_"`
	Queue     QueueConfig `envPrefix:"QUEUE_"`
	Counters  CountersConfig
	Agent     AgentConfig     `envPrefix:"AGENT_"`
	Notify    NotifyConfig    `envPrefix:"NOTIFY_"`
	Callback  CallbackConfig  `envPrefix:"CALLBACK_"`
	Scheduler SchedulerConfig `envPrefix:"SCHEDULER_"`
	Otel      OtelConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"adworker"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DATABASE" envDefault:"adworker"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_CONNS" envDefault:"10"`
	MaxIdleConns int           `env:"DB_MIN_CONNS" envDefault:"2"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
	SlowQuery    time.Duration `env:"DB_SLOW_QUERY" envDefault:"1s"`
	AutoMigrate  bool          `env:"DB_AUTO_MIGRATE" envDefault:"true"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// RedisConfig holds the shared key-value store settings
type RedisConfig struct {
	Addr      string `env:"ADDR" envDefault:""`
	Password  string `env:"PASSWORD" envDefault:""`
	DB        int    `env:"DB" envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"adworker"`
}

// IsConfigured returns true if a Redis address is set
func (r *RedisConfig) IsConfigured() bool {
	return r.Addr != ""
}

// Queue backends
const (
	QueueBackendPostgres = "postgres"
	QueueBackendRedis    = "redis"
	QueueBackendMemory   = "memory"
)

// QueueConfig holds durable queue and consumer settings
type QueueConfig struct {
	Backend           string        `env:"BACKEND" envDefault:"postgres"`
	BatchSize         int           `env:"BATCH_SIZE" envDefault:"10"`
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`
	VisibilityTimeout time.Duration `env:"VISIBILITY_TIMEOUT" envDefault:"10m"`
	// MaxAttempts is the number of deliveries before a message is dead-lettered (0 = unlimited)
	MaxAttempts    int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelay time.Duration `env:"RETRY_BASE_DELAY" envDefault:"10s"`
	Parallelism    int           `env:"PARALLELISM" envDefault:"1"`
	WorkerEnabled  bool          `env:"WORKER_ENABLED" envDefault:"true"`
}

// Counter backends
const (
	CountersBackendRedis  = "redis"
	CountersBackendMemory = "memory"
)

// CountersConfig holds the advisory concurrency counter settings
type CountersConfig struct {
	Backend string `env:"COUNTERS_BACKEND" envDefault:"redis"`
	// MaxConcurrency is reported by queue info; nothing enforces it
	MaxConcurrency int64 `env:"MAX_CONCURRENCY" envDefault:"3"`
}

// AgentConfig holds extraction provider settings. The chatgpt and openrouter
// identifiers share the OpenAI-compatible endpoint; gemini has its own.
type AgentConfig struct {
	OpenAIAPIKey  string `env:"OPENAI_API_KEY" envDefault:""`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL" envDefault:"openai/gpt-4o-mini"`
	// AppName is sent as X-Title for OpenRouter attribution
	AppName string `env:"APP_NAME" envDefault:"ad-worker"`

	GeminiAPIKey string `env:"GEMINI_API_KEY" envDefault:""`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	HTTPTimeout   time.Duration `env:"HTTP_TIMEOUT" envDefault:"120s"`
	Temperature   float64       `env:"TEMPERATURE" envDefault:"0"`
	MinTextLength int           `env:"MIN_TEXT_LENGTH" envDefault:"15"`
}

// Notification channels
const (
	NotifyChannelNone    = "none"
	NotifyChannelWebhook = "webhook"
	NotifyChannelMailgun = "mailgun"
)

// NotifyConfig holds notifier settings
type NotifyConfig struct {
	Channel        string        `env:"CHANNEL" envDefault:"none"`
	WebhookURL     string        `env:"WEBHOOK_URL" envDefault:""`
	WebhookFormat  string        `env:"WEBHOOK_FORMAT" envDefault:"slack"`
	MailgunDomain  string        `env:"MAILGUN_DOMAIN" envDefault:""`
	MailgunAPIKey  string        `env:"MAILGUN_API_KEY" envDefault:""`
	MailgunAPIBase string        `env:"MAILGUN_API_BASE" envDefault:""`
	From           string        `env:"FROM" envDefault:"ad-worker <noreply@example.com>"`
	To             string        `env:"TO" envDefault:""`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// IsConfigured returns true if the selected channel has everything it needs
func (n *NotifyConfig) IsConfigured() bool {
	switch n.Channel {
	case NotifyChannelWebhook:
		return n.WebhookURL != ""
	case NotifyChannelMailgun:
		return n.MailgunDomain != "" && n.MailgunAPIKey != "" && n.To != ""
	default:
		return false
	}
}

// CallbackConfig holds the downstream outcome consumer settings
type CallbackConfig struct {
	URL     string        `env:"URL" envDefault:""`
	APIKey  string        `env:"API_KEY" envDefault:""`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

// SchedulerConfig holds cron task settings
type SchedulerConfig struct {
	Enabled         bool          `env:"ENABLED" envDefault:"true"`
	RequeueInterval time.Duration `env:"REQUEUE_INTERVAL" envDefault:"1m"`
	GaugeInterval   time.Duration `env:"GAUGE_INTERVAL" envDefault:"15s"`
	TaskTimeout     time.Duration `env:"TASK_TIMEOUT" envDefault:"1m"`
}

// NewConfig loads configuration from environment variables
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	log.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.Int("port", cfg.ServerPort),
		slog.String("db_host", cfg.Database.Host),
		slog.String("queue_backend", cfg.Queue.Backend),
		slog.String("counters_backend", cfg.Counters.Backend),
		slog.String("notify_channel", cfg.Notify.Channel),
		slog.Bool("callback_configured", cfg.Callback.URL != ""),
	)

	return cfg, nil
}
