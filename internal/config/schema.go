// Package config provides configuration loading and validation for leadbot.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation that reports every problem at once.
//
// Configuration structure:
//   - [agent]: send budgets, batch size, cycle interval
//   - [schedule]: business-hours window
//   - [safety]: error-rate breaker and dependency breakers
//   - [storage]: SQLite database
//   - [lock], [redis], [postgres]: run lock backend
//   - [oracle], [llm]: message drafting
//   - [transport], [smtp]: delivery
//   - [http], [metrics]: admin API and Prometheus endpoint
//   - [health], [notify]: health checks and Telegram alerts
//   - [cleanup], [workers]: retention and the worker pool
//   - [logging]: level, format, output
//
// Environment variables:
// Environment variables can be referenced using ${VAR} or ${VAR:default} syntax.
// For example: api_key = "${LEADBOT_LLM_API_KEY:ollama}"
package config

import "time"

// Config represents the main application configuration.
type Config struct {
	Agent     AgentConfig     `toml:"agent"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	Safety    SafetyConfig    `toml:"safety"`
	Storage   StorageConfig   `toml:"storage"`
	Lock      LockConfig      `toml:"lock"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Oracle    OracleConfig    `toml:"oracle"`
	LLM       LLMConfig       `toml:"llm"`
	Transport TransportConfig `toml:"transport"`
	SMTP      SMTPConfig      `toml:"smtp"`
	HTTP      HTTPConfig      `toml:"http"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Health    HealthConfig    `toml:"health"`
	Notify    NotifyConfig    `toml:"notify"`
	Cleanup   CleanupConfig   `toml:"cleanup"`
	Workers   WorkersConfig   `toml:"workers"`
	Logging   LoggingConfig   `toml:"logging"`
}

// AgentConfig holds the send budgets and the cycle cadence.
type AgentConfig struct {
	DailyEmailLimit    int           `toml:"daily_email_limit"`
	HourlyEmailLimit   int           `toml:"hourly_email_limit"`
	BatchSize          int           `toml:"batch_size"`
	MaxLeadErrors      int           `toml:"max_lead_errors"`
	CheckInterval      time.Duration `toml:"check_interval"`
	InboxCheckInterval time.Duration `toml:"inbox_check_interval"`
	// AutoStart moves the agent to running when serve starts.
	AutoStart bool `toml:"auto_start"`
}

// ScheduleConfig holds the business-hours window.
type ScheduleConfig struct {
	BusinessHoursStart   string `toml:"business_hours_start"`
	BusinessHoursEnd     string `toml:"business_hours_end"`
	Timezone             string `toml:"timezone"`
	ActiveDays           []int  `toml:"active_days"`
	RespectBusinessHours *bool  `toml:"respect_business_hours"`
}

// SafetyConfig holds the error-rate switch and dependency breakers.
type SafetyConfig struct {
	ErrorRateThreshold   float64       `toml:"error_rate_threshold"`
	WindowSize           int           `toml:"window_size"`
	WindowDuration       time.Duration `toml:"window_duration"`
	MinOutcomes          int           `toml:"min_outcomes"`
	PauseOnHighErrorRate *bool         `toml:"pause_on_high_error_rate"`

	OracleBreakerThreshold    int           `toml:"oracle_breaker_threshold"`
	OracleBreakerCooldown     time.Duration `toml:"oracle_breaker_cooldown"`
	TransportBreakerThreshold int           `toml:"transport_breaker_threshold"`
	TransportBreakerCooldown  time.Duration `toml:"transport_breaker_cooldown"`
}

// StorageConfig configures the SQLite database.
type StorageConfig struct {
	Path         string        `toml:"path"`
	BusyTimeout  time.Duration `toml:"busy_timeout"`
	MaxOpenConns int           `toml:"max_open_conns"`
}

// LockConfig selects the cycle lock backend.
type LockConfig struct {
	Backend string        `toml:"backend"` // sqlite | redis | postgres | memory
	Name    string        `toml:"name"`
	TTL     time.Duration `toml:"ttl"`
}

// RedisConfig is the Redis connection for the run lock.
type RedisConfig struct {
	URL    string `toml:"url"`
	Prefix string `toml:"prefix"`
}

// PostgresConfig is the PostgreSQL connection for the run lock.
type PostgresConfig struct {
	DSN string `toml:"dsn"`
}

// OracleConfig configures message drafting.
type OracleConfig struct {
	Backend       string        `toml:"backend"` // llm | static
	Timeout       time.Duration `toml:"timeout"`
	SenderName    string        `toml:"sender_name"`
	SenderCompany string        `toml:"sender_company"`
	SystemPrompt  string        `toml:"system_prompt"`

	Subject         string `toml:"subject_template"`
	FollowUpSubject string `toml:"followup_subject_template"`
	Body            string `toml:"body_template"`
	FollowUpBody    string `toml:"followup_body_template"`
}

// LLMConfig configures the OpenAI-compatible provider.
type LLMConfig struct {
	BaseURL           string        `toml:"base_url"`
	APIKey            string        `toml:"api_key"`
	Model             string        `toml:"model"`
	Temperature       float64       `toml:"temperature"`
	MaxTokens         int           `toml:"max_tokens"`
	Timeout           time.Duration `toml:"timeout"`
	RequestsPerMinute int           `toml:"requests_per_minute"`
	RetryAttempts     int           `toml:"retry_attempts"`
}

// TransportConfig selects the delivery backend.
type TransportConfig struct {
	Backend        string        `toml:"backend"` // smtp | log
	SendTimeout    time.Duration `toml:"send_timeout"`
	BlockedDomains []string      `toml:"blocked_domains"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host      string        `toml:"host"`
	Port      int           `toml:"port"`
	Username  string        `toml:"username"`
	Password  string        `toml:"password"`
	TLSPolicy string        `toml:"tls_policy"` // mandatory | opportunistic | none
	SSL       bool          `toml:"ssl"`
	From      string        `toml:"from"`
	FromName  string        `toml:"from_name"`
	ReplyTo   string        `toml:"reply_to"`
	Timeout   time.Duration `toml:"timeout"`
}

// HTTPConfig configures the admin API.
type HTTPConfig struct {
	Enabled      bool          `toml:"enabled"`
	Listen       string        `toml:"listen"`
	AuthToken    string        `toml:"auth_token"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled"`
	Path      string `toml:"path"`
	Namespace string `toml:"namespace"`
	Runtime   bool   `toml:"runtime"`
}

// HealthConfig configures the periodic health check.
type HealthConfig struct {
	Enabled         bool          `toml:"enabled"`
	CheckInterval   time.Duration `toml:"check_interval"`
	NoActivityAfter time.Duration `toml:"no_activity_after"`
	AlertCooldown   time.Duration `toml:"alert_cooldown"`
}

// NotifyConfig configures alert delivery.
type NotifyConfig struct {
	TelegramEnabled bool    `toml:"telegram_enabled"`
	TelegramToken   string  `toml:"telegram_token"`
	TelegramChatIDs []int64 `toml:"telegram_chat_ids"`
}

// CleanupConfig configures action log retention.
type CleanupConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Schedule      string `toml:"schedule"`
}

// WorkersConfig configures the worker pool.
type WorkersConfig struct {
	PoolSize    int           `toml:"pool_size"`
	QueueSize   int           `toml:"queue_size"`
	TaskTimeout time.Duration `toml:"task_timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level        string `toml:"level"`
	Format       string `toml:"format"`
	Output       string `toml:"output"`
	RedactEmails bool   `toml:"redact_emails"`
}
