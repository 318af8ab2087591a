package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"

	"github.com/aatumaykin/leadbot/internal/model"
)

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML, applies defaults for keys the file leaves out and
// expands environment variables.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg, md)

	if err := expandEnvVars(&cfg); err != nil {
		return nil, fmt.Errorf("failed to expand environment variables: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg, toml.MetaData{})
	_ = expandEnvVars(&cfg)
	return &cfg
}

// Validate returns every problem found in the configuration.
func (c *Config) Validate() []error {
	var errors []error

	// Agent parameters follow the same rules as the persisted row
	for _, err := range c.AgentSeed().Validate() {
		errors = append(errors, fmt.Errorf("agent: %w", err))
	}

	// Storage
	if err := validatePath(c.Storage.Path, "storage.path"); err != nil {
		errors = append(errors, err)
	}

	// Run lock
	switch c.Lock.Backend {
	case "sqlite", "memory":
	case "redis":
		if err := validateURL(c.Redis.URL, "redis.url", "redis", "rediss"); err != nil {
			errors = append(errors, err)
		}
	case "postgres":
		if c.Postgres.DSN == "" {
			errors = append(errors, fmt.Errorf("postgres.dsn is required when lock.backend is 'postgres'"))
		}
	default:
		errors = append(errors, fmt.Errorf("invalid lock.backend: %s (expected: sqlite, redis, postgres, memory)", c.Lock.Backend))
	}
	if c.Lock.TTL <= 0 {
		errors = append(errors, fmt.Errorf("lock.ttl must be > 0"))
	}

	// Oracle
	switch c.Oracle.Backend {
	case "static":
	case "llm":
		if err := validateURL(c.LLM.BaseURL, "llm.base_url", "http", "https"); err != nil {
			errors = append(errors, err)
		}
		if c.LLM.APIKey != "" {
			if err := validateAPIKey(c.LLM.APIKey, "llm.api_key"); err != nil {
				errors = append(errors, err)
			}
		}
		if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
			errors = append(errors, fmt.Errorf("llm.temperature must be within [0, 2] (got %v)", c.LLM.Temperature))
		}
	default:
		errors = append(errors, fmt.Errorf("invalid oracle.backend: %s (expected: llm, static)", c.Oracle.Backend))
	}

	// Transport
	switch c.Transport.Backend {
	case "log":
	case "smtp":
		if c.SMTP.Host == "" {
			errors = append(errors, fmt.Errorf("smtp.host is required when transport.backend is 'smtp'"))
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			errors = append(errors, fmt.Errorf("smtp.port must be within [1, 65535] (got %d)", c.SMTP.Port))
		}
		if c.SMTP.From == "" {
			errors = append(errors, fmt.Errorf("smtp.from is required when transport.backend is 'smtp'"))
		}
		switch strings.ToLower(c.SMTP.TLSPolicy) {
		case "mandatory", "opportunistic", "none":
		default:
			errors = append(errors, fmt.Errorf("invalid smtp.tls_policy: %s (expected: mandatory, opportunistic, none)", c.SMTP.TLSPolicy))
		}
	default:
		errors = append(errors, fmt.Errorf("invalid transport.backend: %s (expected: smtp, log)", c.Transport.Backend))
	}

	// Admin API
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		errors = append(errors, fmt.Errorf("http.listen is required when http is enabled"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errors = append(errors, fmt.Errorf("metrics.path must start with '/' (got %q)", c.Metrics.Path))
	}

	// Telegram alerts
	if c.Notify.TelegramEnabled {
		if c.Notify.TelegramToken == "" {
			errors = append(errors, fmt.Errorf("notify.telegram_token is required when telegram is enabled"))
		} else if err := validateTelegramToken(c.Notify.TelegramToken); err != nil {
			errors = append(errors, err)
		}
		if len(c.Notify.TelegramChatIDs) == 0 {
			errors = append(errors, fmt.Errorf("notify.telegram_chat_ids cannot be empty when telegram is enabled"))
		}
	}

	// Cleanup
	if c.Cleanup.Enabled {
		if c.Cleanup.RetentionDays <= 0 {
			errors = append(errors, fmt.Errorf("cleanup.retention_days must be > 0 (got %d)", c.Cleanup.RetentionDays))
		}
		if _, err := cron.ParseStandard(c.Cleanup.Schedule); err != nil {
			errors = append(errors, fmt.Errorf("invalid cleanup.schedule %q: %w", c.Cleanup.Schedule, err))
		}
	}

	// Workers
	if c.Workers.PoolSize <= 0 {
		errors = append(errors, fmt.Errorf("workers.pool_size must be > 0 (got %d)", c.Workers.PoolSize))
	}
	if c.Workers.QueueSize <= 0 {
		errors = append(errors, fmt.Errorf("workers.queue_size must be > 0 (got %d)", c.Workers.QueueSize))
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}

	return errors
}

// AgentSeed converts the file into the initial agent_config row.
// The file only seeds the first start; afterwards the store is the source
// of truth.
func (c *Config) AgentSeed() model.AgentConfig {
	seed := model.DefaultAgentConfig()

	seed.DailyEmailLimit = c.Agent.DailyEmailLimit
	seed.HourlyEmailLimit = c.Agent.HourlyEmailLimit
	seed.BatchSize = c.Agent.BatchSize
	seed.MaxLeadErrors = c.Agent.MaxLeadErrors
	seed.AgentCheckInterval = c.Agent.CheckInterval
	seed.InboxCheckInterval = c.Agent.InboxCheckInterval

	seed.BusinessHoursStart = c.Schedule.BusinessHoursStart
	seed.BusinessHoursEnd = c.Schedule.BusinessHoursEnd
	seed.Timezone = c.Schedule.Timezone
	seed.ActiveDays = append([]int(nil), c.Schedule.ActiveDays...)
	seed.RespectBusinessHours = *c.Schedule.RespectBusinessHours

	seed.ErrorRateThreshold = c.Safety.ErrorRateThreshold
	seed.SafetyWindowSize = c.Safety.WindowSize
	seed.SafetyWindowDuration = c.Safety.WindowDuration
	seed.SafetyMinOutcomes = c.Safety.MinOutcomes
	seed.PauseOnHighErrorRate = *c.Safety.PauseOnHighErrorRate

	return seed
}

// Helper validation functions
func validateAPIKey(key, fieldName string) error {
	if key == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	if len(key) < 4 {
		return fmt.Errorf("%s is too short (minimum 4 characters, got %d)", fieldName, len(key))
	}

	return nil
}

func validateTelegramToken(token string) error {
	if token == "" {
		return fmt.Errorf("telegram token cannot be empty")
	}

	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return fmt.Errorf("telegram token has invalid format (expected format: <bot_id>:<token>, got: %s)", maskSecret(token))
	}

	botID := parts[0]
	botToken := parts[1]

	if len(botID) < 3 || len(botID) > 15 {
		return fmt.Errorf("telegram token has invalid bot ID length (expected 3-15 digits, got %d digits)", len(botID))
	}

	for _, r := range botID {
		if r < '0' || r > '9' {
			return fmt.Errorf("telegram token has invalid bot ID (expected digits only, got: %s)", botID)
		}
	}

	if len(botToken) < 10 || len(botToken) > 50 {
		return fmt.Errorf("telegram token has invalid token length (expected 10-50 characters, got %d)", len(botToken))
	}

	return nil
}

func validatePath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	if path == ":memory:" || strings.HasPrefix(path, "~") {
		return nil
	}

	if strings.Contains(path, "..") {
		return fmt.Errorf("%s contains potentially dangerous path traversal sequence", fieldName)
	}

	return nil
}

func validateURL(raw, fieldName string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %s", fieldName, maskURL(raw))
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s has unsupported scheme %q (expected: %s)", fieldName, u.Scheme, strings.Join(schemes, ", "))
}

// expandEnvVars expands ${VAR} references in string fields.
func expandEnvVars(c *Config) error {
	fields := []*string{
		&c.Storage.Path,
		&c.Redis.URL,
		&c.Postgres.DSN,
		&c.LLM.BaseURL,
		&c.LLM.APIKey,
		&c.LLM.Model,
		&c.SMTP.Host,
		&c.SMTP.Username,
		&c.SMTP.Password,
		&c.SMTP.From,
		&c.HTTP.Listen,
		&c.HTTP.AuthToken,
		&c.Notify.TelegramToken,
		&c.Logging.Output,
	}
	for _, f := range fields {
		if strings.HasPrefix(*f, "${") {
			*f = expandEnv(*f)
		}
	}

	// Paths
	c.Storage.Path = expandHome(c.Storage.Path)
	c.Logging.Output = expandHome(c.Logging.Output)

	return nil
}

// expandEnv expands a ${VAR} or ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		key := parts[0]
		defaultVal := parts[1]
		if val := os.Getenv(key); val != "" {
			return val
		}
		return defaultVal
	}

	// No default
	return os.Getenv(content)
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
