package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/aatumaykin/leadbot/internal/constants"
	"github.com/aatumaykin/leadbot/internal/model"
)

func boolPtr(b bool) *bool { return &b }

// applyDefaults fills in keys the file leaves out. Agent and safety numbers
// are checked against md rather than their zero value: an explicit 0 either
// means something (max_lead_errors, min_outcomes, error_rate_threshold) or
// must fail validation (the budgets, batch and window size).
func applyDefaults(c *Config, md toml.MetaData) {
	unset := func(section, key string) bool { return !md.IsDefined(section, key) }

	// Agent
	if unset("agent", "daily_email_limit") && c.Agent.DailyEmailLimit == 0 {
		c.Agent.DailyEmailLimit = model.DefaultDailyEmailLimit
	}
	if unset("agent", "hourly_email_limit") && c.Agent.HourlyEmailLimit == 0 {
		c.Agent.HourlyEmailLimit = model.DefaultHourlyEmailLimit
	}
	if unset("agent", "batch_size") && c.Agent.BatchSize == 0 {
		c.Agent.BatchSize = model.DefaultBatchSize
	}
	if unset("agent", "max_lead_errors") && c.Agent.MaxLeadErrors == 0 {
		c.Agent.MaxLeadErrors = model.DefaultMaxLeadErrors
	}
	if c.Agent.CheckInterval == 0 {
		c.Agent.CheckInterval = model.DefaultAgentCheckInterval
	}
	if c.Agent.InboxCheckInterval == 0 {
		c.Agent.InboxCheckInterval = model.DefaultInboxCheckInterval
	}

	// Schedule
	if c.Schedule.BusinessHoursStart == "" {
		c.Schedule.BusinessHoursStart = model.DefaultBusinessHoursStart
	}
	if c.Schedule.BusinessHoursEnd == "" {
		c.Schedule.BusinessHoursEnd = model.DefaultBusinessHoursEnd
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = model.DefaultTimezone
	}
	if len(c.Schedule.ActiveDays) == 0 {
		c.Schedule.ActiveDays = append([]int(nil), model.DefaultActiveDays...)
	}
	if c.Schedule.RespectBusinessHours == nil {
		c.Schedule.RespectBusinessHours = boolPtr(true)
	}

	// Safety
	if unset("safety", "error_rate_threshold") && c.Safety.ErrorRateThreshold == 0 {
		c.Safety.ErrorRateThreshold = model.DefaultErrorRateThreshold
	}
	if unset("safety", "window_size") && c.Safety.WindowSize == 0 {
		c.Safety.WindowSize = model.DefaultSafetyWindowSize
	}
	if unset("safety", "min_outcomes") && c.Safety.MinOutcomes == 0 {
		c.Safety.MinOutcomes = model.DefaultSafetyMinOutcomes
	}
	if c.Safety.PauseOnHighErrorRate == nil {
		c.Safety.PauseOnHighErrorRate = boolPtr(true)
	}
	if c.Safety.OracleBreakerThreshold == 0 {
		c.Safety.OracleBreakerThreshold = 5
	}
	if c.Safety.OracleBreakerCooldown == 0 {
		c.Safety.OracleBreakerCooldown = 30 * time.Second
	}
	if c.Safety.TransportBreakerThreshold == 0 {
		c.Safety.TransportBreakerThreshold = 5
	}
	if c.Safety.TransportBreakerCooldown == 0 {
		c.Safety.TransportBreakerCooldown = time.Minute
	}

	// Storage
	if c.Storage.Path == "" {
		c.Storage.Path = constants.DefaultDatabasePath
	}
	if c.Storage.BusyTimeout == 0 {
		c.Storage.BusyTimeout = 5 * time.Second
	}
	if c.Storage.MaxOpenConns == 0 {
		c.Storage.MaxOpenConns = 4
	}

	// Lock
	if c.Lock.Backend == "" {
		c.Lock.Backend = "sqlite"
	}
	if c.Lock.Name == "" {
		c.Lock.Name = constants.DefaultLockName
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = 10 * time.Minute
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "leadbot:lock:"
	}

	// Oracle
	if c.Oracle.Backend == "" {
		c.Oracle.Backend = "static"
	}
	if c.Oracle.Timeout == 0 {
		c.Oracle.Timeout = 30 * time.Second
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "http://localhost:11434/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "llama3.1"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.LLM.RetryAttempts == 0 {
		c.LLM.RetryAttempts = 3
	}

	// Transport
	if c.Transport.Backend == "" {
		c.Transport.Backend = "log"
	}
	if c.Transport.SendTimeout == 0 {
		c.Transport.SendTimeout = 30 * time.Second
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TLSPolicy == "" {
		c.SMTP.TLSPolicy = "mandatory"
	}
	if c.SMTP.Timeout == 0 {
		c.SMTP.Timeout = 30 * time.Second
	}

	// HTTP
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = "127.0.0.1:8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "leadbot"
	}

	// Health
	if c.Health.CheckInterval == 0 {
		c.Health.CheckInterval = 5 * time.Minute
	}
	if c.Health.NoActivityAfter == 0 {
		c.Health.NoActivityAfter = 30 * time.Minute
	}
	if c.Health.AlertCooldown == 0 {
		c.Health.AlertCooldown = time.Hour
	}

	// Cleanup
	if c.Cleanup.RetentionDays == 0 {
		c.Cleanup.RetentionDays = 90
	}
	if c.Cleanup.Schedule == "" {
		c.Cleanup.Schedule = "@daily"
	}

	// Workers
	if c.Workers.PoolSize == 0 {
		c.Workers.PoolSize = 2
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 16
	}
	if c.Workers.TaskTimeout == 0 {
		c.Workers.TaskTimeout = 15 * time.Minute
	}

	// Logging
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}
