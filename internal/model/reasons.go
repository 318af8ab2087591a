package model

// Reason codes written to ActionLogEntry.DecisionReason and returned in
// cycle summaries.
const (
	ReasonAgentDisabled        = "agent_disabled"
	ReasonLeadPaused           = "lead_paused"
	ReasonTerminalStatus       = "terminal_status"
	ReasonLeadError            = "lead_error"
	ReasonNotDue               = "not_due"
	ReasonFollowUpCap          = "follow_up_cap"
	ReasonOracleUnavailable    = "oracle_unavailable"
	ReasonTransportUnavailable = "transport_unavailable"
	ReasonDailyLimitExceeded   = "daily_limit_exceeded"
	ReasonHourlyLimitExceeded  = "hourly_limit_exceeded"
	ReasonInitialContact       = "initial_contact"
	ReasonFollowUpDue          = "follow_up_due"
	ReasonLeadChanged          = "lead_changed"
)
