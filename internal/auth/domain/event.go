package domain

import "time"

// EventType enumerates every authentication-relevant outcome the core
// records. The set is closed; new types are additive.
type EventType string

const (
	EventLoginSuccess      EventType = "login_success"
	EventLoginFailure      EventType = "login_failure"
	EventLockoutTriggered  EventType = "lockout_triggered"
	EventTokenIssued       EventType = "token_issued"
	EventTokenRevoked      EventType = "token_revoked"
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	EventPermissionDenied  EventType = "permission_denied"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is an immutable, append-only audit record. The core never
// mutates or deletes one; retention is an operator policy.
type SecurityEvent struct {
	ID        string
	Type      EventType
	Subject   string // user id, or the submitted username for unknown users
	Severity  Severity
	Details   map[string]any // serialized as JSON in the store
	CreatedAt time.Time
}
