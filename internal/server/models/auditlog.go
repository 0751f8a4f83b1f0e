package models

import "time"

// AuditCategory groups audit entries and selects their retention period.
type AuditCategory string

const (
	CategorySecurityEvent AuditCategory = "security_event"
	CategoryAdminAction   AuditCategory = "admin_action"
	CategoryAuthEvent     AuditCategory = "auth_event"
	CategoryFileOperation AuditCategory = "file_operation"
	CategoryRateLimit     AuditCategory = "rate_limit"
	CategorySystemEvent   AuditCategory = "system_event"
)

// AuditSeverity is how urgently an entry deserves attention.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditStatus is the outcome of the audited action.
type AuditStatus string

const (
	StatusSuccess AuditStatus = "success"
	StatusFailure AuditStatus = "failure"
	StatusBlocked AuditStatus = "blocked"
)

// AuditLogEntry is one persisted audit record. Personal data only ever
// appears inside EncryptedFields, as ciphertext.
type AuditLogEntry struct {
	ID         string
	Category   AuditCategory
	Action     string
	Severity   AuditSeverity
	Status     AuditStatus
	Timestamp  time.Time
	IPHash     string
	UserID     string
	ResourceID string

	Details         map[string]string
	EncryptedFields map[string]string

	ExpiresAt time.Time
}

// AuditFilter narrows Query results. Zero values match everything.
type AuditFilter struct {
	Category   AuditCategory
	Action     string
	ResourceID string
	Since      time.Time
	Limit      int
}
