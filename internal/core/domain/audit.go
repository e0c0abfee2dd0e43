package domain

import "time"

// AuditAction is a type-safe identifier for the audit history.
type AuditAction string

const (
	ActionRedirect   AuditAction = "REDIRECT"
	ActionIsolate    AuditAction = "ISOLATE"
	ActionBlockMAC   AuditAction = "BLOCK_MAC"
	ActionQuarantine AuditAction = "QUARANTINE"
	ActionKick       AuditAction = "KICK"
	ActionRelease    AuditAction = "RELEASE"
	ActionLockdown   AuditAction = "LOCKDOWN"
	ActionLogin      AuditAction = "LOGIN"
	ActionEvidence   AuditAction = "EVIDENCE"
)

// AuditEntry records one enforcement or operator action. "loop" is the actor
// for automated decisions; manual actions carry the operator username.
type AuditEntry struct {
	ID        uint        `json:"id"`
	Actor     string      `json:"actor"`
	Action    AuditAction `json:"action"`
	Target    string      `json:"target"`
	Details   string      `json:"details"`
	Timestamp time.Time   `json:"timestamp"`
}
