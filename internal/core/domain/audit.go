package domain

import "time"

// AuditAction identifies the account operation an audit event describes.
type AuditAction string

const (
	ActionLogin          AuditAction = "login"
	ActionLogout         AuditAction = "logout"
	ActionRefresh        AuditAction = "refresh"
	ActionPasswordChange AuditAction = "password_change"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	// OutcomeReplay marks a refresh attempt with an already-superseded token.
	OutcomeReplay = "replay"
)

// AuditEvent is one entry in an account's security activity trail.
type AuditEvent struct {
	UserID  string      `json:"userId"`
	Action  AuditAction `json:"action"`
	Outcome string      `json:"outcome"`
	Reason  string      `json:"reason,omitempty"`
	At      time.Time   `json:"at"`
}
