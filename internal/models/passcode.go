package models

import (
	"time"

	"github.com/google/uuid"
)

// Passcode is a hashed one-time code sent to a phone number
type Passcode struct {
	ID          uuid.UUID `db:"id"`
	PhoneNumber string    `db:"phone_number"`
	CodeHash    string    `db:"code_hash"`
	IPAddress   string    `db:"ip_address"`
	CreatedAt   time.Time `db:"created_at"`
}

// AuditEvent names the actions written to audit_logs
type AuditEvent string

const (
	AuditPasscodeRequested  AuditEvent = "passcode_requested"
	AuditPasscodeVerified   AuditEvent = "passcode_verified"
	AuditPasscodeFailed     AuditEvent = "passcode_failed"
	AuditRateLimitHit       AuditEvent = "rate_limit_exceeded"
	AuditDocumentUploaded   AuditEvent = "document_uploaded"
	AuditDocumentRejected   AuditEvent = "document_rejected"
	AuditApplicationUpdated AuditEvent = "application_updated"
)
