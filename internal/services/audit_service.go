package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quickvisa/intake-backend/internal/database"
	"github.com/quickvisa/intake-backend/internal/models"
	"github.com/quickvisa/intake-backend/internal/utils"
)

// AuditService handles audit logging for identity and upload events
type AuditService struct {
	db      database.DB
	enabled bool
}

// NewAuditService creates a new audit service. A disabled service accepts
// every call and writes nothing.
func NewAuditService(db database.DB, enabled bool) *AuditService {
	return &AuditService{
		db:      db,
		enabled: enabled,
	}
}

// AuditEntry is one row of audit_logs
type AuditEntry struct {
	PhoneNumber string
	Action      models.AuditEvent
	EntityType  string // "passcode", "application", "rate_limit"
	EntityID    string
	IPAddress   string
	UserAgent   string
	Details     map[string]interface{}
}

// LogPasscodeRequest logs a passcode send request
func (s *AuditService) LogPasscodeRequest(phone, ipAddress, userAgent string, success bool, reason string) error {
	details := map[string]interface{}{
		"success": success,
	}
	if reason != "" {
		details["reason"] = reason
	}

	return s.logEvent(AuditEntry{
		PhoneNumber: phone,
		Action:      models.AuditPasscodeRequested,
		EntityType:  "passcode",
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Details:     details,
	})
}

// LogPasscodeVerification logs a verification attempt
func (s *AuditService) LogPasscodeVerification(phone, ipAddress, userAgent string, success bool, failureReason string) error {
	action := models.AuditPasscodeVerified
	details := map[string]interface{}{}
	if !success {
		action = models.AuditPasscodeFailed
		details["failure_reason"] = failureReason
	}

	return s.logEvent(AuditEntry{
		PhoneNumber: phone,
		Action:      action,
		EntityType:  "passcode",
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Details:     details,
	})
}

// LogRateLimitViolation logs a rate limit violation event
func (s *AuditService) LogRateLimitViolation(phone, ipAddress, userAgent, limitType string, retryAfter time.Time) error {
	return s.logEvent(AuditEntry{
		PhoneNumber: phone,
		Action:      models.AuditRateLimitHit,
		EntityType:  "rate_limit",
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Details: map[string]interface{}{
			"limit_type":  limitType,
			"retry_after": retryAfter,
		},
	})
}

// LogDocumentUpload logs an accepted or rejected upload
func (s *AuditService) LogDocumentUpload(phone, applicationID, slot, ipAddress, userAgent string, accepted bool, details map[string]interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["slot"] = slot

	action := models.AuditDocumentUploaded
	if !accepted {
		action = models.AuditDocumentRejected
	}

	return s.logEvent(AuditEntry{
		PhoneNumber: phone,
		Action:      action,
		EntityType:  "application",
		EntityID:    applicationID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Details:     details,
	})
}

// LogApplicationUpdate logs a client change to an application
func (s *AuditService) LogApplicationUpdate(phone, applicationID, ipAddress, userAgent string, fields []string) error {
	return s.logEvent(AuditEntry{
		PhoneNumber: phone,
		Action:      models.AuditApplicationUpdated,
		EntityType:  "application",
		EntityID:    applicationID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		Details:     map[string]interface{}{"fields": fields},
	})
}

// logEvent writes one entry to the audit_logs table
func (s *AuditService) logEvent(entry AuditEntry) error {
	if !s.enabled {
		return nil
	}

	if entry.Details == nil {
		entry.Details = map[string]interface{}{}
	}
	entry.Details["device_info"] = utils.ParseUserAgent(entry.UserAgent)

	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `
		INSERT INTO audit_logs (phone_number, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`

	_, err = s.db.Exec(
		query,
		entry.PhoneNumber,
		string(entry.Action),
		entry.EntityType,
		entry.EntityID,
		entry.IPAddress,
		entry.UserAgent,
		string(details),
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}

	return nil
}
