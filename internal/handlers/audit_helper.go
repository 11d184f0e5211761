package handlers

import (
	"time"

	"github.com/quickvisa/intake-backend/internal/services"
	"github.com/sirupsen/logrus"
)

// auditor wraps the audit service so a failed audit write never fails a request
type auditor struct {
	service *services.AuditService
	logger  *logrus.Logger
}

func (a auditor) logError(operation string, err error) {
	if err != nil {
		a.logger.WithField("operation", operation).WithError(err).Error("Audit write failed")
	}
}

func (a auditor) passcodeRequest(phone, ipAddress, userAgent string, success bool, reason string) {
	a.logError("LogPasscodeRequest", a.service.LogPasscodeRequest(phone, ipAddress, userAgent, success, reason))
}

func (a auditor) passcodeVerification(phone, ipAddress, userAgent string, success bool, failureReason string) {
	a.logError("LogPasscodeVerification", a.service.LogPasscodeVerification(phone, ipAddress, userAgent, success, failureReason))
}

func (a auditor) rateLimitViolation(phone, ipAddress, userAgent, limitType string, retryAfter time.Time) {
	a.logError("LogRateLimitViolation", a.service.LogRateLimitViolation(phone, ipAddress, userAgent, limitType, retryAfter))
}

func (a auditor) documentUpload(phone, applicationID, slot, ipAddress, userAgent string, accepted bool, details map[string]interface{}) {
	a.logError("LogDocumentUpload", a.service.LogDocumentUpload(phone, applicationID, slot, ipAddress, userAgent, accepted, details))
}

func (a auditor) applicationUpdate(phone, applicationID, ipAddress, userAgent string, fields []string) {
	a.logError("LogApplicationUpdate", a.service.LogApplicationUpdate(phone, applicationID, ipAddress, userAgent, fields))
}
