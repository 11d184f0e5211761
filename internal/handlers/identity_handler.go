package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quickvisa/intake-backend/internal/metrics"
	"github.com/quickvisa/intake-backend/internal/services"
	"github.com/quickvisa/intake-backend/internal/utils"
	"github.com/quickvisa/intake-backend/pkg/intake"
	"github.com/quickvisa/intake-backend/pkg/jwt"
	"github.com/quickvisa/intake-backend/pkg/sms"
	"github.com/quickvisa/intake-backend/pkg/validator"
	"github.com/sirupsen/logrus"
)

// PasscodeIssuer issues and checks one-time passcodes
type PasscodeIssuer interface {
	Generate(phone, ipAddress string) (string, time.Time, error)
	Verify(phone, code string) error
}

// RateLimiter limits passcode requests
type RateLimiter interface {
	CheckPasscodeRateLimit(phone, ip string) error
	RecordPasscodeRequest(phone, ip string) error
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// IdentityHandler handles the passcode exchange that establishes an
// applicant's phone number and display name
type IdentityHandler struct {
	jwtService     *jwt.Service
	passcodes      PasscodeIssuer
	rateLimiter    RateLimiter
	phoneValidator *validator.PhoneValidator
	gateway        sms.Gateway
	audit          auditor
	metrics        *metrics.Metrics
	logger         *logrus.Logger
}

// NewIdentityHandler creates a new identity handler
func NewIdentityHandler(
	jwtService *jwt.Service,
	passcodes PasscodeIssuer,
	rateLimiter RateLimiter,
	phoneValidator *validator.PhoneValidator,
	gateway sms.Gateway,
	auditService *services.AuditService,
	m *metrics.Metrics,
	logger *logrus.Logger,
) *IdentityHandler {
	return &IdentityHandler{
		jwtService:     jwtService,
		passcodes:      passcodes,
		rateLimiter:    rateLimiter,
		phoneValidator: phoneValidator,
		gateway:        gateway,
		audit:          auditor{service: auditService, logger: logger},
		metrics:        m,
		logger:         logger,
	}
}

// SendCode handles POST /api/v1/identity/send-code
func (h *IdentityHandler) SendCode(c *gin.Context) {
	var req intake.SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Phone number and country code are required",
		})
		return
	}

	phone, err := h.phoneValidator.Combine(req.CountryCode, req.PhoneNumber)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_phone",
			Message: err.Error(),
		})
		return
	}

	clientIP := utils.GetRealIP(c)
	userAgent := utils.GetUserAgent(c)

	if err := h.rateLimiter.CheckPasscodeRateLimit(phone, clientIP); err != nil {
		var rateLimitErr *services.RateLimitError
		if errors.As(err, &rateLimitErr) {
			h.audit.rateLimitViolation(phone, clientIP, userAgent, rateLimitErr.Type, rateLimitErr.RetryAfter)
			h.metrics.ObservePasscode("rate_limited")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     rateLimitErr.Message,
				"retry_after": rateLimitErr.RetryAfter,
				"type":        rateLimitErr.Type,
			})
			return
		}
		h.logger.WithError(err).WithField("phone", phone).Error("Rate limit check failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "rate_limit_check_failed",
			Message: "Failed to check rate limit",
		})
		return
	}

	code, expiresAt, err := h.passcodes.Generate(phone, clientIP)
	if err != nil {
		h.audit.passcodeRequest(phone, clientIP, userAgent, false, "generation_failed")
		h.logger.WithError(err).WithField("phone", phone).Error("Failed to generate passcode")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "passcode_generation_failed",
			Message: "Failed to store passcode",
		})
		return
	}

	if err := h.rateLimiter.RecordPasscodeRequest(phone, clientIP); err != nil {
		// The passcode is already stored
		c.Error(err)
	}

	messageID, err := h.gateway.SendPasscode(c.Request.Context(), phone, code)
	if err != nil {
		h.audit.passcodeRequest(phone, clientIP, userAgent, false, "delivery_failed")
		h.logger.WithError(err).WithFields(logrus.Fields{
			"phone":   phone,
			"gateway": h.gateway.GetName(),
		}).Error("Failed to deliver passcode")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "passcode_send_failed",
			Message: "Failed to send passcode. Please try again.",
		})
		return
	}

	h.audit.passcodeRequest(phone, clientIP, userAgent, true, "")
	h.metrics.ObservePasscode("sent")
	h.logger.WithFields(logrus.Fields{
		"phone":      phone,
		"gateway":    h.gateway.GetName(),
		"message_id": messageID,
	}).Info("Passcode sent")

	resp := intake.SendCodeResponse{
		Success:   true,
		ExpiresAt: expiresAt,
	}
	if h.gateway.ExposesCode() {
		resp.Code = code
	}
	c.JSON(http.StatusOK, resp)
}

// VerifyCode handles POST /api/v1/identity/verify-code
func (h *IdentityHandler) VerifyCode(c *gin.Context) {
	var req intake.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Phone number, country code, code and display name are required",
		})
		return
	}

	phone, err := h.phoneValidator.Combine(req.CountryCode, req.PhoneNumber)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_phone",
			Message: err.Error(),
		})
		return
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Display name cannot be empty",
		})
		return
	}

	clientIP := utils.GetRealIP(c)
	userAgent := utils.GetUserAgent(c)

	if err := h.passcodes.Verify(phone, req.Code); err != nil {
		switch {
		case errors.Is(err, services.ErrPasscodeExpired):
			h.audit.passcodeVerification(phone, clientIP, userAgent, false, "expired")
			h.metrics.ObservePasscode("rejected")
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "passcode_expired",
				Message: "The code has expired. Please request a new one.",
				Code:    "PASSCODE_EXPIRED",
			})
		case errors.Is(err, services.ErrPasscodeInvalid), errors.Is(err, services.ErrNoPasscode):
			h.audit.passcodeVerification(phone, clientIP, userAgent, false, "invalid")
			h.metrics.ObservePasscode("rejected")
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_passcode",
				Message: "Invalid code",
				Code:    "INVALID_PASSCODE",
			})
		default:
			h.logger.WithError(err).WithField("phone", phone).Error("Passcode verification failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "verification_failed",
				Message: "Failed to verify code",
			})
		}
		return
	}

	token, err := h.jwtService.GenerateSessionToken(phone, displayName)
	if err != nil {
		h.logger.WithError(err).WithField("phone", phone).Error("Failed to issue session token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to create session",
		})
		return
	}

	h.audit.passcodeVerification(phone, clientIP, userAgent, true, "")
	h.metrics.ObservePasscode("verified")

	c.JSON(http.StatusOK, intake.VerifyCodeResponse{
		Success: true,
		Token:   token,
		User:    &intake.User{Name: displayName, PhoneNumber: phone},
	})
}

// VerifySession handles POST /api/v1/identity/verify-session
func (h *IdentityHandler) VerifySession(c *gin.Context) {
	var req intake.VerifySessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, intake.VerifySessionResponse{Error: "Token is required"})
		return
	}

	claims, err := h.jwtService.ValidateSessionToken(req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, intake.VerifySessionResponse{Error: "Invalid or expired session"})
		return
	}

	c.JSON(http.StatusOK, intake.VerifySessionResponse{
		Success: true,
		User:    &intake.User{Name: claims.Name, PhoneNumber: claims.PhoneNumber},
	})
}
