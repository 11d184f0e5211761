package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/quickvisa/intake-backend/internal/config"
	"github.com/quickvisa/intake-backend/internal/database"
)

// RateLimitService limits passcode requests per phone number and per IP
type RateLimitService struct {
	db     database.DB
	config RateLimitConfig
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxPhoneRequests int           // Max passcode requests per phone
	PhoneWindow      time.Duration // Time window for phone rate limit
	MaxIPRequests    int           // Max passcode requests per IP
	IPWindow         time.Duration // Time window for IP rate limit
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxPhoneRequests: 3,
		PhoneWindow:      10 * time.Minute,
		MaxIPRequests:    10,
		IPWindow:         time.Hour,
	}
}

// RateLimitConfigFrom converts the environment settings, keeping defaults
// for unset values
func RateLimitConfigFrom(cfg config.RateLimitConfig) RateLimitConfig {
	out := DefaultRateLimitConfig()
	if cfg.MaxPhoneRequests > 0 {
		out.MaxPhoneRequests = cfg.MaxPhoneRequests
	}
	if cfg.PhoneWindowMinutes > 0 {
		out.PhoneWindow = time.Duration(cfg.PhoneWindowMinutes) * time.Minute
	}
	if cfg.MaxIPRequests > 0 {
		out.MaxIPRequests = cfg.MaxIPRequests
	}
	if cfg.IPWindowMinutes > 0 {
		out.IPWindow = time.Duration(cfg.IPWindowMinutes) * time.Minute
	}
	return out
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(db database.DB, cfg RateLimitConfig) *RateLimitService {
	return &RateLimitService{
		db:     db,
		config: cfg,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "phone" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// CheckPasscodeRateLimit checks if a phone number or IP has exceeded rate limits
func (s *RateLimitService) CheckPasscodeRateLimit(phone, ip string) error {
	if phone != "" {
		if err := s.check(phone, "phone", s.config.MaxPhoneRequests, s.config.PhoneWindow,
			"Too many code requests for this phone number"); err != nil {
			return err
		}
	}

	if ip != "" {
		if err := s.check(ip, "ip", s.config.MaxIPRequests, s.config.IPWindow,
			"Too many code requests from this IP address"); err != nil {
			return err
		}
	}

	return nil
}

func (s *RateLimitService) check(identifier, identifierType string, max int, window time.Duration, message string) error {
	count, lastRequest, err := s.getRequestCount(identifier, identifierType, window)
	if err != nil {
		return fmt.Errorf("failed to check %s rate limit: %w", identifierType, err)
	}

	if count >= max {
		retryAfter := lastRequest.Add(window)
		return &RateLimitError{
			Message:    fmt.Sprintf("%s. Please try again after %s", message, retryAfter.Format("15:04:05")),
			RetryAfter: retryAfter,
			Type:       identifierType,
		}
	}
	return nil
}

// getRequestCount gets the number of requests within the time window
func (s *RateLimitService) getRequestCount(identifier, identifierType string, window time.Duration) (int, time.Time, error) {
	windowStart := time.Now().Add(-window)

	query := `
		SELECT COUNT(*), COALESCE(MAX(created_at), NOW())
		FROM passcode_rate_limits
		WHERE identifier = $1
		  AND identifier_type = $2
		  AND created_at > $3
	`

	var count int
	var lastRequest time.Time

	err := s.db.QueryRow(query, identifier, identifierType, windowStart).Scan(&count, &lastRequest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, err
	}

	return count, lastRequest, nil
}

// RecordPasscodeRequest records a passcode request for rate limiting
func (s *RateLimitService) RecordPasscodeRequest(phone, ip string) error {
	if phone != "" {
		if err := s.recordRequest(phone, "phone"); err != nil {
			return fmt.Errorf("failed to record phone request: %w", err)
		}
	}

	if ip != "" {
		if err := s.recordRequest(ip, "ip"); err != nil {
			return fmt.Errorf("failed to record IP request: %w", err)
		}
	}

	return nil
}

func (s *RateLimitService) recordRequest(identifier, identifierType string) error {
	query := `
		INSERT INTO passcode_rate_limits (identifier, identifier_type, created_at)
		VALUES ($1, $2, NOW())
	`

	_, err := s.db.Exec(query, identifier, identifierType)
	return err
}

// CleanupExpiredRateLimits removes records older than the longest window
func (s *RateLimitService) CleanupExpiredRateLimits() (int64, error) {
	maxWindow := s.config.IPWindow
	if s.config.PhoneWindow > maxWindow {
		maxWindow = s.config.PhoneWindow
	}

	query := `
		DELETE FROM passcode_rate_limits
		WHERE created_at < $1
	`

	result, err := s.db.Exec(query, time.Now().Add(-maxWindow))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limits: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
