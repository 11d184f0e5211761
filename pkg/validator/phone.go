package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidLength indicates the full number is outside the E.164 range
	ErrInvalidLength = errors.New("phone number must have between 8 and 15 digits including the country code")

	// ErrInvalidCountryCode indicates a missing or malformed country code
	ErrInvalidCountryCode = errors.New("country code must be 1 to 3 digits, optionally prefixed with +")

	// ErrInvalidFormat indicates phone number contains invalid characters
	ErrInvalidFormat = errors.New("phone number can only contain digits")

	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")
)

const (
	minDigits = 8
	maxDigits = 15
)

var (
	// digitsRegex matches digits only
	digitsRegex = regexp.MustCompile(`^\d+$`)

	countryCodeRegex = regexp.MustCompile(`^\+?([1-9]\d{0,2})$`)
)

// PhoneValidator handles international phone number validation
type PhoneValidator struct{}

// NewPhoneValidator creates a new phone validator instance
func NewPhoneValidator() *PhoneValidator {
	return &PhoneValidator{}
}

// Combine joins a country code and a national number into the canonical
// "+<digits>" form used as the applicant key.
// Accepts "+91" or "91" and numbers like "098765 43210" or "(987) 654-3210".
// A single leading trunk 0 on the national number is dropped.
func (v *PhoneValidator) Combine(countryCode, national string) (string, error) {
	if strings.TrimSpace(national) == "" {
		return "", ErrEmptyPhone
	}

	match := countryCodeRegex.FindStringSubmatch(strings.TrimSpace(countryCode))
	if match == nil {
		return "", ErrInvalidCountryCode
	}

	digits := v.Sanitize(national)
	if !digitsRegex.MatchString(digits) {
		return "", ErrInvalidFormat
	}
	digits = strings.TrimPrefix(digits, "0")

	return v.Validate("+" + match[1] + digits)
}

// Validate checks a full international number and returns it as "+<digits>"
func (v *PhoneValidator) Validate(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	digits := v.Sanitize(phone)
	if !digitsRegex.MatchString(digits) {
		return "", ErrInvalidFormat
	}
	if digits[0] == '0' {
		return "", ErrInvalidCountryCode
	}
	if len(digits) < minDigits || len(digits) > maxDigits {
		return "", ErrInvalidLength
	}

	return "+" + digits, nil
}

// Sanitize removes separators and the leading plus
func (v *PhoneValidator) Sanitize(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")
	return replacer.Replace(strings.TrimSpace(phone))
}

// IsValid is a convenience method that returns true if phone is valid
func (v *PhoneValidator) IsValid(phone string) bool {
	_, err := v.Validate(phone)
	return err == nil
}

// MustValidate validates and panics if invalid (use for testing only)
func (v *PhoneValidator) MustValidate(phone string) string {
	normalized, err := v.Validate(phone)
	if err != nil {
		panic(fmt.Sprintf("invalid phone number %s: %v", phone, err))
	}
	return normalized
}
