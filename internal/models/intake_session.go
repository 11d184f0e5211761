package models

import (
	"time"

	"github.com/quickvisa/intake-backend/pkg/intake"
)

// IntakeSession is the short-lived server-side record of one form visit. It
// carries the identity fields so uploads can reference it instead of
// repeating them.
type IntakeSession struct {
	ID            string        `json:"id"`
	PhoneNumber   string        `json:"phone_number"`
	DisplayName   string        `json:"display_name"`
	Email         string        `json:"email,omitempty"`
	Destination   string        `json:"destination"`
	Nationality   string        `json:"nationality"`
	VisaType      string        `json:"visa_type"`
	RequiredSteps []intake.Slot `json:"required_steps"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
}

// Identity returns the applicant identity the session was opened with
func (s *IntakeSession) Identity() intake.Identity {
	return intake.Identity{
		DisplayName: s.DisplayName,
		PhoneNumber: s.PhoneNumber,
		Email:       s.Email,
		Nationality: s.Nationality,
		Destination: s.Destination,
		VisaType:    s.VisaType,
	}
}
