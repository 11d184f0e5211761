package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quickvisa/intake-backend/internal/cache"
	"github.com/quickvisa/intake-backend/internal/models"
	"github.com/quickvisa/intake-backend/pkg/intake"
)

// IntakeSessionInput is what the applicant picks before uploading
type IntakeSessionInput struct {
	Destination string `json:"destination" binding:"required"`
	Nationality string `json:"nationality" binding:"required"`
	VisaType    string `json:"visaType" binding:"required"`
	Email       string `json:"email"`
}

// IntakeSessionService opens and resolves short-lived intake sessions
type IntakeSessionService struct {
	store cache.SessionStore
	ttl   time.Duration
	now   func() time.Time
}

// NewIntakeSessionService creates a new intake session service
func NewIntakeSessionService(store cache.SessionStore, ttl time.Duration) *IntakeSessionService {
	return &IntakeSessionService{
		store: store,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Create opens a session for the authenticated applicant
func (s *IntakeSessionService) Create(ctx context.Context, user intake.User, in IntakeSessionInput) (*models.IntakeSession, error) {
	in.Destination = strings.TrimSpace(in.Destination)
	in.Nationality = strings.TrimSpace(in.Nationality)
	in.VisaType = strings.TrimSpace(in.VisaType)
	in.Email = strings.TrimSpace(in.Email)

	if in.Destination == "" || in.Nationality == "" || in.VisaType == "" {
		return nil, fmt.Errorf("%w: destination, nationality and visa type are required", ErrValidation)
	}
	if in.Email != "" {
		if _, err := mail.ParseAddress(in.Email); err != nil {
			return nil, fmt.Errorf("%w: invalid email address", ErrValidation)
		}
	}

	now := s.now()
	session := &models.IntakeSession{
		ID:            uuid.New().String(),
		PhoneNumber:   user.PhoneNumber,
		DisplayName:   user.Name,
		Email:         in.Email,
		Destination:   in.Destination,
		Nationality:   in.Nationality,
		VisaType:      in.VisaType,
		RequiredSteps: intake.RequiredSlots(in.Nationality),
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}

	if err := s.store.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save intake session: %w", err)
	}
	return session, nil
}

// Get returns the caller's session. Sessions opened by another phone number
// are reported as missing.
func (s *IntakeSessionService) Get(ctx context.Context, id, phoneNumber string) (*models.IntakeSession, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.PhoneNumber != phoneNumber {
		return nil, cache.ErrSessionNotFound
	}
	return session, nil
}
