package services

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quickvisa/intake-backend/internal/models"
	"github.com/quickvisa/intake-backend/pkg/intake"
	"github.com/quickvisa/intake-backend/pkg/passport"
	"github.com/sirupsen/logrus"
)

// ApplicationStore reads and writes visa applications
type ApplicationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.DraftApplication, error)
	ListByPhone(ctx context.Context, phoneNumber string) ([]models.DraftApplication, error)
	Update(ctx context.Context, draft *models.DraftApplication) error
}

// ApplicationService serves applicant reads and edits of their applications
type ApplicationService struct {
	store  ApplicationStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewApplicationService creates a new application service
func NewApplicationService(store ApplicationStore, logger *logrus.Logger) *ApplicationService {
	return &ApplicationService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns an application owned by phoneNumber. Applications belonging
// to someone else are reported as ErrApplicationNotOwned.
func (s *ApplicationService) Get(ctx context.Context, id uuid.UUID, phoneNumber string) (*models.DraftApplication, error) {
	draft, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.PhoneNumber != phoneNumber {
		return nil, ErrApplicationNotOwned
	}
	return draft, nil
}

// List returns the caller's applications, newest first
func (s *ApplicationService) List(ctx context.Context, phoneNumber string) ([]models.DraftApplication, error) {
	return s.store.ListByPhone(ctx, phoneNumber)
}

// Patch applies an applicant edit and returns the updated application with
// the names of the fields that changed. Passport data is merged field by
// field after normalization. Only drafts can be edited. The only status
// change allowed is draft to pending_payment, and it needs every required
// file on record, as Confirm does. document_status follows the files on
// record and can only be restated, not overridden.
func (s *ApplicationService) Patch(ctx context.Context, id uuid.UUID, phoneNumber string, patch models.ApplicationPatch) (*models.DraftApplication, []string, error) {
	if patch.IsEmpty() {
		return nil, nil, fmt.Errorf("%w: no updatable fields supplied", ErrValidation)
	}

	draft, err := s.Get(ctx, id, phoneNumber)
	if err != nil {
		return nil, nil, err
	}
	if !draft.IsDraft() {
		return nil, nil, ErrNotDraft
	}

	var changed []string

	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				return nil, nil, fmt.Errorf("%w: invalid email address", ErrValidation)
			}
		}
		draft.Email = email
		changed = append(changed, "email")
	}

	if patch.VisaType != nil {
		visaType := strings.TrimSpace(*patch.VisaType)
		if visaType == "" {
			return nil, nil, fmt.Errorf("%w: visa_type cannot be empty", ErrValidation)
		}
		draft.VisaType = visaType
		changed = append(changed, "visa_type")
	}

	if patch.Destination != nil {
		destination := strings.TrimSpace(*patch.Destination)
		if destination == "" {
			return nil, nil, fmt.Errorf("%w: destination cannot be empty", ErrValidation)
		}
		draft.Destination = destination
		changed = append(changed, "destination")
	}

	if patch.PassportData != nil {
		merged := passport.Merge(draft.PassportData.Ptr(), passport.NormalizeData(*patch.PassportData))
		draft.PassportData = models.NewNullPassport(&merged)
		changed = append(changed, "passport_data")
	}

	refreshDerived(draft)

	if patch.DocumentStatus != nil {
		switch *patch.DocumentStatus {
		case models.DocumentStatusIncomplete, models.DocumentStatusComplete:
			if *patch.DocumentStatus != draft.DocumentStatus {
				return nil, nil, fmt.Errorf("%w: document_status is %s for the files on record", ErrValidation, draft.DocumentStatus)
			}
		default:
			return nil, nil, fmt.Errorf("%w: unknown document_status %q", ErrValidation, *patch.DocumentStatus)
		}
		changed = append(changed, "document_status")
	}

	if patch.Status != nil {
		switch *patch.Status {
		case models.ApplicationStatusDraft:
		case models.ApplicationStatusPendingPayment:
			if missing := missingSlots(draft); len(missing) > 0 {
				return nil, nil, fmt.Errorf("%w: %v", ErrApplicationIncomplete, missing)
			}
			draft.Status = models.ApplicationStatusPendingPayment
		default:
			return nil, nil, fmt.Errorf("%w: status can only move from draft to pending_payment", ErrValidation)
		}
		changed = append(changed, "status")
	}

	draft.UpdatedAt = s.now()
	if err := s.store.Update(ctx, draft); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.logger.WithFields(logrus.Fields{
		"application_id": draft.ID,
		"phone":          phoneNumber,
		"fields":         changed,
	}).Info("Application updated")

	return draft, changed, nil
}

// Progress rebuilds the upload session view from the files on record
func (s *ApplicationService) Progress(ctx context.Context, id uuid.UUID, phoneNumber string) (*intake.Progress, error) {
	draft, err := s.Get(ctx, id, phoneNumber)
	if err != nil {
		return nil, err
	}

	session := intake.Resume(intake.Identity{
		DisplayName: draft.ApplicantName,
		PhoneNumber: draft.PhoneNumber,
		Email:       draft.Email,
		Nationality: draft.Nationality,
		Destination: draft.Destination,
		VisaType:    draft.VisaType,
	}, draft.Files.Slots())

	return &intake.Progress{
		ApplicationID:      draft.ID.String(),
		Nationality:        draft.Nationality,
		Steps:              session.Snapshot(),
		FilesUploaded:      draft.FilesUploaded,
		TotalFilesRequired: draft.TotalFilesRequired,
		Complete:           session.Complete(),
	}, nil
}

// Confirm hands a complete draft over to payment. Confirming an application
// already awaiting payment is a no-op.
func (s *ApplicationService) Confirm(ctx context.Context, id uuid.UUID, phoneNumber string) (*models.DraftApplication, error) {
	draft, err := s.Get(ctx, id, phoneNumber)
	if err != nil {
		return nil, err
	}

	switch draft.Status {
	case models.ApplicationStatusPendingPayment:
		return draft, nil
	case models.ApplicationStatusDraft:
	default:
		return nil, ErrNotDraft
	}

	if missing := missingSlots(draft); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrApplicationIncomplete, missing)
	}

	refreshDerived(draft)
	draft.Status = models.ApplicationStatusPendingPayment
	draft.UpdatedAt = s.now()
	if err := s.store.Update(ctx, draft); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.logger.WithFields(logrus.Fields{
		"application_id": draft.ID,
		"phone":          phoneNumber,
	}).Info("Application confirmed for payment")

	return draft, nil
}
