package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quickvisa/intake-backend/internal/database"
	"github.com/quickvisa/intake-backend/internal/metrics"
	"github.com/quickvisa/intake-backend/internal/models"
	"github.com/quickvisa/intake-backend/pkg/intake"
	"github.com/quickvisa/intake-backend/pkg/passport"
	"github.com/sirupsen/logrus"
)

// ErrDuplicateDraft means several drafts exist for one phone number and none
// of them can be chosen safely
var ErrDuplicateDraft = errors.New("multiple draft applications found for this applicant")

// DraftStore is the persistence the reconciliation engine needs
type DraftStore interface {
	WithinTx(ctx context.Context, fn func(tx database.DraftTx) error) error
}

// ReconciliationService merges uploads into the applicant's single draft application
type ReconciliationService struct {
	store   DraftStore
	metrics *metrics.Metrics
	logger  *logrus.Logger
	now     func() time.Time
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(store DraftStore, m *metrics.Metrics, logger *logrus.Logger) *ReconciliationService {
	return &ReconciliationService{
		store:   store,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Reconcile finds or creates the draft for identity.PhoneNumber and records
// file under slot. A non-nil extraction is merged field by field into the
// passport data; nil leaves it untouched. When slot already held a file, the
// replaced reference is returned so its stored object can be removed.
//
// The slot must be one the draft's own nationality requires; the nationality
// on later requests does not change the required set.
//
// The lookup and write run in one transaction holding row locks on the phone
// number's drafts. Two first uploads racing to create a draft are separated
// by the one-draft-per-phone unique index: the loser retries once and merges
// into the winner's row.
func (s *ReconciliationService) Reconcile(ctx context.Context, identity intake.Identity, slot intake.Slot, file models.FileReference, extraction *passport.Data) (*models.DraftApplication, *models.FileReference, error) {
	if identity.PhoneNumber == "" {
		return nil, nil, fmt.Errorf("%w: phone number is required", ErrValidation)
	}
	file.Slot = slot

	draft, replaced, created, err := s.reconcileOnce(ctx, identity, file, extraction)
	if errors.Is(err, database.ErrDraftConflict) {
		s.metrics.ObserveReconciliation(metrics.ReconcileRetried)
		draft, replaced, created, err = s.reconcileOnce(ctx, identity, file, extraction)
	}

	if err != nil {
		result := metrics.ReconcileFailed
		switch {
		case errors.Is(err, ErrDuplicateDraft):
			result = metrics.ReconcileDuplicate
		case errors.Is(err, ErrValidation):
			result = metrics.ReconcileRejected
		}
		s.metrics.ObserveReconciliation(result)
		s.logger.WithFields(logrus.Fields{
			"phone":       identity.PhoneNumber,
			"slot":        slot,
			"destination": identity.Destination,
			"file":        file.StoragePath,
		}).WithError(err).Error("Draft reconciliation failed")
		return nil, nil, err
	}

	result := metrics.ReconcileMerged
	if created {
		result = metrics.ReconcileCreated
	}
	s.metrics.ObserveReconciliation(result)

	s.logger.WithFields(logrus.Fields{
		"application_id": draft.ID,
		"phone":          identity.PhoneNumber,
		"slot":           slot,
		"files_uploaded": draft.FilesUploaded,
		"result":         result,
	}).Info("Draft reconciled")

	return draft, replaced, nil
}

func (s *ReconciliationService) reconcileOnce(ctx context.Context, identity intake.Identity, file models.FileReference, extraction *passport.Data) (*models.DraftApplication, *models.FileReference, bool, error) {
	var (
		draft    *models.DraftApplication
		replaced *models.FileReference
		created  bool
	)

	err := s.store.WithinTx(ctx, func(tx database.DraftTx) error {
		candidates, err := tx.LockDrafts(ctx, identity.PhoneNumber)
		if err != nil {
			return err
		}

		existing, err := selectDraft(candidates, extraction, identity.Destination)
		if err != nil {
			return err
		}

		now := s.now()
		if existing == nil {
			draft = newDraft(identity, now)
			created = true
		} else {
			draft = existing
			created = false
		}

		replaced, err = applyUpload(draft, identity, file, extraction, now)
		if err != nil {
			return err
		}

		if created {
			return tx.Insert(ctx, draft)
		}
		return tx.Update(ctx, draft)
	})
	if err != nil {
		return nil, nil, false, err
	}

	return draft, replaced, created, nil
}

// selectDraft picks the draft an upload belongs to. candidates are ordered
// newest first. A single candidate is always used. With several, a row whose
// passport number and destination match the upload wins, then the newest row
// without a passport number. Anything else is ambiguous.
func selectDraft(candidates []models.DraftApplication, extraction *passport.Data, destination string) (*models.DraftApplication, error) {
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return &candidates[0], nil
	}

	if extraction != nil && extraction.PassportNumber != "" {
		for i := range candidates {
			c := &candidates[i]
			if strings.EqualFold(c.PassportNumber(), extraction.PassportNumber) &&
				strings.EqualFold(c.Destination, destination) {
				return c, nil
			}
		}
	}

	for i := range candidates {
		if candidates[i].PassportNumber() == "" {
			return &candidates[i], nil
		}
	}

	return nil, ErrDuplicateDraft
}

func newDraft(identity intake.Identity, now time.Time) *models.DraftApplication {
	return &models.DraftApplication{
		ID:             uuid.New(),
		PhoneNumber:    identity.PhoneNumber,
		ApplicantName:  identity.DisplayName,
		Email:          identity.Email,
		Destination:    identity.Destination,
		VisaType:       identity.VisaType,
		Nationality:    identity.Nationality,
		Files:          models.FileMap{},
		DocumentStatus: models.DocumentStatusIncomplete,
		Status:         models.ApplicationStatusDraft,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// applyUpload records file on draft and returns the reference it replaced
func applyUpload(draft *models.DraftApplication, identity intake.Identity, file models.FileReference, extraction *passport.Data, now time.Time) (*models.FileReference, error) {
	if !intake.Contains(intake.RequiredSlots(draft.Nationality), file.Slot) {
		return nil, fmt.Errorf("%w: %s is not required for this application's %s passport", ErrValidation, file.Slot, draft.Nationality)
	}

	if draft.Files == nil {
		draft.Files = models.FileMap{}
	}
	var replaced *models.FileReference
	if previous, ok := draft.Files[file.Slot]; ok && previous.StoragePath != file.StoragePath {
		replaced = &previous
	}
	draft.Files[file.Slot] = file

	if extraction != nil && !extraction.IsEmpty() {
		merged := passport.Merge(draft.PassportData.Ptr(), *extraction)
		draft.PassportData = models.NewNullPassport(&merged)
	}

	if draft.ApplicantName == "" {
		draft.ApplicantName = identity.DisplayName
	}
	if draft.Email == "" {
		draft.Email = identity.Email
	}

	refreshDerived(draft)
	draft.UpdatedAt = now
	return replaced, nil
}

// refreshDerived recomputes the columns that follow from nationality, files
// and passport data
func refreshDerived(draft *models.DraftApplication) {
	required := intake.RequiredSlots(draft.Nationality)

	draft.IsBothSidesRequired = intake.RequiresBothSides(draft.Nationality)
	draft.TotalFilesRequired = len(required)
	draft.FilesUploaded = len(draft.Files)

	draft.ApplicationIdentifier = ""
	if number := draft.PassportNumber(); number != "" {
		draft.ApplicationIdentifier = number + "-" + draft.Destination
	}

	draft.DocumentStatus = models.DocumentStatusComplete
	for _, slot := range required {
		if _, ok := draft.Files[slot]; !ok {
			draft.DocumentStatus = models.DocumentStatusIncomplete
			break
		}
	}
}

// missingSlots lists required slots with no file on record, in upload order
func missingSlots(draft *models.DraftApplication) []intake.Slot {
	var missing []intake.Slot
	for _, slot := range intake.RequiredSlots(draft.Nationality) {
		if _, ok := draft.Files[slot]; !ok {
			missing = append(missing, slot)
		}
	}
	return missing
}
