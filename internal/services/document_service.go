package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/quickvisa/intake-backend/internal/metrics"
	"github.com/quickvisa/intake-backend/internal/models"
	"github.com/quickvisa/intake-backend/internal/storage"
	"github.com/quickvisa/intake-backend/internal/utils"
	"github.com/quickvisa/intake-backend/pkg/intake"
	"github.com/quickvisa/intake-backend/pkg/passport"
	"github.com/quickvisa/intake-backend/pkg/vision"
	"github.com/sirupsen/logrus"
)

// FileStore keeps uploaded document files
type FileStore interface {
	Store(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Reconciler merges an accepted upload into the applicant's draft and
// returns the file reference the upload replaced, if any
type Reconciler interface {
	Reconcile(ctx context.Context, identity intake.Identity, slot intake.Slot, file models.FileReference, extraction *passport.Data) (*models.DraftApplication, *models.FileReference, error)
}

// DocumentConfig holds upload limits
type DocumentConfig struct {
	MaxUploadSize  int64
	StorageTimeout time.Duration
	VisionTimeout  time.Duration
}

// UploadInput is one document upload as received from the client
type UploadInput struct {
	Identity  intake.Identity
	FieldName string
	FileName  string
	MimeType  string
	Data      []byte
}

// UploadResult is what an accepted upload produced
type UploadResult struct {
	Application *models.DraftApplication
	File        models.FileReference
	Extraction  intake.ExtractionReport
}

// DocumentService validates, stores, extracts and reconciles document uploads
type DocumentService struct {
	files      FileStore
	extractor  vision.Extractor
	reconciler Reconciler
	metrics    *metrics.Metrics
	logger     *logrus.Logger
	config     DocumentConfig
	now        func() time.Time
}

// NewDocumentService creates a new document service
func NewDocumentService(files FileStore, extractor vision.Extractor, reconciler Reconciler, m *metrics.Metrics, logger *logrus.Logger, cfg DocumentConfig) *DocumentService {
	return &DocumentService{
		files:      files,
		extractor:  extractor,
		reconciler: reconciler,
		metrics:    m,
		logger:     logger,
		config:     cfg,
		now:        time.Now,
	}
}

// Upload runs one document through the pipeline. Validation failures wrap
// ErrValidation and leave no trace. A failed extraction is reported in the
// result, not returned. Storage and database failures wrap ErrPersistence;
// the stored file is removed when the draft could not be written.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	slot, mimeType, err := s.validate(in)
	if err != nil {
		s.metrics.ObserveUpload(in.FieldName, metrics.UploadRejected)
		return nil, err
	}

	fields := logrus.Fields{
		"phone":       in.Identity.PhoneNumber,
		"slot":        slot,
		"destination": in.Identity.Destination,
		"nationality": in.Identity.Nationality,
		"file_name":   in.FileName,
	}

	random, err := utils.RandomSuffix()
	if err != nil {
		s.metrics.ObserveUpload(slot.String(), metrics.UploadFailed)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	uploadedAt := s.now()
	file := models.FileReference{
		Slot:             slot,
		StoragePath:      storage.Key(in.Identity.PhoneNumber, slot.String(), in.FileName, mimeType, random, uploadedAt),
		OriginalFileName: in.FileName,
		MimeType:         mimeType,
		ByteSize:         int64(len(in.Data)),
		UploadedAt:       uploadedAt,
	}
	fields["file"] = file.StoragePath

	if err := s.store(ctx, file.StoragePath, in.Data); err != nil {
		s.metrics.ObserveUpload(slot.String(), metrics.UploadFailed)
		s.logger.WithFields(fields).WithError(err).Error("Failed to store document")
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	report, extraction := s.extract(ctx, slot, mimeType, in.Data, fields)

	if err := ctx.Err(); err != nil {
		s.discard(ctx, file.StoragePath, fields)
		s.metrics.ObserveUpload(slot.String(), metrics.UploadFailed)
		return nil, err
	}

	draft, replaced, err := s.reconciler.Reconcile(ctx, in.Identity, slot, file, extraction)
	if err != nil {
		s.discard(ctx, file.StoragePath, fields)
		s.metrics.ObserveUpload(slot.String(), metrics.UploadFailed)
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if replaced != nil {
		s.discard(ctx, replaced.StoragePath, fields)
	}

	s.metrics.ObserveUpload(slot.String(), metrics.UploadAccepted)
	s.logger.WithFields(fields).WithFields(logrus.Fields{
		"application_id":       draft.ID,
		"extraction_attempted": report.Attempted,
		"extraction_succeeded": report.Succeeded,
	}).Info("Document accepted")

	return &UploadResult{
		Application: draft,
		File:        file,
		Extraction:  report,
	}, nil
}

func (s *DocumentService) validate(in UploadInput) (intake.Slot, string, error) {
	if len(in.Data) == 0 {
		return "", "", fmt.Errorf("%w: no file uploaded", ErrValidation)
	}

	if s.config.MaxUploadSize > 0 && int64(len(in.Data)) > s.config.MaxUploadSize {
		return "", "", fmt.Errorf("%w: file is %s, the limit is %s", ErrValidation,
			units.HumanSize(float64(len(in.Data))), units.HumanSize(float64(s.config.MaxUploadSize)))
	}

	mimeType := detectMimeType(in.MimeType, in.Data)
	if !strings.HasPrefix(mimeType, "image/") {
		return "", "", fmt.Errorf("%w: only image files are accepted, got %s", ErrValidation, mimeType)
	}

	identity := in.Identity
	if identity.PhoneNumber == "" {
		return "", "", fmt.Errorf("%w: phone number is required", ErrValidation)
	}
	if identity.Destination == "" || identity.Nationality == "" || identity.VisaType == "" {
		return "", "", fmt.Errorf("%w: destination, nationality and visa type are required", ErrValidation)
	}

	slot, err := intake.ParseSlot(in.FieldName)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q is not a document slot", ErrValidation, in.FieldName)
	}
	if !intake.Contains(intake.RequiredSlots(identity.Nationality), slot) {
		return "", "", fmt.Errorf("%w: %s is not required for %s passports", ErrValidation, slot, identity.Nationality)
	}

	return slot, mimeType, nil
}

// detectMimeType trusts the declared type unless it is missing or generic
func detectMimeType(declared string, data []byte) string {
	if declared != "" {
		if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != "application/octet-stream" {
			return strings.ToLower(mediaType)
		}
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mediaType
}

func (s *DocumentService) store(ctx context.Context, key string, data []byte) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.config.StorageTimeout)
	defer cancel()
	return s.files.Store(storeCtx, key, data)
}

// extract asks the vision service for passport fields. Photos are skipped.
// An empty normalized result counts as a failure.
func (s *DocumentService) extract(ctx context.Context, slot intake.Slot, mimeType string, data []byte, fields logrus.Fields) (intake.ExtractionReport, *passport.Data) {
	var report intake.ExtractionReport
	if slot.IsPhoto() {
		return report, nil
	}
	report.Attempted = true

	role := vision.RoleMainPage
	if slot.IsLastPage() {
		role = vision.RoleLastPage
	}

	extractCtx, cancel := context.WithTimeout(ctx, s.config.VisionTimeout)
	defer cancel()

	started := s.now()
	raw, err := s.extractor.Extract(extractCtx, data, mimeType, role)
	var result passport.Data
	if err == nil {
		result = passport.Normalize(raw)
		if result.IsEmpty() {
			err = fmt.Errorf("%w: no passport fields recognised", vision.ErrExtractionFailed)
		}
	}
	s.metrics.ObserveExtraction(string(role), err == nil, s.now().Sub(started).Seconds())

	if err != nil {
		report.Error = err.Error()
		s.logger.WithFields(fields).WithField("role", role).WithError(err).Warn("Passport extraction failed, keeping upload")
		return report, nil
	}

	report.Succeeded = true
	return report, &result
}

// discard removes a stored file that no draft references: one whose upload
// did not complete, or one a newer upload replaced. It runs even when ctx is
// already done.
func (s *DocumentService) discard(ctx context.Context, key string, fields logrus.Fields) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.StorageTimeout)
	defer cancel()
	if err := s.files.Delete(cleanupCtx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.WithFields(fields).WithError(err).Error("Failed to remove orphaned document")
	}
}
