package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/quickvisa/intake-backend/internal/models"
)

const uniqueViolation = "23505"

const draftColumns = `
	id, phone_number, applicant_name, email, destination, visa_type, nationality,
	passport_data, files, files_uploaded, total_files_required, is_both_sides_required,
	application_identifier, document_status, status, created_at, updated_at`

// DraftTx is the view of visa_applications available inside a reconciliation
// transaction
type DraftTx interface {
	LockDrafts(ctx context.Context, phoneNumber string) ([]models.DraftApplication, error)
	Insert(ctx context.Context, draft *models.DraftApplication) error
	Update(ctx context.Context, draft *models.DraftApplication) error
}

// DraftRepository handles visa_applications database operations
type DraftRepository struct {
	db DB
}

// NewDraftRepository creates a new draft repository
func NewDraftRepository(db DB) *DraftRepository {
	return &DraftRepository{db: db}
}

// WithinTx runs fn in a transaction. The transaction commits when fn returns
// nil and rolls back otherwise.
func (r *DraftRepository) WithinTx(ctx context.Context, fn func(tx DraftTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&draftTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapWriteError(err))
	}
	return nil
}

// GetByID returns an application by id
func (r *DraftRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DraftApplication, error) {
	query := `SELECT ` + draftColumns + ` FROM visa_applications WHERE id = $1`

	var draft models.DraftApplication
	if err := r.db.GetContext(ctx, &draft, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return &draft, nil
}

// ListByPhone returns every application for a phone number, newest first
func (r *DraftRepository) ListByPhone(ctx context.Context, phoneNumber string) ([]models.DraftApplication, error) {
	query := `SELECT ` + draftColumns + ` FROM visa_applications
		WHERE phone_number = $1
		ORDER BY created_at DESC`

	drafts := []models.DraftApplication{}
	if err := r.db.SelectContext(ctx, &drafts, query, phoneNumber); err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return drafts, nil
}

// Update writes every mutable column of an application
func (r *DraftRepository) Update(ctx context.Context, draft *models.DraftApplication) error {
	return updateDraft(ctx, r.db, draft)
}

type draftTx struct {
	tx *sqlx.Tx
}

// LockDrafts selects the phone number's open drafts and holds row locks on
// them until the transaction ends
func (t *draftTx) LockDrafts(ctx context.Context, phoneNumber string) ([]models.DraftApplication, error) {
	query := `SELECT ` + draftColumns + ` FROM visa_applications
		WHERE phone_number = $1 AND status = 'draft'
		ORDER BY created_at DESC
		FOR UPDATE`

	drafts := []models.DraftApplication{}
	if err := t.tx.SelectContext(ctx, &drafts, query, phoneNumber); err != nil {
		return nil, fmt.Errorf("failed to lock drafts: %w", err)
	}
	return drafts, nil
}

func (t *draftTx) Insert(ctx context.Context, draft *models.DraftApplication) error {
	query := `
		INSERT INTO visa_applications (
			id, phone_number, applicant_name, email, destination, visa_type, nationality,
			passport_data, files, files_uploaded, total_files_required, is_both_sides_required,
			application_identifier, document_status, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err := t.tx.ExecContext(ctx, query,
		draft.ID,
		draft.PhoneNumber,
		draft.ApplicantName,
		draft.Email,
		draft.Destination,
		draft.VisaType,
		draft.Nationality,
		draft.PassportData,
		draft.Files,
		draft.FilesUploaded,
		draft.TotalFilesRequired,
		draft.IsBothSidesRequired,
		draft.ApplicationIdentifier,
		draft.DocumentStatus,
		draft.Status,
		draft.CreatedAt,
		draft.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert draft: %w", mapWriteError(err))
	}
	return nil
}

func (t *draftTx) Update(ctx context.Context, draft *models.DraftApplication) error {
	return updateDraft(ctx, t.tx, draft)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func updateDraft(ctx context.Context, db execer, draft *models.DraftApplication) error {
	query := `
		UPDATE visa_applications SET
			applicant_name = $2,
			email = $3,
			destination = $4,
			visa_type = $5,
			nationality = $6,
			passport_data = $7,
			files = $8,
			files_uploaded = $9,
			total_files_required = $10,
			is_both_sides_required = $11,
			application_identifier = $12,
			document_status = $13,
			status = $14,
			updated_at = $15
		WHERE id = $1
	`

	result, err := db.ExecContext(ctx, query,
		draft.ID,
		draft.ApplicantName,
		draft.Email,
		draft.Destination,
		draft.VisaType,
		draft.Nationality,
		draft.PassportData,
		draft.Files,
		draft.FilesUploaded,
		draft.TotalFilesRequired,
		draft.IsBothSidesRequired,
		draft.ApplicationIdentifier,
		draft.DocumentStatus,
		draft.Status,
		draft.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", mapWriteError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// mapWriteError turns a unique violation on the one-draft index into ErrDraftConflict
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDraftConflict
	}
	return err
}
