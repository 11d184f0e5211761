package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/quickvisa/intake-backend/internal/models"
	"github.com/quickvisa/intake-backend/pkg/intake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var draftColumnNames = []string{
	"id", "phone_number", "applicant_name", "email", "destination", "visa_type", "nationality",
	"passport_data", "files", "files_uploaded", "total_files_required", "is_both_sides_required",
	"application_identifier", "document_status", "status", "created_at", "updated_at",
}

func setupDraftRepository(t *testing.T) (*DraftRepository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewDraftRepository(&PostgresDB{DB: sqlxDB}), mock
}

func draftRow(rows *sqlmock.Rows, id uuid.UUID, passportJSON []byte, filesJSON string, uploaded int) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(
		id.String(), "+919876543210", "Asha Rao", "", "United Arab Emirates", "tourist", "India",
		passportJSON, []byte(filesJSON), uploaded, 3, true,
		"", "incomplete", "draft", now, now,
	)
}

func TestDraftRepository_GetByID(t *testing.T) {
	repo, mock := setupDraftRepository(t)
	id := uuid.New()

	rows := draftRow(sqlmock.NewRows(draftColumnNames), id,
		[]byte(`{"passport_number":"X1234567","given_name":"JOHN","mother_name":null}`),
		`{"passportFront":{"slot":"passportFront","storage_path":"p/f.jpg","original_file_name":"f.jpg","mime_type":"image/jpeg","byte_size":10}}`,
		1)
	mock.ExpectQuery("SELECT (.+) FROM visa_applications WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(rows)

	draft, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, draft.ID)
	assert.True(t, draft.PassportData.Valid)
	assert.Equal(t, "X1234567", draft.PassportNumber())
	assert.Nil(t, draft.PassportData.Data.MotherName)
	require.Contains(t, draft.Files, intake.SlotPassportFront)
	assert.Equal(t, int64(10), draft.Files[intake.SlotPassportFront].ByteSize)
	assert.Equal(t, models.DocumentStatusIncomplete, draft.DocumentStatus)
	assert.Equal(t, models.ApplicationStatusDraft, draft.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_GetByID_NullPassport(t *testing.T) {
	repo, mock := setupDraftRepository(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM visa_applications").
		WithArgs(id).
		WillReturnRows(draftRow(sqlmock.NewRows(draftColumnNames), id, nil, `{}`, 0))

	draft, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, draft.PassportData.Valid)
	assert.Empty(t, draft.Files)
}

func TestDraftRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupDraftRepository(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM visa_applications").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(draftColumnNames))

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDraftRepository_WithinTx_LockAndInsert(t *testing.T) {
	repo, mock := setupDraftRepository(t)
	phone := "+919876543210"

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM visa_applications (.+) FOR UPDATE").
		WithArgs(phone).
		WillReturnRows(sqlmock.NewRows(draftColumnNames))
	mock.ExpectExec("INSERT INTO visa_applications").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	draft := &models.DraftApplication{
		ID:          uuid.New(),
		PhoneNumber: phone,
		Files:       models.FileMap{},
		Status:      models.ApplicationStatusDraft,
	}

	err := repo.WithinTx(context.Background(), func(tx DraftTx) error {
		drafts, err := tx.LockDrafts(context.Background(), phone)
		require.NoError(t, err)
		assert.Empty(t, drafts)
		return tx.Insert(context.Background(), draft)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_WithinTx_UniqueViolation(t *testing.T) {
	repo, mock := setupDraftRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO visa_applications").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := repo.WithinTx(context.Background(), func(tx DraftTx) error {
		return tx.Insert(context.Background(), &models.DraftApplication{ID: uuid.New()})
	})
	assert.ErrorIs(t, err, ErrDraftConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_WithinTx_RollsBackOnError(t *testing.T) {
	repo, mock := setupDraftRepository(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := repo.WithinTx(context.Background(), func(tx DraftTx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_Update(t *testing.T) {
	repo, mock := setupDraftRepository(t)
	draft := &models.DraftApplication{ID: uuid.New(), Email: "a@example.com", Files: models.FileMap{}}

	mock.ExpectExec("UPDATE visa_applications SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), draft))

	mock.ExpectExec("UPDATE visa_applications SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Update(context.Background(), draft), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDraftRepository_ListByPhone(t *testing.T) {
	repo, mock := setupDraftRepository(t)
	phone := "+919876543210"

	rows := sqlmock.NewRows(draftColumnNames)
	draftRow(rows, uuid.New(), nil, `{}`, 0)
	draftRow(rows, uuid.New(), nil, `{}`, 0)
	mock.ExpectQuery("SELECT (.+) FROM visa_applications").
		WithArgs(phone).
		WillReturnRows(rows)

	drafts, err := repo.ListByPhone(context.Background(), phone)
	require.NoError(t, err)
	assert.Len(t, drafts, 2)
}
