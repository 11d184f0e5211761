package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/quickvisa/intake-backend/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupPasscodeTest(t *testing.T) (*PasscodeService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	postgresDB := &database.PostgresDB{DB: sqlx.NewDb(db, "sqlmock")}
	return NewPasscodeService(postgresDB, 6, 10*time.Minute, bcrypt.MinCost), mock
}

var passcodeColumns = []string{"id", "phone_number", "code_hash", "ip_address", "created_at"}

func hashCode(t *testing.T, code string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestGeneratePasscode(t *testing.T) {
	service, mock := setupPasscodeTest(t)
	phone := "+919876543210"

	mock.ExpectExec("INSERT INTO passcodes").
		WithArgs(sqlmock.AnyArg(), phone, sqlmock.AnyArg(), "203.0.113.7", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	code, expiresAt, err := service.Generate(phone, "203.0.113.7")
	require.NoError(t, err)
	assert.Regexp(t, "^[0-9]{6}$", code)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), expiresAt, 5*time.Second)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGeneratePasscode_StoreFails(t *testing.T) {
	service, mock := setupPasscodeTest(t)

	mock.ExpectExec("INSERT INTO passcodes").WillReturnError(sql.ErrConnDone)

	_, _, err := service.Generate("+919876543210", "")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestGenerateNumericCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		code, err := generateNumericCode(6)
		require.NoError(t, err)
		assert.Len(t, code, 6)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 80)

	code, err := generateNumericCode(4)
	require.NoError(t, err)
	assert.Len(t, code, 4)
}

func TestVerifyPasscode_Success(t *testing.T) {
	service, mock := setupPasscodeTest(t)
	phone := "+919876543210"

	mock.ExpectQuery("SELECT (.+) FROM passcodes").
		WithArgs(phone).
		WillReturnRows(sqlmock.NewRows(passcodeColumns).
			AddRow("8b0c7a9e-2f4c-4e25-9d7e-0d1f1c2b3a4d", phone, hashCode(t, "123456"), "", time.Now().Add(-time.Minute)))
	mock.ExpectExec("DELETE FROM passcodes WHERE phone_number").
		WithArgs(phone).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, service.Verify(phone, "123456"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyPasscode_Failures(t *testing.T) {
	phone := "+919876543210"

	tests := []struct {
		name      string
		createdAt time.Time
		code      string
		want      error
	}{
		{"wrong code", time.Now().Add(-time.Minute), "654321", ErrPasscodeInvalid},
		{"expired", time.Now().Add(-11 * time.Minute), "123456", ErrPasscodeExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, mock := setupPasscodeTest(t)

			mock.ExpectQuery("SELECT (.+) FROM passcodes").
				WithArgs(phone).
				WillReturnRows(sqlmock.NewRows(passcodeColumns).
					AddRow("8b0c7a9e-2f4c-4e25-9d7e-0d1f1c2b3a4d", phone, hashCode(t, "123456"), "", tt.createdAt))

			assert.ErrorIs(t, service.Verify(phone, tt.code), tt.want)
			assert.NoError(t, mock.ExpectationsWereMet(), "passcodes are kept after a failed attempt")
		})
	}
}

func TestVerifyPasscode_NoneOnRecord(t *testing.T) {
	service, mock := setupPasscodeTest(t)

	mock.ExpectQuery("SELECT (.+) FROM passcodes").
		WillReturnRows(sqlmock.NewRows(passcodeColumns))

	assert.ErrorIs(t, service.Verify("+919876543210", "123456"), ErrNoPasscode)
}

func TestCleanupExpiredPasscodes(t *testing.T) {
	service, mock := setupPasscodeTest(t)

	mock.ExpectExec("DELETE FROM passcodes WHERE created_at").
		WillReturnResult(sqlmock.NewResult(0, 4))

	removed, err := service.CleanupExpiredPasscodes()
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)
}
