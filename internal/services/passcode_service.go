package services

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quickvisa/intake-backend/internal/database"
	"github.com/quickvisa/intake-backend/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrNoPasscode indicates no passcode exists for the phone number
	ErrNoPasscode = errors.New("no passcode found for this phone number")

	// ErrPasscodeExpired indicates the most recent passcode is too old
	ErrPasscodeExpired = errors.New("passcode has expired")

	// ErrPasscodeInvalid indicates the passcode does not match
	ErrPasscodeInvalid = errors.New("invalid passcode")
)

// PasscodeService issues and checks one-time passcodes. Codes are stored as
// bcrypt hashes keyed by the full phone number.
type PasscodeService struct {
	db         database.DB
	length     int
	expiry     time.Duration
	bcryptCost int
	now        func() time.Time
}

// NewPasscodeService creates a new passcode service
func NewPasscodeService(db database.DB, length int, expiry time.Duration, bcryptCost int) *PasscodeService {
	return &PasscodeService{
		db:         db,
		length:     length,
		expiry:     expiry,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

// Generate creates and stores a passcode for phone. Earlier passcodes stay
// on record; only the most recent one is accepted.
func (s *PasscodeService) Generate(phone, ipAddress string) (string, time.Time, error) {
	code, err := generateNumericCode(s.length)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate passcode: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.bcryptCost)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to hash passcode: %w", err)
	}

	createdAt := s.now()
	query := `
		INSERT INTO passcodes (id, phone_number, code_hash, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := s.db.Exec(query, uuid.New(), phone, string(hash), ipAddress, createdAt); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store passcode: %w", err)
	}

	return code, createdAt.Add(s.expiry), nil
}

// Verify checks code against the most recent passcode for phone. On success
// every passcode for phone is deleted.
func (s *PasscodeService) Verify(phone, code string) error {
	query := `
		SELECT id, phone_number, code_hash, ip_address, created_at
		FROM passcodes
		WHERE phone_number = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var passcode models.Passcode
	if err := s.db.Get(&passcode, query, phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoPasscode
		}
		return fmt.Errorf("failed to get passcode: %w", err)
	}

	if s.now().After(passcode.CreatedAt.Add(s.expiry)) {
		return ErrPasscodeExpired
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passcode.CodeHash), []byte(strings.TrimSpace(code))); err != nil {
		return ErrPasscodeInvalid
	}

	if _, err := s.db.Exec(`DELETE FROM passcodes WHERE phone_number = $1`, phone); err != nil {
		return fmt.Errorf("failed to delete passcodes: %w", err)
	}

	return nil
}

// CleanupExpiredPasscodes removes passcodes past the expiry window
func (s *PasscodeService) CleanupExpiredPasscodes() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM passcodes WHERE created_at < $1`, s.now().Add(-s.expiry))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired passcodes: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// Expiry returns how long a passcode stays valid
func (s *PasscodeService) Expiry() time.Duration {
	return s.expiry
}

// generateNumericCode returns a cryptographically random code of n digits
func generateNumericCode(n int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
