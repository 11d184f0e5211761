// Package cache holds intake sessions in redis, or in process memory when no
// redis URL is configured.
package cache

import (
	"context"
	"errors"

	"github.com/quickvisa/intake-backend/internal/models"
)

// ErrSessionNotFound is returned for unknown or expired sessions
var ErrSessionNotFound = errors.New("intake session not found")

// SessionStore keeps intake sessions until they expire
type SessionStore interface {
	Save(ctx context.Context, session *models.IntakeSession) error
	Get(ctx context.Context, id string) (*models.IntakeSession, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}
