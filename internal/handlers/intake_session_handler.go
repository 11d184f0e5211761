package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quickvisa/intake-backend/internal/cache"
	"github.com/quickvisa/intake-backend/internal/middleware"
	"github.com/quickvisa/intake-backend/internal/services"
	"github.com/quickvisa/intake-backend/pkg/intake"
	"github.com/sirupsen/logrus"
)

// IntakeSessionHandler opens intake sessions so uploads can reference the
// applicant's choices by id
type IntakeSessionHandler struct {
	sessions *services.IntakeSessionService
	logger   *logrus.Logger
}

// NewIntakeSessionHandler creates a new intake session handler
func NewIntakeSessionHandler(sessions *services.IntakeSessionService, logger *logrus.Logger) *IntakeSessionHandler {
	return &IntakeSessionHandler{sessions: sessions, logger: logger}
}

// Create handles POST /api/v1/intake/sessions
func (h *IntakeSessionHandler) Create(c *gin.Context) {
	session := middleware.MustGetSessionContext(c)

	var req services.IntakeSessionInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Destination, nationality and visa type are required",
		})
		return
	}

	created, err := h.sessions.Create(c.Request.Context(), intake.User{
		Name:        session.Name,
		PhoneNumber: session.PhoneNumber,
	}, req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
			return
		}
		h.logger.WithError(err).WithField("phone", session.PhoneNumber).Error("Failed to create intake session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "session_creation_failed",
			Message: "Failed to start intake session",
		})
		return
	}

	c.JSON(http.StatusCreated, created)
}

// Get handles GET /api/v1/intake/sessions/:id
func (h *IntakeSessionHandler) Get(c *gin.Context) {
	session := middleware.MustGetSessionContext(c)

	found, err := h.sessions.Get(c.Request.Context(), c.Param("id"), session.PhoneNumber)
	if err != nil {
		if errors.Is(err, cache.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Intake session not found or expired"})
			return
		}
		h.logger.WithError(err).Error("Failed to load intake session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Failed to load intake session"})
		return
	}

	c.JSON(http.StatusOK, found)
}
