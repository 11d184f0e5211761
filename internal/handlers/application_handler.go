package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quickvisa/intake-backend/internal/database"
	"github.com/quickvisa/intake-backend/internal/middleware"
	"github.com/quickvisa/intake-backend/internal/models"
	"github.com/quickvisa/intake-backend/internal/services"
	"github.com/quickvisa/intake-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// patchableFields are the JSON keys accepted by PATCH /applications/:id
var patchableFields = map[string]bool{
	"email":           true,
	"visa_type":       true,
	"destination":     true,
	"passport_data":   true,
	"status":          true,
	"document_status": true,
}

// ApplicationHandler serves an applicant's own visa applications
type ApplicationHandler struct {
	applications *services.ApplicationService
	audit        auditor
	logger       *logrus.Logger
}

// NewApplicationHandler creates a new application handler
func NewApplicationHandler(applications *services.ApplicationService, auditService *services.AuditService, logger *logrus.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		applications: applications,
		audit:        auditor{service: auditService, logger: logger},
		logger:       logger,
	}
}

// List handles GET /api/v1/applications
func (h *ApplicationHandler) List(c *gin.Context) {
	session := middleware.MustGetSessionContext(c)

	applications, err := h.applications.List(c.Request.Context(), session.PhoneNumber)
	if err != nil {
		h.respondError(c, err, "Failed to list applications")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"applications": applications,
		"count":        len(applications),
	})
}

// Get handles GET /api/v1/applications/:id
func (h *ApplicationHandler) Get(c *gin.Context) {
	session := middleware.MustGetSessionContext(c)
	id, ok := parseApplicationID(c)
	if !ok {
		return
	}

	application, err := h.applications.Get(c.Request.Context(), id, session.PhoneNumber)
	if err != nil {
		h.respondError(c, err, "Failed to load application")
		return
	}

	c.JSON(http.StatusOK, application)
}

// Update handles PATCH /api/v1/applications/:id
func (h *ApplicationHandler) Update(c *gin.Context) {
	session := middleware.MustGetSessionContext(c)
	id, ok := parseApplicationID(c)
	if !ok {
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Could not read request body"})
		return
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Request body must be a JSON object"})
		return
	}

	var unknown []string
	for key := range raw {
		if !patchableFields[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Some fields cannot be updated",
			"fields":  unknown,
		})
		return
	}

	var patch models.ApplicationPatch
	if err := json.Unmarshal(body, &patch); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_request", Message: "Invalid field value: " + err.Error()})
		return
	}

	application, changed, err := h.applications.Patch(c.Request.Context(), id, session.PhoneNumber, patch)
	if err != nil {
		h.respondError(c, err, "Failed to update application")
		return
	}

	h.audit.applicationUpdate(session.PhoneNumber, id.String(), utils.GetRealIP(c), utils.GetUserAgent(c), changed)

	c.JSON(http.StatusOK, application)
}

// Progress handles GET /api/v1/applications/:id/progress
func (h *ApplicationHandler) Progress(c *gin.Context) {
	session := middleware.MustGetSessionContext(c)
	id, ok := parseApplicationID(c)
	if !ok {
		return
	}

	progress, err := h.applications.Progress(c.Request.Context(), id, session.PhoneNumber)
	if err != nil {
		h.respondError(c, err, "Failed to load progress")
		return
	}

	c.JSON(http.StatusOK, progress)
}

// Confirm handles POST /api/v1/applications/:id/confirm
func (h *ApplicationHandler) Confirm(c *gin.Context) {
	session := middleware.MustGetSessionContext(c)
	id, ok := parseApplicationID(c)
	if !ok {
		return
	}

	application, err := h.applications.Confirm(c.Request.Context(), id, session.PhoneNumber)
	if err != nil {
		h.respondError(c, err, "Failed to confirm application")
		return
	}

	h.audit.applicationUpdate(session.PhoneNumber, id.String(), utils.GetRealIP(c), utils.GetUserAgent(c), []string{"status"})

	c.JSON(http.StatusOK, application)
}

func parseApplicationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid_id", Message: "Invalid application ID"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps service errors onto HTTP statuses
func (h *ApplicationHandler) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
	case errors.Is(err, database.ErrNotFound), errors.Is(err, services.ErrApplicationNotOwned):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Application not found"})
	case errors.Is(err, services.ErrNotDraft):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "not_draft", Message: err.Error()})
	case errors.Is(err, services.ErrApplicationIncomplete):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "incomplete", Message: err.Error()})
	default:
		h.logger.WithError(err).WithField("path", c.Request.URL.Path).Error(fallback)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: fallback})
	}
}
