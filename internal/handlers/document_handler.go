package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quickvisa/intake-backend/internal/cache"
	"github.com/quickvisa/intake-backend/internal/middleware"
	"github.com/quickvisa/intake-backend/internal/services"
	"github.com/quickvisa/intake-backend/internal/utils"
	"github.com/quickvisa/intake-backend/pkg/intake"
	"github.com/quickvisa/intake-backend/pkg/validator"
	"github.com/sirupsen/logrus"
)

// multipartOverhead is the room left for form fields on top of the file limit
const multipartOverhead = 1 << 20

// DocumentUploader runs one upload through storage, extraction and reconciliation
type DocumentUploader interface {
	Upload(ctx context.Context, in services.UploadInput) (*services.UploadResult, error)
}

// DocumentHandler handles document uploads
type DocumentHandler struct {
	documents      DocumentUploader
	sessions       *services.IntakeSessionService
	phoneValidator *validator.PhoneValidator
	maxUploadSize  int64
	audit          auditor
	logger         *logrus.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(
	documents DocumentUploader,
	sessions *services.IntakeSessionService,
	phoneValidator *validator.PhoneValidator,
	maxUploadSize int64,
	auditService *services.AuditService,
	logger *logrus.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		documents:      documents,
		sessions:       sessions,
		phoneValidator: phoneValidator,
		maxUploadSize:  maxUploadSize,
		audit:          auditor{service: auditService, logger: logger},
		logger:         logger,
	}
}

func uploadError(c *gin.Context, status int, message string) {
	c.JSON(status, intake.UploadResponse{Success: false, Error: message})
}

// Upload handles POST /api/v1/documents
func (h *DocumentHandler) Upload(c *gin.Context) {
	session := middleware.MustGetSessionContext(c)
	clientIP := utils.GetRealIP(c)
	userAgent := utils.GetUserAgent(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize+multipartOverhead)

	fileHeader, err := c.FormFile(intake.FormFile)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			uploadError(c, http.StatusBadRequest, "File is larger than the upload limit")
			return
		}
		uploadError(c, http.StatusBadRequest, "No file uploaded")
		return
	}

	identity, ok := h.resolveIdentity(c, session)
	if !ok {
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		uploadError(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		uploadError(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}

	fieldName := c.PostForm(intake.FormFieldName)
	result, err := h.documents.Upload(c.Request.Context(), services.UploadInput{
		Identity:  identity,
		FieldName: fieldName,
		FileName:  fileHeader.Filename,
		MimeType:  fileHeader.Header.Get("Content-Type"),
		Data:      data,
	})
	if err != nil {
		h.audit.documentUpload(identity.PhoneNumber, "", fieldName, clientIP, userAgent, false, map[string]interface{}{
			"reason": err.Error(),
		})

		switch {
		case errors.Is(err, services.ErrValidation):
			uploadError(c, http.StatusBadRequest, strings.TrimPrefix(err.Error(), services.ErrValidation.Error()+": "))
		case errors.Is(err, services.ErrDuplicateDraft):
			uploadError(c, http.StatusInternalServerError, "Several open applications exist for this phone number. Please contact support.")
		default:
			uploadError(c, http.StatusInternalServerError, "Failed to save your document. Please try again.")
		}
		return
	}

	applicationID := result.Application.ID.String()
	h.audit.documentUpload(identity.PhoneNumber, applicationID, fieldName, clientIP, userAgent, true, map[string]interface{}{
		"storage_path":         result.File.StoragePath,
		"extraction_attempted": result.Extraction.Attempted,
		"extraction_succeeded": result.Extraction.Succeeded,
	})

	extraction := result.Extraction
	c.JSON(http.StatusOK, intake.UploadResponse{
		Success: true,
		Data: &intake.UploadData{
			ID: applicationID,
			ProcessedData: intake.ProcessedData{
				PassportData: result.Application.PassportData.Ptr(),
				UploadInfo: intake.UploadInfo{
					FieldName: fieldName,
					Filename:  path.Base(result.File.StoragePath),
					Filepath:  result.File.StoragePath,
					Size:      result.File.ByteSize,
					Type:      result.File.MimeType,
					Timestamp: result.File.UploadedAt,
				},
			},
		},
		Extraction: &extraction,
	})
}

// resolveIdentity builds the applicant identity from an intake session or
// from the form fields. The phone number always comes from the token.
func (h *DocumentHandler) resolveIdentity(c *gin.Context, session middleware.SessionContext) (intake.Identity, bool) {
	if formPhone := strings.TrimSpace(c.PostForm(intake.FormPhone)); formPhone != "" {
		normalized, err := h.phoneValidator.Validate(formPhone)
		if err != nil || normalized != session.PhoneNumber {
			uploadError(c, http.StatusBadRequest, "Phone number does not match the verified session")
			return intake.Identity{}, false
		}
	}

	if sessionID := strings.TrimSpace(c.PostForm(intake.FormSessionID)); sessionID != "" {
		intakeSession, err := h.sessions.Get(c.Request.Context(), sessionID, session.PhoneNumber)
		if err != nil {
			if errors.Is(err, cache.ErrSessionNotFound) {
				uploadError(c, http.StatusBadRequest, "Intake session not found or expired")
				return intake.Identity{}, false
			}
			h.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to load intake session")
			uploadError(c, http.StatusInternalServerError, "Failed to load intake session")
			return intake.Identity{}, false
		}
		identity := intakeSession.Identity()
		if name := strings.TrimSpace(c.PostForm(intake.FormFirstName)); name != "" {
			identity.DisplayName = name
		}
		return identity, true
	}

	identity := intake.Identity{
		DisplayName: strings.TrimSpace(c.PostForm(intake.FormFirstName)),
		PhoneNumber: session.PhoneNumber,
		Email:       strings.TrimSpace(c.PostForm(intake.FormEmail)),
		Nationality: strings.TrimSpace(c.PostForm(intake.FormNationality)),
		Destination: strings.TrimSpace(c.PostForm(intake.FormDestination)),
		VisaType:    strings.TrimSpace(c.PostForm(intake.FormVisaType)),
	}
	if identity.DisplayName == "" {
		identity.DisplayName = session.Name
	}
	return identity, true
}
