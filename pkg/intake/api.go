package intake

import (
	"time"

	"github.com/quickvisa/intake-backend/pkg/passport"
)

// Multipart field names of the document upload request.
const (
	FormFile        = "file"
	FormFieldName   = "fieldName"
	FormFirstName   = "firstName"
	FormPhone       = "phone"
	FormEmail       = "email"
	FormDestination = "destination"
	FormNationality = "nationality"
	FormVisaType    = "visaType"
	FormSessionID   = "sessionId"
)

// UploadInfo describes the stored file.
type UploadInfo struct {
	FieldName string    `json:"fieldName"`
	Filename  string    `json:"filename"`
	Filepath  string    `json:"filepath"`
	Size      int64     `json:"size"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// ProcessedData is the per-upload payload returned to the client.
type ProcessedData struct {
	PassportData *passport.Data `json:"passport_data"`
	UploadInfo   UploadInfo     `json:"upload_info"`
}

// UploadData carries the draft application id and the processed upload.
type UploadData struct {
	ID            string        `json:"id"`
	ProcessedData ProcessedData `json:"processedData"`
}

// ExtractionReport tells the client whether field extraction ran and worked,
// separately from whether the upload itself was recorded.
type ExtractionReport struct {
	Attempted bool   `json:"attempted"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// UploadResponse is the document upload endpoint's response body.
type UploadResponse struct {
	Success    bool              `json:"success"`
	Data       *UploadData       `json:"data,omitempty"`
	Extraction *ExtractionReport `json:"extraction,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// User is the identity bound to a session token.
type User struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

// SendCodeRequest asks for a passcode.
type SendCodeRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	CountryCode string `json:"countryCode" binding:"required"`
}

// SendCodeResponse acknowledges a passcode request. Code is only populated
// when the server runs with a development gateway.
type SendCodeResponse struct {
	Success   bool      `json:"success"`
	ExpiresAt time.Time `json:"expires_at"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// VerifyCodeRequest exchanges a passcode for a session token.
type VerifyCodeRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	CountryCode string `json:"countryCode" binding:"required"`
	Code        string `json:"code" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
}

// VerifyCodeResponse carries the issued session token.
type VerifyCodeResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	User    *User  `json:"user,omitempty"`
	Error   string `json:"error,omitempty"`
}

// VerifySessionRequest checks a previously issued token.
type VerifySessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifySessionResponse reports the identity behind a token.
type VerifySessionResponse struct {
	Success bool   `json:"success"`
	User    *User  `json:"user,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Progress is the server's view of a draft's uploads, used to resume a session.
type Progress struct {
	ApplicationID      string     `json:"application_id"`
	Nationality        string     `json:"nationality"`
	Steps              []StepView `json:"steps"`
	FilesUploaded      int        `json:"files_uploaded"`
	TotalFilesRequired int        `json:"total_files_required"`
	Complete           bool       `json:"complete"`
}
