package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quickvisa/intake-backend/pkg/intake"
	"github.com/quickvisa/intake-backend/pkg/passport"
)

// ApplicationStatus is the lifecycle state of a visa application row
type ApplicationStatus string

const (
	ApplicationStatusDraft          ApplicationStatus = "draft"
	ApplicationStatusPendingPayment ApplicationStatus = "pending_payment"
)

// DocumentStatus summarises whether every required file is on record
type DocumentStatus string

const (
	DocumentStatusIncomplete DocumentStatus = "incomplete"
	DocumentStatusComplete   DocumentStatus = "complete"
)

// FileReference points at one stored upload
type FileReference struct {
	Slot             intake.Slot `json:"slot"`
	StoragePath      string      `json:"storage_path"`
	OriginalFileName string      `json:"original_file_name"`
	MimeType         string      `json:"mime_type"`
	ByteSize         int64       `json:"byte_size"`
	UploadedAt       time.Time   `json:"uploaded_at"`
}

// FileMap is the files JSONB column, keyed by slot
type FileMap map[intake.Slot]FileReference

// Value implements the driver.Valuer interface
func (m FileMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (m *FileMap) Scan(value interface{}) error {
	*m = FileMap{}
	data, err := jsonBytes(value)
	if err != nil || data == nil {
		return err
	}
	return json.Unmarshal(data, m)
}

// Slots lists the slots with a file on record
func (m FileMap) Slots() []intake.Slot {
	slots := make([]intake.Slot, 0, len(m))
	for slot := range m {
		slots = append(slots, slot)
	}
	return slots
}

// NullPassport is the nullable passport_data JSONB column. It marshals to
// null until the first successful extraction.
type NullPassport struct {
	Data  passport.Data
	Valid bool
}

// NewNullPassport wraps d, treating nil as null
func NewNullPassport(d *passport.Data) NullPassport {
	if d == nil {
		return NullPassport{}
	}
	return NullPassport{Data: *d, Valid: true}
}

// Ptr returns the data or nil
func (n NullPassport) Ptr() *passport.Data {
	if !n.Valid {
		return nil
	}
	d := n.Data
	return &d
}

// Value implements the driver.Valuer interface
func (n NullPassport) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	bytes, err := json.Marshal(n.Data)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (n *NullPassport) Scan(value interface{}) error {
	*n = NullPassport{}
	data, err := jsonBytes(value)
	if err != nil || data == nil || string(data) == "null" {
		return err
	}
	if err := json.Unmarshal(data, &n.Data); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// MarshalJSON implements json.Marshaler
func (n NullPassport) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Data)
}

// UnmarshalJSON implements json.Unmarshaler
func (n *NullPassport) UnmarshalJSON(data []byte) error {
	*n = NullPassport{}
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &n.Data); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

func jsonBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSONB source type %T", value)
	}
}

// DraftApplication is a row of visa_applications. At most one row per phone
// number has status draft.
type DraftApplication struct {
	ID                    uuid.UUID         `json:"id" db:"id"`
	PhoneNumber           string            `json:"phone_number" db:"phone_number"`
	ApplicantName         string            `json:"applicant_name" db:"applicant_name"`
	Email                 string            `json:"email" db:"email"`
	Destination           string            `json:"destination" db:"destination"`
	VisaType              string            `json:"visa_type" db:"visa_type"`
	Nationality           string            `json:"nationality" db:"nationality"`
	PassportData          NullPassport      `json:"passport_data" db:"passport_data"`
	Files                 FileMap           `json:"files" db:"files"`
	FilesUploaded         int               `json:"files_uploaded" db:"files_uploaded"`
	TotalFilesRequired    int               `json:"total_files_required" db:"total_files_required"`
	IsBothSidesRequired   bool              `json:"is_both_sides_required" db:"is_both_sides_required"`
	ApplicationIdentifier string            `json:"application_identifier" db:"application_identifier"`
	DocumentStatus        DocumentStatus    `json:"document_status" db:"document_status"`
	Status                ApplicationStatus `json:"status" db:"status"`
	CreatedAt             time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at" db:"updated_at"`
}

// PassportNumber returns the recorded passport number, if any
func (d *DraftApplication) PassportNumber() string {
	if !d.PassportData.Valid {
		return ""
	}
	return d.PassportData.Data.PassportNumber
}

// IsDraft reports whether uploads may still merge into the row
func (d *DraftApplication) IsDraft() bool {
	return d.Status == ApplicationStatusDraft
}

// ApplicationPatch lists the fields a client may change on a draft. Nil means
// unchanged.
type ApplicationPatch struct {
	Email          *string            `json:"email"`
	VisaType       *string            `json:"visa_type"`
	Destination    *string            `json:"destination"`
	PassportData   *passport.Data     `json:"passport_data"`
	Status         *ApplicationStatus `json:"status"`
	DocumentStatus *DocumentStatus    `json:"document_status"`
}

// IsEmpty reports whether the patch changes nothing
func (p ApplicationPatch) IsEmpty() bool {
	return p == ApplicationPatch{}
}
