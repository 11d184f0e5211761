package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// ErrRequestFailed wraps non-success responses from the API.
var ErrRequestFailed = errors.New("request failed")

// Client talks to the intake API.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates an API client. baseURL is the server root, e.g. http://localhost:8080.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// SendCode requests a passcode for the phone number.
func (c *Client) SendCode(ctx context.Context, countryCode, phoneNumber string) (*SendCodeResponse, error) {
	var resp SendCodeResponse
	req := SendCodeRequest{PhoneNumber: phoneNumber, CountryCode: countryCode}
	if err := c.postJSON(ctx, "/api/v1/identity/send-code", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyCode exchanges a passcode for a session token.
func (c *Client) VerifyCode(ctx context.Context, countryCode, phoneNumber, code, displayName string) (*VerifyCodeResponse, error) {
	var resp VerifyCodeResponse
	req := VerifyCodeRequest{
		PhoneNumber: phoneNumber,
		CountryCode: countryCode,
		Code:        code,
		DisplayName: displayName,
	}
	if err := c.postJSON(ctx, "/api/v1/identity/verify-code", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifySession checks a session token.
func (c *Client) VerifySession(ctx context.Context, token string) (*VerifySessionResponse, error) {
	var resp VerifySessionResponse
	if err := c.postJSON(ctx, "/api/v1/identity/verify-session", "", VerifySessionRequest{Token: token}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Progress fetches the server's view of a draft application's uploads.
func (c *Client) Progress(ctx context.Context, token, applicationID string) (*Progress, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/applications/"+applicationID+"/progress", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var progress Progress
	if err := c.do(req, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

// Document is one file to upload.
type Document struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Upload sends one document for a slot.
func (c *Client) Upload(ctx context.Context, token string, identity Identity, slot Slot, doc Document) (*UploadResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := map[string]string{
		FormFieldName:   slot.String(),
		FormFirstName:   identity.DisplayName,
		FormPhone:       identity.PhoneNumber,
		FormEmail:       identity.Email,
		FormDestination: identity.Destination,
		FormNationality: identity.Nationality,
		FormVisaType:    identity.VisaType,
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormFile, escapeQuotes(doc.Filename)))
	header.Set("Content-Type", doc.ContentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(doc.Content); err != nil {
		return nil, fmt.Errorf("failed to write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/documents", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	var resp UploadResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) postJSON(ctx context.Context, path, token string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, apiMessage(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// apiMessage pulls the human readable part out of an error body.
func apiMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(body))
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
