package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WhatsAppGateway sends passcodes as WhatsApp Cloud API template messages
type WhatsAppGateway struct {
	apiURL        string
	phoneNumberID string
	accessToken   string
	templateName  string
	language      string
	client        *http.Client
}

// WhatsAppConfig holds configuration for the WhatsApp Cloud API
type WhatsAppConfig struct {
	APIURL        string // e.g. https://graph.facebook.com/v17.0
	PhoneNumberID string
	AccessToken   string
	TemplateName  string // approved authentication template with a body and a URL button parameter
	Language      string
}

// NewWhatsAppGateway creates a new WhatsApp Cloud API client
func NewWhatsAppGateway(config WhatsAppConfig) *WhatsAppGateway {
	return &WhatsAppGateway{
		apiURL:        strings.TrimRight(config.APIURL, "/"),
		phoneNumberID: config.PhoneNumberID,
		accessToken:   config.AccessToken,
		templateName:  config.TemplateName,
		language:      config.Language,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// TemplateMessage is the messages endpoint request body
type TemplateMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Template         Template `json:"template"`
}

// Template names an approved message template and fills its parameters
type Template struct {
	Name       string              `json:"name"`
	Language   TemplateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components"`
}

// TemplateLanguage selects the template translation
type TemplateLanguage struct {
	Code string `json:"code"`
}

// TemplateComponent fills one part of the template
type TemplateComponent struct {
	Type       string              `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      *int                `json:"index,omitempty"`
	Parameters []TemplateParameter `json:"parameters"`
}

// TemplateParameter is a single text substitution
type TemplateParameter struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// MessageResponse is the messages endpoint response body
type MessageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// FormatPhoneForWhatsApp strips everything but digits; the API expects the
// international number without a leading plus
func FormatPhoneForWhatsApp(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 8 || len(digits) > 15 {
		return "", fmt.Errorf("invalid phone number length after formatting: %d digits", len(digits))
	}
	return digits, nil
}

func (g *WhatsAppGateway) buildMessage(to, code string) TemplateMessage {
	buttonIndex := 0
	return TemplateMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: Template{
			Name:     g.templateName,
			Language: TemplateLanguage{Code: g.language},
			Components: []TemplateComponent{
				{
					Type:       "body",
					Parameters: []TemplateParameter{{Type: "text", Text: code}},
				},
				{
					// Authentication templates carry the code again for the copy button
					Type:       "button",
					SubType:    "url",
					Index:      &buttonIndex,
					Parameters: []TemplateParameter{{Type: "text", Text: code}},
				},
			},
		},
	}
}

// SendPasscode implements Gateway
func (g *WhatsAppGateway) SendPasscode(ctx context.Context, phone, code string) (string, error) {
	to, err := FormatPhoneForWhatsApp(phone)
	if err != nil {
		return "", fmt.Errorf("failed to format phone number: %w", err)
	}

	jsonData, err := json.Marshal(g.buildMessage(to, code))
	if err != nil {
		return "", fmt.Errorf("failed to marshal message request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", g.apiURL, g.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send message request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read message response: %w", err)
	}

	var msgResp MessageResponse
	if err := json.Unmarshal(body, &msgResp); err != nil {
		return "", fmt.Errorf("failed to parse message response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msgResp.Error != nil && msgResp.Error.Message != "" {
			return "", fmt.Errorf("message sending failed: %s (code %d)", msgResp.Error.Message, msgResp.Error.Code)
		}
		return "", fmt.Errorf("message sending failed with status %d", resp.StatusCode)
	}

	if len(msgResp.Messages) == 0 || msgResp.Messages[0].ID == "" {
		return "", fmt.Errorf("message sending failed: no message id returned")
	}

	return msgResp.Messages[0].ID, nil
}

// GetName implements Gateway
func (g *WhatsAppGateway) GetName() string {
	return "WhatsApp Cloud API Gateway"
}

// ExposesCode implements Gateway
func (g *WhatsAppGateway) ExposesCode() bool {
	return false
}
