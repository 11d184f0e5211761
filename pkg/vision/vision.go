// Package vision runs passport page images through a go-agents vision agent
// and reads back passport field guesses.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JaimeStill/go-agents/pkg/agent"
	agtconfig "github.com/JaimeStill/go-agents/pkg/config"

	"github.com/quickvisa/intake-backend/pkg/passport"
)

// ErrExtractionFailed means the service gave no usable result. Callers treat
// it as non-fatal: the upload is kept and the fields are left as they were.
var ErrExtractionFailed = errors.New("extraction failed")

// maxContentBytes bounds the reply handed to ParseContent.
const maxContentBytes = 64 * 1024

// Role selects which passport page the image shows.
type Role string

const (
	RoleMainPage Role = "main_page"
	RoleLastPage Role = "last_page"
)

// Extractor reads passport fields from an image.
type Extractor interface {
	Extract(ctx context.Context, image []byte, mimeType string, role Role) (passport.Raw, error)
}

// Config holds the extraction agent settings.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration

	// AgentConfig is optional go-agents AgentConfig JSON merged over the
	// settings above.
	AgentConfig string
}

// visionCall runs one vision request and returns the reply text.
type visionCall func(ctx context.Context, prompt string, images []string, opts map[string]any) (string, error)

// Client implements Extractor over a go-agents agent.
type Client struct {
	vision  visionCall
	timeout time.Duration
}

// NewClient builds the vision agent and wraps it as an Extractor.
func NewClient(cfg Config) (*Client, error) {
	agentCfg, err := buildAgentConfig(cfg)
	if err != nil {
		return nil, err
	}

	a, err := agent.New(agentCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision agent: %w", err)
	}

	return newClient(func(ctx context.Context, prompt string, images []string, opts map[string]any) (string, error) {
		resp, err := a.Vision(ctx, prompt, images, opts)
		if err != nil {
			return "", err
		}
		return resp.Content(), nil
	}, cfg.Timeout), nil
}

func newClient(call visionCall, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{vision: call, timeout: timeout}
}

func buildAgentConfig(cfg Config) (*agtconfig.AgentConfig, error) {
	settings, err := json.Marshal(map[string]any{
		"name": "passport-extraction",
		"provider": map[string]any{
			"name":     cfg.Provider,
			"base_url": cfg.BaseURL,
			"options":  map[string]any{"token": cfg.APIKey},
		},
		"model": map[string]any{
			"name": cfg.Model,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode vision agent config: %w", err)
	}

	agentCfg := agtconfig.DefaultAgentConfig()

	var userCfg agtconfig.AgentConfig
	if err := json.Unmarshal(settings, &userCfg); err != nil {
		return nil, fmt.Errorf("invalid vision agent config: %w", err)
	}
	agentCfg.Merge(&userCfg)

	if cfg.AgentConfig != "" {
		var overlay agtconfig.AgentConfig
		if err := json.Unmarshal([]byte(cfg.AgentConfig), &overlay); err != nil {
			return nil, fmt.Errorf("invalid VISION_AGENT_CONFIG: %w", err)
		}
		agentCfg.Merge(&overlay)
	}

	return &agentCfg, nil
}

// Extract sends one image and parses the returned fields.
func (c *Client) Extract(ctx context.Context, image []byte, mimeType string, role Role) (passport.Raw, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrExtractionFailed)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dataURI := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	opts := map[string]any{
		"system_prompt": systemPrompt(role),
		"temperature":   0.0,
	}

	content, err := c.vision(ctx, userPrompt(role), []string{dataURI}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(content) > maxContentBytes {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrExtractionFailed, maxContentBytes)
	}

	return ParseContent(content)
}

// Disabled is used when no extraction service is configured. Every call fails
// with ErrExtractionFailed so uploads still go through.
type Disabled struct{}

// Extract implements Extractor.
func (Disabled) Extract(ctx context.Context, image []byte, mimeType string, role Role) (passport.Raw, error) {
	return nil, fmt.Errorf("%w: extraction service not configured", ErrExtractionFailed)
}
