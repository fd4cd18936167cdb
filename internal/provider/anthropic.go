// ABOUTME: Adapter for the Anthropic messages API
// ABOUTME: Hand-rolled HTTP client; system turns are lifted into the top-level system field

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicVersion = "2023-06-01"
)

// AnthropicAdapter speaks the Anthropic messages API. The API has a dedicated
// system channel, so system turns are extracted from the sequence and sent as
// the top-level system field rather than as messages.
type AnthropicAdapter struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	apiVersion string
	maxTokens  int
}

// NewAnthropicAdapter builds an Anthropic adapter. Empty baseURL and
// apiVersion select the public endpoint and current version; maxTokens must
// be positive because the messages API requires it.
func NewAnthropicAdapter(apiKey, baseURL, apiVersion string, maxTokens int) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	if apiVersion == "" {
		apiVersion = defaultAnthropicVersion
	}
	return &AnthropicAdapter{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiVersion: apiVersion,
		maxTokens:  maxTokens,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Adapter.
func (a *AnthropicAdapter) Generate(ctx context.Context, turns []Turn, modelID string, opts Options) (string, error) {
	maxTokens := a.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	reqBody := anthropicRequest{
		Model:     modelID,
		MaxTokens: maxTokens,
		System:    opts.System,
	}
	for _, turn := range turns {
		switch turn.Role {
		case RoleSystem:
			if reqBody.System != "" {
				reqBody.System += "\n\n"
			}
			reqBody.System += turn.Content
		case RoleAssistant:
			reqBody.Messages = append(reqBody.Messages, anthropicMessage{Role: "assistant", Content: turn.Content})
		default:
			reqBody.Messages = append(reqBody.Messages, anthropicMessage{Role: "user", Content: turn.Content})
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", wrapErr("anthropic", fmt.Errorf("marshaling request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", wrapErr("anthropic", fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", a.apiVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", wrapErr("anthropic", err)
	}
	defer resp.Body.Close()

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", wrapErr("anthropic", fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err))
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", wrapErr("anthropic", fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message))
		}
		return "", wrapErr("anthropic", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
