// ABOUTME: Adapter for the Gemini generateContent API
// ABOUTME: No system channel exists, so system guidance is folded into the first user turn

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiAdapter speaks the generateContent API. The v1beta endpoint has no
// compatible system instruction channel, so system turns are folded into the
// first user turn instead of being dropped.
type GeminiAdapter struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewGeminiAdapter builds a Gemini adapter. An empty baseURL selects the
// public endpoint.
func NewGeminiAdapter(apiKey, baseURL string) *GeminiAdapter {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiAdapter{
		httpClient: &http.Client{},
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Generate implements Adapter.
func (a *GeminiAdapter) Generate(ctx context.Context, turns []Turn, modelID string, opts Options) (string, error) {
	reqBody := geminiRequest{Contents: foldGeminiContents(opts.System, turns)}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", wrapErr("gemini", fmt.Errorf("marshaling request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		a.baseURL, url.PathEscape(modelID), url.QueryEscape(a.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", wrapErr("gemini", fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", wrapErr("gemini", err)
	}
	defer resp.Body.Close()

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", wrapErr("gemini", fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err))
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", wrapErr("gemini", fmt.Errorf("%s: %s", parsed.Error.Status, parsed.Error.Message))
		}
		return "", wrapErr("gemini", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	if len(parsed.Candidates) == 0 {
		return "", wrapErr("gemini", fmt.Errorf("response contained no candidates"))
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

// foldGeminiContents maps turns onto generateContent contents. System
// guidance and system turns are collected and prefixed to the first user
// turn; assistant turns map to the "model" role.
func foldGeminiContents(system string, turns []Turn) []geminiContent {
	var guidance []string
	var contents []geminiContent

	if system != "" {
		guidance = append(guidance, system)
	}

	for _, turn := range turns {
		switch turn.Role {
		case RoleSystem:
			guidance = append(guidance, turn.Content)
		case RoleAssistant:
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: turn.Content}}})
		default:
			text := turn.Content
			if len(guidance) > 0 {
				text = strings.Join(guidance, "\n\n") + "\n\n" + text
				guidance = nil
			}
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: text}}})
		}
	}

	// All-system input: send the guidance as the sole user turn
	if len(guidance) > 0 {
		contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: strings.Join(guidance, "\n\n")}}})
	}
	return contents
}
