// ABOUTME: Adapter for a local Ollama backend via its chat API
// ABOUTME: Streaming responses are folded into one string through the chat callback

package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaAdapter runs chat completions against a local Ollama daemon. Ollama
// always streams; the response callback concatenates fragments in arrival
// order so callers receive one final string.
type OllamaAdapter struct {
	client *api.Client
}

// NewOllamaAdapter builds an adapter for the Ollama daemon at baseURL.
func NewOllamaAdapter(baseURL string) (*OllamaAdapter, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing ollama base url: %w", err)
	}
	return &OllamaAdapter{
		client: api.NewClient(parsed, http.DefaultClient),
	}, nil
}

// Generate implements Adapter.
func (a *OllamaAdapter) Generate(ctx context.Context, turns []Turn, modelID string, opts Options) (string, error) {
	messages := make([]api.Message, 0, len(turns)+1)
	if opts.System != "" {
		messages = append(messages, api.Message{Role: "system", Content: opts.System})
	}
	for _, turn := range turns {
		messages = append(messages, api.Message{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	stream := true
	req := &api.ChatRequest{
		Model:    modelID,
		Messages: messages,
		Stream:   &stream,
	}
	if opts.Temperature != 0 || opts.TopP != 0 {
		req.Options = map[string]interface{}{}
		if opts.Temperature != 0 {
			req.Options["temperature"] = opts.Temperature
		}
		if opts.TopP != 0 {
			req.Options["top_p"] = opts.TopP
		}
	}

	var sb strings.Builder
	err := a.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", wrapErr("ollama", err)
	}
	return sb.String(), nil
}
