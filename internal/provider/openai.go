// ABOUTME: Adapter for OpenAI-compatible chat completion backends
// ABOUTME: One client covers OpenAI, OpenRouter and NVIDIA via base URL; streaming optional

package provider

import (
	"context"
	"errors"
	"io"
	"strings"

	go_openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatAdapter speaks the OpenAI chat completion wire format. Several
// backend families expose it: api.openai.com itself, OpenRouter (DeepSeek
// models) and integrate.api.nvidia.com. The streaming flag selects between
// one atomic response and a fragment stream that the adapter folds into a
// single string before returning.
type OpenAICompatAdapter struct {
	client   *go_openai.Client
	name     string
	stream   bool
	defaults Options
}

// NewOpenAICompatAdapter builds an adapter for one OpenAI-compatible backend.
// An empty baseURL targets api.openai.com.
func NewOpenAICompatAdapter(name, apiKey, baseURL string, stream bool, defaults Options) *OpenAICompatAdapter {
	cfg := go_openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompatAdapter{
		client:   go_openai.NewClientWithConfig(cfg),
		name:     name,
		stream:   stream,
		defaults: defaults,
	}
}

// Generate implements Adapter.
func (a *OpenAICompatAdapter) Generate(ctx context.Context, turns []Turn, modelID string, opts Options) (string, error) {
	messages := toOpenAIMessages(turns)
	if opts.System != "" {
		messages = append([]go_openai.ChatCompletionMessage{{
			Role:    go_openai.ChatMessageRoleSystem,
			Content: opts.System,
		}}, messages...)
	}

	req := go_openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: messages,
	}
	applyOpenAIOptions(&req, a.defaults, opts)

	if a.stream {
		return a.generateStreaming(ctx, req)
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrapErr(a.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", wrapErr(a.name, errors.New("response contained no choices"))
	}
	return resp.Choices[0].Message.Content, nil
}

// generateStreaming consumes the fragment stream and concatenates deltas in
// arrival order. Callers never see partial text.
func (a *OpenAICompatAdapter) generateStreaming(ctx context.Context, req go_openai.ChatCompletionRequest) (string, error) {
	req.Stream = true

	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", wrapErr(a.name, err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", wrapErr(a.name, err)
		}
		if len(resp.Choices) > 0 {
			sb.WriteString(resp.Choices[0].Delta.Content)
		}
	}
	return sb.String(), nil
}

func toOpenAIMessages(turns []Turn) []go_openai.ChatCompletionMessage {
	messages := make([]go_openai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		var role string
		switch turn.Role {
		case RoleSystem:
			role = go_openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = go_openai.ChatMessageRoleAssistant
		default:
			role = go_openai.ChatMessageRoleUser
		}
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    role,
			Content: turn.Content,
		})
	}
	return messages
}

func applyOpenAIOptions(req *go_openai.ChatCompletionRequest, defaults, opts Options) {
	merged := defaults
	if opts.Temperature != 0 {
		merged.Temperature = opts.Temperature
	}
	if opts.TopP != 0 {
		merged.TopP = opts.TopP
	}
	if opts.MaxTokens != 0 {
		merged.MaxTokens = opts.MaxTokens
	}

	req.Temperature = merged.Temperature
	req.TopP = merged.TopP
	req.MaxTokens = merged.MaxTokens
}
