// ABOUTME: Label-to-adapter registry built once at startup from configuration
// ABOUTME: Replaces per-operation label conditionals with one explicit mapping

package provider

import (
	"errors"
	"fmt"
	"sort"

	"github.com/omnichat/gateway/internal/config"
)

// ErrUnknownLabel is returned when no adapter is registered for a label.
var ErrUnknownLabel = errors.New("unknown model label")

// Labels for the supported backend families. The caller supplies one of
// these alongside the raw model id.
const (
	LabelOpenAI    = "OpenAI"
	LabelDeepSeek  = "DeepSeek"
	LabelNvidia    = "Nvidia"
	LabelAnthropic = "Anthropic"
	LabelGemini    = "Gemini"
	LabelOllama    = "Ollama"
)

// OpenRouter serves the DeepSeek models through the OpenAI wire format.
const openRouterBaseURL = "https://openrouter.ai/api/v1"

// NVIDIA's endpoint answers as a fragment stream.
const nvidiaBaseURL = "https://integrate.api.nvidia.com/v1"

// Registry maps caller-supplied labels to adapter implementations.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register binds a label to an adapter, replacing any previous binding.
func (r *Registry) Register(label string, adapter Adapter) {
	r.adapters[label] = adapter
}

// Get resolves a label to its adapter.
func (r *Registry) Get(label string) (Adapter, error) {
	adapter, ok := r.adapters[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return adapter, nil
}

// Labels returns the registered labels in sorted order.
func (r *Registry) Labels() []string {
	labels := make([]string, 0, len(r.adapters))
	for label := range r.adapters {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// NewRegistryFromConfig registers one adapter per configured backend family.
// Families without credentials are skipped.
func NewRegistryFromConfig(cfg config.ProvidersConfig) (*Registry, error) {
	r := NewRegistry()

	if cfg.OpenAI.APIKey != "" {
		r.Register(LabelOpenAI, NewOpenAICompatAdapter(
			"openai", cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, false, Options{}))
	}

	if cfg.DeepSeek.APIKey != "" {
		baseURL := cfg.DeepSeek.BaseURL
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
		r.Register(LabelDeepSeek, NewOpenAICompatAdapter(
			"deepseek", cfg.DeepSeek.APIKey, baseURL, false, Options{}))
	}

	if cfg.Nvidia.APIKey != "" {
		baseURL := cfg.Nvidia.BaseURL
		if baseURL == "" {
			baseURL = nvidiaBaseURL
		}
		r.Register(LabelNvidia, NewOpenAICompatAdapter(
			"nvidia", cfg.Nvidia.APIKey, baseURL, true,
			Options{Temperature: 0.5, TopP: 1, MaxTokens: 1024}))
	}

	if cfg.Anthropic.APIKey != "" {
		r.Register(LabelAnthropic, NewAnthropicAdapter(
			cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, cfg.Anthropic.APIVersion, cfg.Anthropic.MaxTokens))
	}

	if cfg.Gemini.APIKey != "" {
		r.Register(LabelGemini, NewGeminiAdapter(cfg.Gemini.APIKey, cfg.Gemini.BaseURL))
	}

	if cfg.Ollama.BaseURL != "" {
		adapter, err := NewOllamaAdapter(cfg.Ollama.BaseURL)
		if err != nil {
			return nil, err
		}
		r.Register(LabelOllama, adapter)
	}

	return r, nil
}
