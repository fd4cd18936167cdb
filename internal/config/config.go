// ABOUTME: Configuration loading and parsing for omnichat-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete omnichat-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Providers ProvidersConfig `yaml:"providers"`
	Search    SearchConfig    `yaml:"search"`
	Chat      ChatConfig      `yaml:"chat"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// ProvidersConfig holds one credential block per supported backend family.
// A family with an empty API key (or base URL for Ollama) is not registered.
type ProvidersConfig struct {
	OpenAI    OpenAICompatConfig `yaml:"openai"`
	DeepSeek  OpenAICompatConfig `yaml:"deepseek"`
	Nvidia    OpenAICompatConfig `yaml:"nvidia"`
	Anthropic AnthropicConfig    `yaml:"anthropic"`
	Gemini    GeminiConfig       `yaml:"gemini"`
	Ollama    OllamaConfig       `yaml:"ollama"`
}

// OpenAICompatConfig holds credentials for an OpenAI-compatible backend.
// BaseURL is empty for api.openai.com and set for OpenRouter/NVIDIA endpoints.
type OpenAICompatConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// AnthropicConfig holds credentials for the Anthropic messages API
type AnthropicConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"`
	MaxTokens  int    `yaml:"max_tokens"`
}

// GeminiConfig holds credentials for the Gemini generateContent API
type GeminiConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// OllamaConfig holds the local Ollama endpoint
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
}

// SearchConfig holds the search augmentation endpoint configuration
type SearchConfig struct {
	Endpoint    string `yaml:"endpoint"`
	MaxSnippets int    `yaml:"max_snippets"`

	Timeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// ChatConfig holds orchestration limits
type ChatConfig struct {
	// MaxContextTurns caps how many stored messages are replayed to a
	// provider on follow-up turns. Long conversations are truncated to the
	// most recent turns; summarization is out of scope.
	MaxContextTurns int `yaml:"max_context_turns"`
	// PageSize caps how many exchanges a single history read returns.
	PageSize int `yaml:"page_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied by Load when fields are unset
const (
	DefaultMaxContextTurns = 20
	DefaultPageSize        = 50
	DefaultSearchSnippets  = 3
	DefaultSearchTimeout   = 5 * time.Second
	DefaultAnthropicTokens = 1024
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset optional fields
func (c *Config) applyDefaults() {
	if c.Chat.MaxContextTurns <= 0 {
		c.Chat.MaxContextTurns = DefaultMaxContextTurns
	}
	if c.Chat.PageSize <= 0 {
		c.Chat.PageSize = DefaultPageSize
	}
	if c.Search.MaxSnippets <= 0 {
		c.Search.MaxSnippets = DefaultSearchSnippets
	}
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = DefaultSearchTimeout
	}
	if c.Providers.Anthropic.MaxTokens <= 0 {
		c.Providers.Anthropic.MaxTokens = DefaultAnthropicTokens
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if !c.anyProviderConfigured() {
		return fmt.Errorf("at least one provider must be configured")
	}

	return nil
}

func (c *Config) anyProviderConfigured() bool {
	p := c.Providers
	return p.OpenAI.APIKey != "" ||
		p.DeepSeek.APIKey != "" ||
		p.Nvidia.APIKey != "" ||
		p.Anthropic.APIKey != "" ||
		p.Gemini.APIKey != "" ||
		p.Ollama.BaseURL != ""
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Search.TimeoutRaw != "" {
		cfg.Search.Timeout, err = time.ParseDuration(cfg.Search.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing search timeout %q: %w", cfg.Search.TimeoutRaw, err)
		}
	}

	return nil
}
