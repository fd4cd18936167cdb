// ABOUTME: Provider adapter contract shared by all LLM backend families
// ABOUTME: Defines Turn, Options, the Adapter interface and the typed Error

package provider

import (
	"context"
	"errors"
	"fmt"
)

// Role tags one turn of a provider request.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged unit of text sent to a provider.
type Turn struct {
	Role    Role
	Content string
}

// Options carries per-call generation parameters. Zero values mean
// "use the adapter's default"; adapters bake in their backend's defaults.
//
// System is instruction text that rides the backend's system channel when one
// exists. Adapters for backends without a system channel fold it into the
// turn sequence instead of dropping it.
type Options struct {
	System      string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Adapter generates a complete assistant response for an ordered turn
// sequence. Implementations hide whether the backend answers atomically or
// as a fragment stream: callers always receive the final concatenated text.
// Any transport, auth or backend failure is returned as a *Error.
type Adapter interface {
	// Generate sends the turns to the backend and returns the response text.
	Generate(ctx context.Context, turns []Turn, modelID string, opts Options) (string, error)
}

// Error is the typed failure every adapter converts backend errors into.
// It never escapes the adapter boundary as a raw transport error.
type Error struct {
	Provider string // adapter label family, e.g. "anthropic"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapErr converts a backend failure into a *Error unless it already is one.
func wrapErr(name string, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Provider: name, Err: err}
}
