// ABOUTME: Error values and types the chat service returns to its callers
// ABOUTME: The gateway maps these onto HTTP status codes

package chat

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when a caller operates on a conversation they
// do not own.
var ErrUnauthorized = errors.New("not authorized for this conversation")

// ValidationError reports malformed caller input. It is detected before any
// provider call or store write.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
