// ABOUTME: Store interface and data types for omnichat-gateway persistence
// ABOUTME: Defines Conversation, Message, MessageResponsePair and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Sender constants for message authorship. System instructions are applied
// at provider-call time and are never persisted, so there is no SYSTEM sender.
const (
	SenderUser      = "USER"
	SenderAssistant = "ASSISTANT"
)

// Conversation is a persisted thread of exchanges owned by one user.
type Conversation struct {
	ID           string
	OwnerID      string
	Title        string
	BranchedFrom *string // parent conversation id when forked, nil otherwise
	Model        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is a single user or assistant utterance within a conversation.
// Messages of one conversation are totally ordered by CreatedAt.
type Message struct {
	ID             string
	ConversationID string
	Sender         string // SenderUser or SenderAssistant
	Content        string
	CreatedAt      time.Time
}

// MessageResponsePair binds one user message to at most one assistant message
// within the same conversation. Pairs are the unit of edit-and-regenerate.
type MessageResponsePair struct {
	ID                 string
	ConversationID     string
	UserMessageID      string
	AssistantMessageID *string // nil until a response has been generated
	CreatedAt          time.Time
}

// Exchange is a pair with its message contents embedded, as returned by
// ListExchanges for history reads.
type Exchange struct {
	Pair             *MessageResponsePair
	UserMessage      *Message
	AssistantMessage *Message // nil when the pair has no assistant side yet
}

// Store defines the interface for conversation persistence
type Store interface {
	// Conversations
	CreateConversation(ctx context.Context, conv *Conversation, userMsg, assistantMsg *Message, pair *MessageResponsePair) error
	CreateConversationWithHistory(ctx context.Context, conv *Conversation, msgs []*Message, pairs []*MessageResponsePair) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]*Conversation, error)
	RenameConversation(ctx context.Context, id, title string) (*Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	// Messages
	GetMessage(ctx context.Context, id string) (*Message, error)
	GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error)

	// Exchanges
	AppendExchange(ctx context.Context, userMsg, assistantMsg *Message, pair *MessageResponsePair) error
	GetPairByUserMessage(ctx context.Context, userMessageID string) (*MessageResponsePair, error)
	SaveRegeneratedPair(ctx context.Context, pair *MessageResponsePair, userText string, assistant *Message) error
	ListExchanges(ctx context.Context, conversationID string, limit int) ([]*Exchange, error)

	Close() error
}
