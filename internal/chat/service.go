// ABOUTME: Chat service: validate, authorize, rebuild context, dispatch, persist
// ABOUTME: Store writes happen only after the provider call returns text

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/omnichat/gateway/internal/provider"
	"github.com/omnichat/gateway/internal/store"
)

const (
	maxTitleLength = 100
	titleWordCap   = 8
)

// ConversationStore defines what the service needs from storage.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *store.Conversation, userMsg, assistantMsg *store.Message, pair *store.MessageResponsePair) error
	CreateConversationWithHistory(ctx context.Context, conv *store.Conversation, msgs []*store.Message, pairs []*store.MessageResponsePair) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]*store.Conversation, error)
	RenameConversation(ctx context.Context, id, title string) (*store.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]*store.Message, error)
	AppendExchange(ctx context.Context, userMsg, assistantMsg *store.Message, pair *store.MessageResponsePair) error
	GetPairByUserMessage(ctx context.Context, userMessageID string) (*store.MessageResponsePair, error)
	SaveRegeneratedPair(ctx context.Context, pair *store.MessageResponsePair, userText string, assistant *store.Message) error
	ListExchanges(ctx context.Context, conversationID string, limit int) ([]*store.Exchange, error)
}

// AdapterSource resolves a provider label to an adapter.
type AdapterSource interface {
	Get(label string) (provider.Adapter, error)
}

// Searcher fetches background context for a query. Implementations are
// fail-soft and never return an error.
type Searcher interface {
	Fetch(ctx context.Context, query string) string
}

// Service orchestrates conversations. All provider traffic and all
// conversation persistence flow through here.
type Service struct {
	store           ConversationStore
	providers       AdapterSource
	search          Searcher
	logger          *slog.Logger
	maxContextTurns int
	pageSize        int
}

// New creates a chat service. A nil search disables augmentation; zero
// window values fall back to sensible defaults.
func New(st ConversationStore, providers AdapterSource, search Searcher, logger *slog.Logger, maxContextTurns, pageSize int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxContextTurns <= 0 {
		maxContextTurns = 20
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Service{
		store:           st,
		providers:       providers,
		search:          search,
		logger:          logger.With("component", "chat"),
		maxContextTurns: maxContextTurns,
		pageSize:        pageSize,
	}
}

// SendParams carries one user message aimed at a provider.
type SendParams struct {
	OwnerID       string
	Text          string
	ProviderLabel string
	ModelID       string
	UseSearch     bool
}

// ExchangeResult is the persisted outcome of a successful provider call.
type ExchangeResult struct {
	Conversation     *store.Conversation
	UserMessage      *store.Message
	AssistantMessage *store.Message
	Pair             *store.MessageResponsePair
}

// StartConversation creates a conversation from its first message. Nothing is
// persisted unless the provider call succeeds.
func (s *Service) StartConversation(ctx context.Context, p SendParams) (*ExchangeResult, error) {
	if err := validateText(p.Text); err != nil {
		return nil, err
	}
	adapter, err := s.providers.Get(p.ProviderLabel)
	if err != nil {
		return nil, err
	}

	turns := buildTurns(nil, s.searchContext(ctx, p), p.Text)
	text, err := adapter.Generate(ctx, turns, p.ModelID, provider.Options{System: systemPrompt})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	conv := &store.Conversation{
		ID:        uuid.New().String(),
		OwnerID:   p.OwnerID,
		Title:     deriveTitle(p.Text),
		Model:     p.ModelID,
		CreatedAt: now,
		UpdatedAt: now.Add(time.Millisecond),
	}
	userMsg, assistantMsg, pair := newExchange(conv.ID, p.Text, text, now)

	if err := s.store.CreateConversation(ctx, conv, userMsg, assistantMsg, pair); err != nil {
		return nil, fmt.Errorf("persisting conversation: %w", err)
	}

	s.logger.Info("conversation started",
		"conversation_id", conv.ID,
		"owner_id", p.OwnerID,
		"provider", p.ProviderLabel,
		"model", p.ModelID)

	return &ExchangeResult{Conversation: conv, UserMessage: userMsg, AssistantMessage: assistantMsg, Pair: pair}, nil
}

// ContinueConversation appends one exchange to an existing conversation. The
// provider sees the stored history, windowed to the most recent turns,
// oldest-first, followed by the new user text.
func (s *Service) ContinueConversation(ctx context.Context, conversationID string, p SendParams) (*ExchangeResult, error) {
	if err := validateText(p.Text); err != nil {
		return nil, err
	}
	conv, err := s.authorize(ctx, p.OwnerID, conversationID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.providers.Get(p.ProviderLabel)
	if err != nil {
		return nil, err
	}

	prior, err := s.store.GetMessagesByConversation(ctx, conversationID, s.maxContextTurns)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	turns := buildTurns(prior, s.searchContext(ctx, p), p.Text)
	text, err := adapter.Generate(ctx, turns, p.ModelID, provider.Options{System: systemPrompt})
	if err != nil {
		return nil, err
	}

	userMsg, assistantMsg, pair := newExchange(conversationID, p.Text, text, time.Now().UTC())
	if err := s.store.AppendExchange(ctx, userMsg, assistantMsg, pair); err != nil {
		return nil, fmt.Errorf("persisting exchange: %w", err)
	}

	return &ExchangeResult{Conversation: conv, UserMessage: userMsg, AssistantMessage: assistantMsg, Pair: pair}, nil
}

// EditParams carries an edit of a previously sent user message.
type EditParams struct {
	OwnerID       string
	NewText       string
	ProviderLabel string
	ModelID       string
}

// EditAndRegenerate replaces the text of an existing user message and
// regenerates its assistant reply in place. The substitution happens in
// memory first; the store is only touched in one transaction after the
// provider call succeeds, so a failure leaves the original pair intact.
func (s *Service) EditAndRegenerate(ctx context.Context, messageID string, p EditParams) (*ExchangeResult, error) {
	if err := validateText(p.NewText); err != nil {
		return nil, err
	}
	pair, err := s.store.GetPairByUserMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	conv, err := s.authorize(ctx, p.OwnerID, pair.ConversationID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.providers.Get(p.ProviderLabel)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.GetMessagesByConversation(ctx, pair.ConversationID, 0)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	turns := buildEditedTurns(msgs, messageID, p.NewText, pair.AssistantMessageID)
	text, err := adapter.Generate(ctx, turns, p.ModelID, provider.Options{System: systemPrompt})
	if err != nil {
		return nil, err
	}

	assistant := &store.Message{
		ConversationID: pair.ConversationID,
		Sender:         store.SenderAssistant,
		Content:        text,
		CreatedAt:      time.Now().UTC(),
	}
	if pair.AssistantMessageID != nil {
		assistant.ID = *pair.AssistantMessageID
	} else {
		assistant.ID = uuid.New().String()
	}

	if err := s.store.SaveRegeneratedPair(ctx, pair, p.NewText, assistant); err != nil {
		return nil, fmt.Errorf("persisting regenerated pair: %w", err)
	}
	if pair.AssistantMessageID == nil {
		pair.AssistantMessageID = &assistant.ID
	}

	userMsg := &store.Message{
		ID:             messageID,
		ConversationID: pair.ConversationID,
		Sender:         store.SenderUser,
		Content:        p.NewText,
	}
	return &ExchangeResult{Conversation: conv, UserMessage: userMsg, AssistantMessage: assistant, Pair: pair}, nil
}

// BranchConversation copies a conversation's full exchange history into a new
// conversation owned by the same caller, linked back to its parent.
func (s *Service) BranchConversation(ctx context.Context, ownerID, conversationID, title string) (*store.Conversation, error) {
	parent, err := s.authorize(ctx, ownerID, conversationID)
	if err != nil {
		return nil, err
	}

	exchanges, err := s.store.ListExchanges(ctx, conversationID, 0)
	if err != nil {
		return nil, fmt.Errorf("loading exchanges: %w", err)
	}

	if title == "" {
		title = parent.Title + " (branch)"
	}
	if err := validateTitle(title); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	branch := &store.Conversation{
		ID:           uuid.New().String(),
		OwnerID:      ownerID,
		Title:        title,
		BranchedFrom: &parent.ID,
		Model:        parent.Model,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var msgs []*store.Message
	var pairs []*store.MessageResponsePair
	for _, ex := range exchanges {
		user := &store.Message{
			ID:             uuid.New().String(),
			ConversationID: branch.ID,
			Sender:         store.SenderUser,
			Content:        ex.UserMessage.Content,
			CreatedAt:      ex.UserMessage.CreatedAt,
		}
		msgs = append(msgs, user)

		pair := &store.MessageResponsePair{
			ID:             uuid.New().String(),
			ConversationID: branch.ID,
			UserMessageID:  user.ID,
			CreatedAt:      ex.Pair.CreatedAt,
		}
		if ex.AssistantMessage != nil {
			assistant := &store.Message{
				ID:             uuid.New().String(),
				ConversationID: branch.ID,
				Sender:         store.SenderAssistant,
				Content:        ex.AssistantMessage.Content,
				CreatedAt:      ex.AssistantMessage.CreatedAt,
			}
			msgs = append(msgs, assistant)
			pair.AssistantMessageID = &assistant.ID
		}
		pairs = append(pairs, pair)
	}

	if err := s.store.CreateConversationWithHistory(ctx, branch, msgs, pairs); err != nil {
		return nil, fmt.Errorf("persisting branch: %w", err)
	}

	s.logger.Info("conversation branched",
		"conversation_id", branch.ID,
		"parent_id", parent.ID,
		"exchanges", len(pairs))

	return branch, nil
}

// RenameConversation sets a new title after ownership and length checks.
func (s *Service) RenameConversation(ctx context.Context, ownerID, conversationID, title string) (*store.Conversation, error) {
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if _, err := s.authorize(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	return s.store.RenameConversation(ctx, conversationID, title)
}

// DeleteConversation removes a conversation and everything under it.
func (s *Service) DeleteConversation(ctx context.Context, ownerID, conversationID string) error {
	if _, err := s.authorize(ctx, ownerID, conversationID); err != nil {
		return err
	}
	return s.store.DeleteConversation(ctx, conversationID)
}

// ListConversations returns the caller's conversations, most recently
// updated first.
func (s *Service) ListConversations(ctx context.Context, ownerID string) ([]*store.Conversation, error) {
	return s.store.ListConversations(ctx, ownerID)
}

// GetExchanges returns a conversation's exchanges oldest-first, capped at the
// service page size.
func (s *Service) GetExchanges(ctx context.Context, ownerID, conversationID string) ([]*store.Exchange, error) {
	if _, err := s.authorize(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListExchanges(ctx, conversationID, s.pageSize)
}

// authorize loads the conversation and checks the caller owns it.
// store.ErrNotFound passes through so missing and forbidden stay distinct.
func (s *Service) authorize(ctx context.Context, ownerID, conversationID string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != ownerID {
		return nil, ErrUnauthorized
	}
	return conv, nil
}

// searchContext fetches augmentation text when requested. A disabled or
// failed search never blocks the provider call.
func (s *Service) searchContext(ctx context.Context, p SendParams) string {
	if !p.UseSearch || s.search == nil {
		return ""
	}
	return s.search.Fetch(ctx, p.Text)
}

// newExchange builds the user message, assistant message and linking pair
// for one completed provider round trip. The assistant message is stamped a
// millisecond after the user message so created_at totally orders turns.
func newExchange(conversationID, userText, assistantText string, now time.Time) (*store.Message, *store.Message, *store.MessageResponsePair) {
	userMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         store.SenderUser,
		Content:        userText,
		CreatedAt:      now,
	}
	assistantMsg := &store.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         store.SenderAssistant,
		Content:        assistantText,
		CreatedAt:      now.Add(time.Millisecond),
	}
	pair := &store.MessageResponsePair{
		ID:                 uuid.New().String(),
		ConversationID:     conversationID,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: &assistantMsg.ID,
		CreatedAt:          now,
	}
	return userMsg, assistantMsg, pair
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	return nil
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", maxTitleLength)}
	}
	return nil
}

// deriveTitle turns the first words of the opening message into a title.
func deriveTitle(text string) string {
	words := strings.Fields(text)
	if len(words) > titleWordCap {
		words = words[:titleWordCap]
	}
	title := strings.Join(words, " ")
	if utf8.RuneCountInString(title) > maxTitleLength {
		runes := []rune(title)
		title = string(runes[:maxTitleLength-3]) + "..."
	}
	return title
}
