// ABOUTME: HTTP API handlers for the chat endpoints
// ABOUTME: Decodes JSON requests, calls the chat service and maps errors to status codes

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/omnichat/gateway/internal/auth"
	"github.com/omnichat/gateway/internal/chat"
	"github.com/omnichat/gateway/internal/provider"
	"github.com/omnichat/gateway/internal/store"
)

// SendMessageRequest is the JSON body for starting or continuing a conversation.
type SendMessageRequest struct {
	Text      string `json:"text"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	UseSearch bool   `json:"use_search,omitempty"`
}

// EditMessageRequest is the JSON body for PUT /api/messages/{id}.
type EditMessageRequest struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// RenameConversationRequest is the JSON body for PATCH /api/conversations/{id}.
type RenameConversationRequest struct {
	Title string `json:"title"`
}

// BranchConversationRequest is the JSON body for POST /api/conversations/{id}/branch.
type BranchConversationRequest struct {
	Title string `json:"title,omitempty"`
}

// ConversationResponse is the JSON shape of a conversation.
type ConversationResponse struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	BranchedFrom *string `json:"branched_from,omitempty"`
	Model        string  `json:"model"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

// MessageResponse is the JSON shape of one message.
type MessageResponse struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// ExchangeResponse is one user message and its assistant reply.
type ExchangeResponse struct {
	PairID           string           `json:"pair_id"`
	UserMessage      MessageResponse  `json:"user_message"`
	AssistantMessage *MessageResponse `json:"assistant_message,omitempty"`
}

// SendMessageResponse is the JSON response for start and continue.
type SendMessageResponse struct {
	Conversation ConversationResponse `json:"conversation"`
	Exchange     ExchangeResponse     `json:"exchange"`
}

// ListConversationsResponse is the JSON response for GET /api/conversations.
type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

// ConversationExchangesResponse is the JSON response for GET /api/conversations/{id}/exchanges.
type ConversationExchangesResponse struct {
	ConversationID string             `json:"conversation_id"`
	Exchanges      []ExchangeResponse `json:"exchanges"`
}

// ListProvidersResponse is the JSON response for GET /api/providers.
type ListProvidersResponse struct {
	Providers []string `json:"providers"`
}

func toConversationResponse(conv *store.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:           conv.ID,
		Title:        conv.Title,
		BranchedFrom: conv.BranchedFrom,
		Model:        conv.Model,
		CreatedAt:    conv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    conv.UpdatedAt.Format(time.RFC3339),
	}
}

func toMessageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:        msg.ID,
		Sender:    msg.Sender,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
	}
}

func toExchangeResponse(res *chat.ExchangeResult) ExchangeResponse {
	out := ExchangeResponse{
		PairID:      res.Pair.ID,
		UserMessage: toMessageResponse(res.UserMessage),
	}
	if res.AssistantMessage != nil {
		assistant := toMessageResponse(res.AssistantMessage)
		out.AssistantMessage = &assistant
	}
	return out
}

// identity pulls the authenticated caller from the request context. The auth
// middleware guarantees it on API routes; a missing identity is a wiring bug.
func (g *Gateway) identity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	id := auth.FromContext(r.Context())
	if id == nil {
		g.sendJSONError(w, http.StatusUnauthorized, "missing identity")
		return nil, false
	}
	return id, true
}

// handleStartConversation handles POST /api/conversations.
func (g *Gateway) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := g.chat.StartConversation(r.Context(), chat.SendParams{
		OwnerID:       id.UserID,
		Text:          req.Text,
		ProviderLabel: req.Provider,
		ModelID:       req.Model,
		UseSearch:     req.UseSearch,
	})
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusCreated, SendMessageResponse{
		Conversation: toConversationResponse(res.Conversation),
		Exchange:     toExchangeResponse(res),
	})
}

// handleContinueConversation handles POST /api/conversations/{id}/messages.
func (g *Gateway) handleContinueConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := g.chat.ContinueConversation(r.Context(), r.PathValue("id"), chat.SendParams{
		OwnerID:       id.UserID,
		Text:          req.Text,
		ProviderLabel: req.Provider,
		ModelID:       req.Model,
		UseSearch:     req.UseSearch,
	})
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, SendMessageResponse{
		Conversation: toConversationResponse(res.Conversation),
		Exchange:     toExchangeResponse(res),
	})
}

// handleEditMessage handles PUT /api/messages/{id}.
func (g *Gateway) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := g.chat.EditAndRegenerate(r.Context(), r.PathValue("id"), chat.EditParams{
		OwnerID:       id.UserID,
		NewText:       req.Text,
		ProviderLabel: req.Provider,
		ModelID:       req.Model,
	})
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, SendMessageResponse{
		Conversation: toConversationResponse(res.Conversation),
		Exchange:     toExchangeResponse(res),
	})
}

// handleBranchConversation handles POST /api/conversations/{id}/branch.
func (g *Gateway) handleBranchConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}

	var req BranchConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	branch, err := g.chat.BranchConversation(r.Context(), id.UserID, r.PathValue("id"), req.Title)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusCreated, toConversationResponse(branch))
}

// handleListConversations handles GET /api/conversations.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}

	convs, err := g.chat.ListConversations(r.Context(), id.UserID)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	response := ListConversationsResponse{
		Conversations: make([]ConversationResponse, len(convs)),
	}
	for i, conv := range convs {
		response.Conversations[i] = toConversationResponse(conv)
	}
	g.writeJSON(w, http.StatusOK, response)
}

// handleGetExchanges handles GET /api/conversations/{id}/exchanges.
func (g *Gateway) handleGetExchanges(w http.ResponseWriter, r *http.Request) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}

	conversationID := r.PathValue("id")
	exchanges, err := g.chat.GetExchanges(r.Context(), id.UserID, conversationID)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	response := ConversationExchangesResponse{
		ConversationID: conversationID,
		Exchanges:      make([]ExchangeResponse, len(exchanges)),
	}
	for i, ex := range exchanges {
		er := ExchangeResponse{
			PairID:      ex.Pair.ID,
			UserMessage: toMessageResponse(ex.UserMessage),
		}
		if ex.AssistantMessage != nil {
			assistant := toMessageResponse(ex.AssistantMessage)
			er.AssistantMessage = &assistant
		}
		response.Exchanges[i] = er
	}
	g.writeJSON(w, http.StatusOK, response)
}

// handleRenameConversation handles PATCH /api/conversations/{id}.
func (g *Gateway) handleRenameConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}

	var req RenameConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	conv, err := g.chat.RenameConversation(r.Context(), id.UserID, r.PathValue("id"), req.Title)
	if err != nil {
		g.writeServiceError(w, err)
		return
	}

	g.writeJSON(w, http.StatusOK, toConversationResponse(conv))
}

// handleDeleteConversation handles DELETE /api/conversations/{id}.
func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := g.identity(w, r)
	if !ok {
		return
	}

	if err := g.chat.DeleteConversation(r.Context(), id.UserID, r.PathValue("id")); err != nil {
		g.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListProviders handles GET /api/providers.
func (g *Gateway) handleListProviders(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, ListProvidersResponse{Providers: g.providers.Labels()})
}

// writeServiceError maps chat service errors onto HTTP status codes.
// Validation failures and unknown provider labels are the caller's fault;
// provider failures surface as 502 so clients can tell them from gateway bugs.
func (g *Gateway) writeServiceError(w http.ResponseWriter, err error) {
	var vErr *chat.ValidationError
	if errors.As(err, &vErr) {
		g.sendJSONError(w, http.StatusBadRequest, vErr.Error())
		return
	}
	if errors.Is(err, provider.ErrUnknownLabel) {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if errors.Is(err, chat.ErrUnauthorized) {
		g.sendJSONError(w, http.StatusForbidden, "not authorized for this conversation")
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusNotFound, "not found")
		return
	}
	var pErr *provider.Error
	if errors.As(err, &pErr) {
		g.logger.Error("provider call failed", "provider", pErr.Provider, "error", pErr.Err)
		g.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error": map[string]string{
				"type":     "provider_error",
				"provider": pErr.Provider,
				"message":  pErr.Err.Error(),
			},
		})
		return
	}

	g.logger.Error("internal error", "error", err)
	g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
}

// writeJSON writes a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("encoding response failed", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
