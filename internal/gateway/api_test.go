// ABOUTME: End-to-end tests for the HTTP API over a real SQLite store
// ABOUTME: Covers auth, the full conversation lifecycle and error status mapping

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnichat/gateway/internal/auth"
	"github.com/omnichat/gateway/internal/chat"
	"github.com/omnichat/gateway/internal/config"
	"github.com/omnichat/gateway/internal/provider"
	"github.com/omnichat/gateway/internal/store"
)

// stubAdapter returns canned text or a canned error.
type stubAdapter struct {
	text string
	err  error
}

func (a *stubAdapter) Generate(_ context.Context, _ []provider.Turn, _ string, _ provider.Options) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.text, nil
}

type testEnv struct {
	server   *httptest.Server
	verifier *auth.JWTVerifier
	adapter  *stubAdapter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	adapter := &stubAdapter{text: "Hi there"}
	registry := provider.NewRegistry()
	registry.Register("Stub", adapter)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	verifier := auth.NewJWTVerifier([]byte("test-secret"))

	g := &Gateway{
		config:    &config.Config{},
		store:     st,
		providers: registry,
		chat:      chat.New(st, registry, nil, logger, 0, 0),
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	g.registerAPIRoutes(mux, auth.HTTPMiddleware(verifier))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testEnv{server: srv, verifier: verifier, adapter: adapter}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.verifier.Generate(userID, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func sendBody(text string) SendMessageRequest {
	return SendMessageRequest{Text: text, Provider: "Stub", Model: "stub-model"}
}

func TestAPI_ConversationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	// Start
	resp := env.request(t, http.MethodPost, "/api/conversations", token, sendBody("Hello"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	started := decodeBody[SendMessageResponse](t, resp)
	assert.Equal(t, "Hello", started.Conversation.Title)
	assert.Equal(t, "Hello", started.Exchange.UserMessage.Content)
	require.NotNil(t, started.Exchange.AssistantMessage)
	assert.Equal(t, "Hi there", started.Exchange.AssistantMessage.Content)

	convID := started.Conversation.ID

	// Continue
	env.adapter.text = "I'm well"
	resp = env.request(t, http.MethodPost, "/api/conversations/"+convID+"/messages", token, sendBody("How are you?"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	continued := decodeBody[SendMessageResponse](t, resp)
	assert.Equal(t, "I'm well", continued.Exchange.AssistantMessage.Content)

	// List
	resp = env.request(t, http.MethodGet, "/api/conversations", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody[ListConversationsResponse](t, resp)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, convID, list.Conversations[0].ID)

	// Exchanges
	resp = env.request(t, http.MethodGet, "/api/conversations/"+convID+"/exchanges", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	exchanges := decodeBody[ConversationExchangesResponse](t, resp)
	require.Len(t, exchanges.Exchanges, 2)
	assert.Equal(t, "Hello", exchanges.Exchanges[0].UserMessage.Content)
	assert.Equal(t, "How are you?", exchanges.Exchanges[1].UserMessage.Content)

	// Edit the first user message
	env.adapter.text = "Hi again"
	editReq := EditMessageRequest{Text: "Hello there", Provider: "Stub", Model: "stub-model"}
	resp = env.request(t, http.MethodPut, "/api/messages/"+started.Exchange.UserMessage.ID, token, editReq)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	edited := decodeBody[SendMessageResponse](t, resp)
	assert.Equal(t, "Hello there", edited.Exchange.UserMessage.Content)
	assert.Equal(t, "Hi again", edited.Exchange.AssistantMessage.Content)

	resp = env.request(t, http.MethodGet, "/api/conversations/"+convID+"/exchanges", token, nil)
	exchanges = decodeBody[ConversationExchangesResponse](t, resp)
	require.Len(t, exchanges.Exchanges, 2)
	assert.Equal(t, "Hello there", exchanges.Exchanges[0].UserMessage.Content)
	assert.Equal(t, "Hi again", exchanges.Exchanges[0].AssistantMessage.Content)

	// Rename
	resp = env.request(t, http.MethodPatch, "/api/conversations/"+convID, token, RenameConversationRequest{Title: "Greetings"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	renamed := decodeBody[ConversationResponse](t, resp)
	assert.Equal(t, "Greetings", renamed.Title)

	// Delete
	resp = env.request(t, http.MethodDelete, "/api/conversations/"+convID, token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/api/conversations/"+convID+"/exchanges", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_Branch(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	resp := env.request(t, http.MethodPost, "/api/conversations", token, sendBody("Hello"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	started := decodeBody[SendMessageResponse](t, resp)

	resp = env.request(t, http.MethodPost, "/api/conversations/"+started.Conversation.ID+"/branch", token,
		BranchConversationRequest{Title: "Alternative"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	branch := decodeBody[ConversationResponse](t, resp)
	assert.Equal(t, "Alternative", branch.Title)
	require.NotNil(t, branch.BranchedFrom)
	assert.Equal(t, started.Conversation.ID, *branch.BranchedFrom)

	resp = env.request(t, http.MethodGet, "/api/conversations/"+branch.ID+"/exchanges", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	exchanges := decodeBody[ConversationExchangesResponse](t, resp)
	require.Len(t, exchanges.Exchanges, 1)
	assert.Equal(t, "Hello", exchanges.Exchanges[0].UserMessage.Content)
}

func TestAPI_AuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = env.request(t, http.MethodGet, "/api/conversations", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Health endpoints stay open
	resp = env.request(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_ErrorStatusMapping(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	resp := env.request(t, http.MethodPost, "/api/conversations", token, sendBody("Hello"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	started := decodeBody[SendMessageResponse](t, resp)
	convID := started.Conversation.ID

	cases := []struct {
		name   string
		do     func() *http.Response
		status int
	}{
		{
			name: "empty text",
			do: func() *http.Response {
				return env.request(t, http.MethodPost, "/api/conversations", token, sendBody("  "))
			},
			status: http.StatusBadRequest,
		},
		{
			name: "unknown provider",
			do: func() *http.Response {
				body := sendBody("Hello")
				body.Provider = "NoSuch"
				return env.request(t, http.MethodPost, "/api/conversations", token, body)
			},
			status: http.StatusBadRequest,
		},
		{
			name: "malformed body",
			do: func() *http.Response {
				req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/conversations", bytes.NewReader([]byte("{nope")))
				require.NoError(t, err)
				req.Header.Set("Authorization", "Bearer "+token)
				resp, err := http.DefaultClient.Do(req)
				require.NoError(t, err)
				return resp
			},
			status: http.StatusBadRequest,
		},
		{
			name: "someone else's conversation",
			do: func() *http.Response {
				other := env.token(t, "user-2")
				return env.request(t, http.MethodPost, "/api/conversations/"+convID+"/messages", other, sendBody("mine now"))
			},
			status: http.StatusForbidden,
		},
		{
			name: "unknown conversation",
			do: func() *http.Response {
				return env.request(t, http.MethodPost, "/api/conversations/no-such/messages", token, sendBody("hi"))
			},
			status: http.StatusNotFound,
		},
		{
			name: "unknown message",
			do: func() *http.Response {
				return env.request(t, http.MethodPut, "/api/messages/no-such", token,
					EditMessageRequest{Text: "x", Provider: "Stub", Model: "m"})
			},
			status: http.StatusNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := tc.do()
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestAPI_ProviderFailureIs502(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	env.adapter.err = &provider.Error{Provider: "stub", Err: errors.New("backend down")}
	resp := env.request(t, http.MethodPost, "/api/conversations", token, sendBody("Hello"))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	// Nothing was persisted for the failed call
	env.adapter.err = nil
	resp2 := env.request(t, http.MethodGet, "/api/conversations", token, nil)
	list := decodeBody[ListConversationsResponse](t, resp2)
	assert.Empty(t, list.Conversations)
}

func TestAPI_ListProviders(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "user-1")

	resp := env.request(t, http.MethodGet, "/api/providers", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	providers := decodeBody[ListProvidersResponse](t, resp)
	assert.Equal(t, []string{"Stub"}, providers.Providers)
}

func TestHealthReady(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/health/ready", "", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("ready (%d providers)", 1), string(data))
}
