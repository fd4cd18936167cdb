// ABOUTME: Tests for the Ollama chat adapter
// ABOUTME: Covers streamed fragment folding via the local chat API

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaAdapter_FoldsStream(t *testing.T) {
	var gotReq struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"llama2","created_at":"2024-01-01T00:00:00Z","message":{"role":"assistant","content":"Hel"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama2","created_at":"2024-01-01T00:00:01Z","message":{"role":"assistant","content":"lo"},"done":true}`)
	}))
	defer srv.Close()

	adapter, err := NewOllamaAdapter(srv.URL)
	require.NoError(t, err)

	turns := []Turn{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "Hi"},
	}
	text, err := adapter.Generate(context.Background(), turns, "llama2", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	assert.Equal(t, "llama2", gotReq.Model)
	require.Len(t, gotReq.Messages, 2)
	// Ollama has a system role, so guidance stays a separate message
	assert.Equal(t, "system", gotReq.Messages[0].Role)
}

func TestOllamaAdapter_DaemonDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	adapter, err := NewOllamaAdapter(srv.URL)
	require.NoError(t, err)

	_, err = adapter.Generate(context.Background(), []Turn{{Role: RoleUser, Content: "hi"}}, "llama2", Options{})
	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, "ollama", pErr.Provider)
}

func TestNewOllamaAdapter_BadURL(t *testing.T) {
	_, err := NewOllamaAdapter("://not-a-url")
	require.Error(t, err)
}
