// ABOUTME: Tests for the fail-soft search client
// ABOUTME: Covers snippet bounding and every degradation path

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_AbstractAndSnippets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "go language", r.URL.Query().Get("q"))
		require.Equal(t, "json", r.URL.Query().Get("format"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"AbstractText": "Go is a programming language.",
			"RelatedTopics": [
				{"Text": "Snippet one"},
				{"Text": "Snippet two"},
				{"Text": "Snippet three"},
				{"Text": "Snippet four"}
			]
		}`)
	}))
	defer srv.Close()

	c := New(srv.URL, 2, time.Second, nil)
	got := c.Fetch(context.Background(), "go language")

	lines := strings.Split(got, "\n")
	require.Len(t, lines, 3, "abstract plus two snippets")
	assert.Equal(t, "Go is a programming language.", lines[0])
	assert.Equal(t, "Snippet one", lines[1])
	assert.Equal(t, "Snippet two", lines[2])
}

func TestFetch_NoAbstract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"AbstractText": "", "RelatedTopics": [{"Text": "Only snippet"}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL, 3, time.Second, nil)
	assert.Equal(t, "Only snippet", c.Fetch(context.Background(), "q"))
}

func TestFetch_DegradesToPlaceholder(t *testing.T) {
	cases := []struct {
		name  string
		setup func(t *testing.T) *Client
	}{
		{
			name: "server down",
			setup: func(t *testing.T) *Client {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
				srv.Close()
				return New(srv.URL, 3, time.Second, nil)
			},
		},
		{
			name: "non-OK status",
			setup: func(t *testing.T) *Client {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusInternalServerError)
				}))
				t.Cleanup(srv.Close)
				return New(srv.URL, 3, time.Second, nil)
			},
		},
		{
			name: "garbage body",
			setup: func(t *testing.T) *Client {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					fmt.Fprint(w, "<html>not json</html>")
				}))
				t.Cleanup(srv.Close)
				return New(srv.URL, 3, time.Second, nil)
			},
		},
		{
			name: "empty answer",
			setup: func(t *testing.T) *Client {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					fmt.Fprint(w, `{"AbstractText": "", "RelatedTopics": []}`)
				}))
				t.Cleanup(srv.Close)
				return New(srv.URL, 3, time.Second, nil)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := tc.setup(t)
			assert.Equal(t, Unavailable, c.Fetch(context.Background(), "anything"))
		})
	}
}

func TestFetch_HonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(srv.URL, 3, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, Unavailable, c.Fetch(ctx, "q"))
}
