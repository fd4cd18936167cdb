// ABOUTME: Instant-answer search client used to augment chat turns
// ABOUTME: One attempt, fail-soft: failures degrade to a placeholder string

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Unavailable is returned in place of search context when the lookup fails.
// It is user-visible, so it reads like a notice rather than an error dump.
const Unavailable = "(search is currently unavailable)"

const defaultEndpoint = "https://api.duckduckgo.com"

// Client fetches short textual context for a query from an instant-answer
// endpoint. It performs exactly one attempt per query and never returns an
// error: any failure degrades to the Unavailable placeholder so the provider
// call is never blocked.
type Client struct {
	httpClient  *http.Client
	endpoint    string
	maxSnippets int
	logger      *slog.Logger
}

// New creates a search client. An empty endpoint selects the public
// instant-answer API; maxSnippets bounds how many related-topic snippets are
// appended to the abstract.
func New(endpoint string, maxSnippets int, timeout time.Duration, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		endpoint:    strings.TrimSuffix(endpoint, "/"),
		maxSnippets: maxSnippets,
		logger:      logger.With("component", "search"),
	}
}

// answerPayload is the subset of the instant-answer response we read.
type answerPayload struct {
	AbstractText  string `json:"AbstractText"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

// Fetch returns a short text summary for the query, or the Unavailable
// placeholder. It never returns an error.
func (c *Client) Fetch(ctx context.Context, query string) string {
	reqURL := fmt.Sprintf("%s/?q=%s&format=json&no_html=1", c.endpoint, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		c.logger.Warn("building search request failed", "error", err)
		return Unavailable
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("search request failed", "error", err)
		return Unavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("search returned non-OK status", "status", resp.StatusCode)
		return Unavailable
	}

	var payload answerPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logger.Warn("decoding search response failed", "error", err)
		return Unavailable
	}

	parts := make([]string, 0, c.maxSnippets+1)
	if payload.AbstractText != "" {
		parts = append(parts, payload.AbstractText)
	}
	for _, topic := range payload.RelatedTopics {
		if len(parts) >= c.maxSnippets+1 {
			break
		}
		if topic.Text != "" {
			parts = append(parts, topic.Text)
		}
	}

	if len(parts) == 0 {
		return Unavailable
	}
	return strings.Join(parts, "\n")
}
