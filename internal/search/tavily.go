package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultDomains restricts Tavily queries to hosts that publish datasets.
var DefaultDomains = []string{"github.com", "huggingface.co", "arxiv.org", "paperswithcode.com"}

// Tavily is a Provider backed by the Tavily search API.
type Tavily struct {
	apiKey         string
	baseURL        string
	httpClient     *http.Client
	rateLimitPause time.Duration
	log            *zap.Logger
}

// NewTavily returns a Tavily client. baseURL defaults to https://api.tavily.com.
func NewTavily(apiKey, baseURL string, timeout time.Duration, log *zap.Logger) *Tavily {
	if baseURL == "" {
		baseURL = "https://api.tavily.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Tavily{
		apiKey:         apiKey,
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: timeout},
		rateLimitPause: 5 * time.Second,
		log:            log,
	}
}

// SetRateLimitPause overrides the wait applied after a 429.
func (t *Tavily) SetRateLimitPause(d time.Duration) {
	t.rateLimitPause = d
}

type tavilyRequest struct {
	APIKey            string   `json:"api_key"`
	Query             string   `json:"query"`
	SearchDepth       string   `json:"search_depth"`
	IncludeAnswer     bool     `json:"include_answer"`
	IncludeImages     bool     `json:"include_images"`
	IncludeRawContent bool     `json:"include_raw_content"`
	MaxResults        int      `json:"max_results"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs one query. At most 5 results are requested per call. A 429
// answer waits the rate-limit pause and returns ErrRateLimited.
func (t *Tavily) Search(ctx context.Context, q Query) ([]Result, error) {
	limit := q.MaxResults
	if limit <= 0 || limit > 5 {
		limit = 5
	}
	domains := q.IncludeDomains
	if domains == nil {
		domains = DefaultDomains
	}
	body, err := json.Marshal(tavilyRequest{
		APIKey:         t.apiKey,
		Query:          q.Text,
		SearchDepth:    "basic",
		MaxResults:     limit,
		IncludeDomains: domains,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		t.log.Warn("search rate limited", zap.String("query", q.Text), zap.Duration("pause", t.rateLimitPause))
		timer := time.NewTimer(t.rateLimitPause)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out tavilyResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]Result, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content, Query: q.Text})
	}
	return results, nil
}
