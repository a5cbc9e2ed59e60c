package search

import (
	"context"
	"errors"
)

// ErrRateLimited is returned by providers when the service answered 429.
// The caller may retry the query once.
var ErrRateLimited = errors.New("search rate limited")

// Result is one web search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"relevance_score"`
	Query   string  `json:"search_query,omitempty"`
}

// Query is a single search request.
type Query struct {
	Text           string
	MaxResults     int
	IncludeDomains []string
}

// Provider is a web search backend.
type Provider interface {
	Search(ctx context.Context, q Query) ([]Result, error)
}
