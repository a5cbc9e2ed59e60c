package search

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Searcher runs the query plan for one dataset against a Provider.
type Searcher struct {
	provider   Provider
	maxResults int
	pause      time.Duration
	log        *zap.Logger
}

// NewSearcher returns a Searcher that keeps at most maxResults ranked hits
// and waits one second between queries.
func NewSearcher(p Provider, maxResults int, log *zap.Logger) *Searcher {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Searcher{provider: p, maxResults: maxResults, pause: time.Second, log: log}
}

// SetPause overrides the delay between consecutive queries.
func (s *Searcher) SetPause(d time.Duration) {
	s.pause = d
}

// Run searches for the dataset and returns deduplicated, ranked results.
// Query failures are logged and skipped; an empty list is a valid outcome.
func (s *Searcher) Run(ctx context.Context, name, description string) []Result {
	queries := BuildQueries(name, description)
	var all []Result
	for i, q := range queries {
		if i > 0 && s.pause > 0 {
			select {
			case <-ctx.Done():
				return s.finish(all, name)
			case <-time.After(s.pause):
			}
		}
		res, err := s.query(ctx, q)
		if err != nil {
			s.log.Warn("search query failed", zap.String("query", q), zap.Error(err))
			continue
		}
		all = append(all, res...)
	}
	return s.finish(all, name)
}

func (s *Searcher) query(ctx context.Context, text string) ([]Result, error) {
	q := Query{Text: text, MaxResults: s.maxResults, IncludeDomains: DefaultDomains}
	res, err := s.provider.Search(ctx, q)
	if errors.Is(err, ErrRateLimited) {
		res, err = s.provider.Search(ctx, q)
	}
	return res, err
}

func (s *Searcher) finish(all []Result, name string) []Result {
	ranked := Rank(Dedup(all), name)
	if len(ranked) > s.maxResults {
		ranked = ranked[:s.maxResults]
	}
	return ranked
}
