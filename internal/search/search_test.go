package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestScoreNameInTitleIsMonotonic(t *testing.T) {
	base := Result{Title: "A security corpus", URL: "https://example.com/x", Snippet: "some text"}
	with := base
	with.Title = "CyberBench: A security corpus"

	if Score(with, "CyberBench") <= Score(base, "CyberBench") {
		t.Errorf("adding the name to the title must raise the score: %v vs %v",
			Score(with, "CyberBench"), Score(base, "CyberBench"))
	}
	if Score(with, "CyberBench")-Score(base, "CyberBench") != 10 {
		t.Errorf("title match should add exactly 10")
	}
}

func TestScoreComponents(t *testing.T) {
	r := Result{
		Title:   "cyberbench dataset",
		URL:     "https://github.com/org/cyberbench",
		Snippet: "CyberBench benchmark with license",
	}
	// 10 title + 5 url + 2 snippet + 8 github + keywords: dataset, data, benchmark, license
	if got := Score(r, "CyberBench"); got != 29 {
		t.Errorf("Score = %v, want 29", got)
	}

	// only the first matching domain counts
	r2 := Result{URL: "https://huggingface.co/github.com-mirror"}
	if got := Score(r2, "zzz"); got != 8 {
		t.Errorf("Score = %v, want 8 (github listed first)", got)
	}
}

func TestDedupFirstWins(t *testing.T) {
	in := []Result{
		{URL: "a", Title: "first"},
		{URL: "b"},
		{URL: "a", Title: "second"},
		{URL: ""},
	}
	got := Dedup(in)
	if len(got) != 2 || got[0].Title != "first" {
		t.Errorf("Dedup = %+v", got)
	}
}

func TestRankStableAndFiltered(t *testing.T) {
	in := []Result{
		{URL: "https://x.org/1", Title: "nothing"},
		{URL: "https://x.org/2", Title: "one data"},
		{URL: "https://github.com/3", Title: "repo"},
		{URL: "https://x.org/4", Title: "two data"},
	}
	got := Rank(in, "zzz")
	if len(got) != 3 {
		t.Fatalf("Rank kept %d, want 3 (zero scores dropped): %+v", len(got), got)
	}
	if got[0].URL != "https://github.com/3" {
		t.Errorf("top = %s, want github result", got[0].URL)
	}
	if got[1].URL != "https://x.org/2" || got[2].URL != "https://x.org/4" {
		t.Errorf("ties should keep discovery order: %+v", got)
	}
}

func TestBuildQueries(t *testing.T) {
	if BuildQueries("", "x") != nil {
		t.Error("no name should give no queries")
	}

	q := BuildQueries("CyberBench", "A benchmark for evaluating security reasoning in models")
	if len(q) != 3 {
		t.Fatalf("got %d queries, want 3", len(q))
	}
	if q[0] != `"CyberBench" dataset` {
		t.Errorf("q[0] = %q", q[0])
	}
	if q[1] != `"CyberBench" benchmark evaluating security` {
		t.Errorf("q[1] = %q", q[1])
	}
	if q[2] != `"CyberBench" site:github.com` {
		t.Errorf("q[2] = %q", q[2])
	}

	short := BuildQueries("X", "tiny")
	if short[1] != `"X" site:github.com` {
		t.Errorf("short description should skip keyword query: %v", short)
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("This dataset is for the 网络安全评测 of models and data")
	want := []string{"网络安全评测", "models"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Keywords = %v, want %v", got, want)
	}
}

type fakeProvider struct {
	calls   int32
	results map[string][]Result
	errs    map[string][]error
}

func (f *fakeProvider) Search(ctx context.Context, q Query) ([]Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if errs := f.errs[q.Text]; len(errs) > 0 {
		err := errs[0]
		f.errs[q.Text] = errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.results[q.Text], nil
}

func TestSearcherRun(t *testing.T) {
	p := &fakeProvider{
		results: map[string][]Result{
			`"Demo" dataset`:             {{Title: "Demo dataset", URL: "https://github.com/a/demo"}},
			`"Demo" site:github.com`:     {{Title: "Demo dataset", URL: "https://github.com/a/demo"}, {Title: "unrelated", URL: "https://x.org"}},
			`"Demo" dataset paper arxiv`: {{Title: "no url"}},
		},
		errs: map[string][]error{
			`"Demo" site:github.com`: {ErrRateLimited, nil},
		},
	}
	s := NewSearcher(p, 10, zap.NewNop())
	s.SetPause(0)

	got := s.Run(context.Background(), "Demo", "")
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1 after dedup and filtering: %+v", len(got), got)
	}
	if got[0].Score <= 0 {
		t.Errorf("Score = %v, want > 0", got[0].Score)
	}
	// three queries, the github one retried once after the rate limit
	if p.calls != 4 {
		t.Errorf("provider calls = %d, want 4", p.calls)
	}
}

func TestSearcherSkipsFailedQueries(t *testing.T) {
	p := &fakeProvider{
		errs: map[string][]error{
			`"Demo" dataset`: {errors.New("network down")},
		},
		results: map[string][]Result{
			`"Demo" site:github.com`: {{Title: "Demo", URL: "https://github.com/a/demo"}},
		},
	}
	s := NewSearcher(p, 10, zap.NewNop())
	s.SetPause(0)
	if got := s.Run(context.Background(), "Demo", ""); len(got) != 1 {
		t.Errorf("got %d results, want 1", len(got))
	}
}

func TestTavilySearch(t *testing.T) {
	var req tavilyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte(`{"results":[{"title":"T","url":"https://github.com/x","content":"snippet"}]}`))
	}))
	defer srv.Close()

	c := NewTavily("tvly-key", srv.URL, time.Second, zap.NewNop())
	got, err := c.Search(context.Background(), Query{Text: "q", MaxResults: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0].Snippet != "snippet" {
		t.Errorf("results = %+v", got)
	}
	if req.MaxResults != 5 {
		t.Errorf("max_results = %d, want capped at 5", req.MaxResults)
	}
	if req.APIKey != "tvly-key" || req.SearchDepth != "basic" || len(req.IncludeDomains) != 4 {
		t.Errorf("request = %+v", req)
	}
}

func TestTavilyRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewTavily("k", srv.URL, time.Second, zap.NewNop())
	c.SetRateLimitPause(time.Millisecond)
	if _, err := c.Search(context.Background(), Query{Text: "q"}); !errors.Is(err, ErrRateLimited) {
		t.Errorf("err = %v, want ErrRateLimited", err)
	}
}
