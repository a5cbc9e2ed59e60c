package search

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

var domainBonus = []struct {
	domain string
	bonus  float64
}{
	{"github.com", 8},
	{"huggingface.co", 7},
	{"arxiv.org", 6},
	{"paperswithcode.com", 5},
	{"kaggle.com", 4},
}

var relevanceKeywords = []string{
	"dataset", "data", "repository", "repo", "license", "citation",
	"paper", "benchmark", "collection", "corpus",
}

var stopWords = map[string]bool{
	"是": true, "一个": true, "的": true, "和": true, "或": true, "在": true, "用于": true, "包含": true,
	"提供": true, "支持": true, "可以": true, "能够": true, "数据集": true, "数据": true, "文件": true,
	"内容": true, "信息": true, "this": true, "is": true, "a": true, "an": true, "the": true, "and": true,
	"or": true, "in": true, "for": true, "with": true, "to": true, "of": true, "that": true,
	"dataset": true, "data": true, "file": true, "files": true,
}

var wordPattern = regexp.MustCompile(`\p{Han}+|[a-zA-Z]{3,}`)

// Score rates how useful a result is for the named dataset:
// +10 name in title, +5 in URL, +2 in snippet, a bonus for the first
// matching trusted domain, and +1 per relevance keyword in title or snippet.
func Score(r Result, name string) float64 {
	title := strings.ToLower(r.Title)
	url := strings.ToLower(r.URL)
	snippet := strings.ToLower(r.Snippet)
	n := strings.ToLower(name)

	var score float64
	if strings.Contains(title, n) {
		score += 10
	}
	if strings.Contains(url, n) {
		score += 5
	}
	if strings.Contains(snippet, n) {
		score += 2
	}
	for _, d := range domainBonus {
		if strings.Contains(url, d.domain) {
			score += d.bonus
			break
		}
	}
	text := title + " " + snippet
	for _, kw := range relevanceKeywords {
		if strings.Contains(text, kw) {
			score++
		}
	}
	return score
}

// Dedup drops results whose URL was already seen. Results without a URL are dropped.
func Dedup(results []Result) []Result {
	seen := map[string]bool{}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		out = append(out, r)
	}
	return out
}

// Rank scores results, drops those scoring zero, and sorts by score
// descending. Ties keep discovery order.
func Rank(results []Result, name string) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		r.Score = Score(r, name)
		if r.Score > 0 {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Keywords pulls up to five content words out of a description.
func Keywords(description string) []string {
	var out []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(description), -1) {
		if stopWords[w] || utf8.RuneCountInString(w) <= 2 {
			continue
		}
		out = append(out, w)
		if len(out) == 5 {
			break
		}
	}
	return out
}

// BuildQueries returns at most three queries for a dataset: the quoted name,
// the name with description keywords, and a GitHub-restricted query.
func BuildQueries(name, description string) []string {
	if name == "" {
		return nil
	}
	queries := []string{fmt.Sprintf("%q dataset", name)}
	if utf8.RuneCountInString(description) > 10 {
		if kw := Keywords(description); len(kw) > 0 {
			queries = append(queries, fmt.Sprintf("%q %s", name, strings.Join(kw[:min(3, len(kw))], " ")))
		}
	}
	queries = append(queries,
		fmt.Sprintf("%q site:github.com", name),
		fmt.Sprintf("%q dataset paper arxiv", name),
	)
	return queries[:3]
}
