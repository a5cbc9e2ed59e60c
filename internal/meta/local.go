package meta

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/scan"
	"github.com/lucasnoah/dsmeta/internal/search"
)

// Local is what the scanner and folder name know about a dataset without any
// external service.
type Local struct {
	Path         string
	Name         string
	Creator      string
	CreationDate string
	Files        []dataset.FileStat
	TotalSize    int64
	CacheKey     string
}

// LocalFrom collects the local facts carried on a run state.
func LocalFrom(s *dataset.State) Local {
	return Local{
		Path:         s.DatasetPath,
		Name:         s.DatasetName,
		Creator:      s.Creator,
		CreationDate: s.CreationDate,
		Files:        s.Files,
		TotalSize:    s.TotalSize,
		CacheKey:     s.CacheKey,
	}
}

var (
	hanPattern   = regexp.MustCompile(`\p{Han}`)
	latinPattern = regexp.MustCompile(`[a-zA-Z]`)
	githubRepo   = regexp.MustCompile(`github\.com/([^/]+/[^/]+)`)
)

// Merge builds a metadata map without the synthesis service. Document fields
// win over search results, which win over the preliminary analysis. The
// source URL comes from the documents or else the top search result.
func Merge(name string, preliminary, doc map[string]any, results []search.Result) map[string]any {
	out := maps.Clone(preliminary)
	if out == nil {
		out = map[string]any{}
	}
	if str(out, "name") == "" && name != "" {
		out["name"] = name
	}
	if len(results) > 0 {
		top := results[0]
		if str(out, "source_url") == "" && top.URL != "" {
			out["source_url"] = top.URL
		}
	}
	for k, v := range doc {
		if !empty(v) {
			out[k] = v
		}
	}
	if u := str(out, "source_url"); u != "" && str(out, "source") == "" {
		out["source"] = scan.SourceFromURL(u)
	}
	return out
}

// Expand is the offline stand-in for synthesis: it merges documents and the
// preliminary analysis, then widens business directions and points the way
// the service typically does for code-analysis security datasets.
func Expand(name string, preliminary, doc map[string]any, results []search.Result) map[string]any {
	var best *search.Result
	if len(results) > 0 {
		best = &results[0]
	}

	pick := func(field, fallback string) string {
		if v := str(doc, field); v != "" {
			return v
		}
		if v := str(preliminary, field); v != "" {
			return v
		}
		return fallback
	}

	out := map[string]any{
		"name":             name,
		"description":      pick("description", name+" 是一个数据集，包含多种格式的数据文件。"),
		"modality":         pick("modality", "代码"),
		"use_case":         pick("use_case", "模型评测"),
		"domain":           pick("domain", "网络攻防"),
		"rating":           firstNonEmpty(str(doc, "rating"), "基础"),
		"confidence_score": 0.85,
		"task_types":       []string{"benchmark", "evaluation", "安全测试"},
		"pii_risk":         "low",
		"quality_notes":    "基于内部文档信息和智能扩展的分析结果",
	}

	sourceURL := str(doc, "source_url")
	if sourceURL == "" && best != nil {
		sourceURL = best.URL
	}
	if sourceURL != "" {
		out["source_url"] = sourceURL
		if src := scan.SourceFromURL(sourceURL); src != "其他" {
			out["source"] = src
		}
	}

	directions := Strings(doc["business_direction"])
	if slices.Contains(directions, "代码分析") && strings.Contains(out["domain"].(string), "网络攻防") {
		directions = appendMissing(directions, "漏洞挖掘", "策略规划")
	}
	if len(directions) == 0 {
		directions = []string{"代码分析"}
	}
	out["business_direction"] = directions

	points := Strings(doc["business_point"])
	if slices.Contains(points, "代码辅助生成") {
		points = appendMissing(points, "静态分析", "脆弱性分析")
	}
	if len(points) == 0 {
		points = []string{"静态分析"}
	}
	out["business_point"] = points

	if out["source"] == "GitHub" {
		out["license"] = "MIT"
	}
	if best != nil {
		out["citation"] = Citation(name, *best)
	}
	return out
}

// Citation formats a citation for a search hit: BibTeX for GitHub
// repositories, a plain reference otherwise.
func Citation(name string, r search.Result) string {
	title := firstNonEmpty(r.Title, name)
	if githubRepo.MatchString(r.URL) {
		return fmt.Sprintf("@misc{%s,\n  author = {Community},\n  title = {%s},\n  url = {%s},\n  year = {2024}\n}",
			strings.ToLower(name), title, r.URL)
	}
	return fmt.Sprintf("%s. Available at: %s", title, r.URL)
}

// SupplementLocal fills the fields only local data can answer. Counters,
// creator, creation date and checksum always come from the scan.
func SupplementLocal(m map[string]any, l Local) map[string]any {
	if str(m, "size") == "" {
		m["size"] = dataset.HumanSize(l.TotalSize)
	}
	m["num_files"] = len(l.Files)
	setOrDelete(m, "creator", l.Creator)
	setOrDelete(m, "creation_date", l.CreationDate)
	setOrDelete(m, "checksum", l.CacheKey)
	if _, ok := m["version"]; !ok {
		m["version"] = "v1.0"
	}
	if _, ok := m["access_level"]; !ok {
		m["access_level"] = "public"
	}
	if _, ok := m["num_records"]; !ok {
		if n := EstimateRecords(l.Files); n > 0 {
			m["num_records"] = n
		}
	}
	if _, ok := m["languages"]; !ok {
		m["languages"] = DetectLanguages(l.Files)
	}
	return m
}

// EstimateRecords guesses a record count: ~500 bytes per JSON record, one
// per CSV row after the header, one per ten text lines. Zero means unknown.
func EstimateRecords(files []dataset.FileStat) int {
	var n int
	for _, f := range files {
		switch {
		case strings.HasSuffix(f.Path, ".json"), strings.HasSuffix(f.Path, ".jsonl"):
			n += max(1, int(f.SizeBytes/500))
		case strings.HasSuffix(f.Path, ".csv"):
			if f.Lines > 0 {
				n += f.Lines - 1
			}
		case strings.HasSuffix(f.Path, ".txt"):
			n += max(1, f.Lines/10)
		}
	}
	return n
}

// DetectLanguages infers languages from file paths: "zh" for Han characters,
// "en" for Latin letters, "en" when nothing matches.
func DetectLanguages(files []dataset.FileStat) []string {
	var zh, en bool
	for _, f := range files {
		zh = zh || hanPattern.MatchString(f.Path)
		en = en || latinPattern.MatchString(f.Path)
	}
	var out []string
	if zh {
		out = append(out, "zh")
	}
	if en || !zh {
		out = append(out, "en")
	}
	return out
}

// Strings reads a string or list value as a list of non-empty strings.
func Strings(v any) []string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{strings.TrimSpace(t)}
	case []string:
		return slices.Clone(t)
	case []any:
		var out []string
		for _, item := range t {
			if s := strings.TrimSpace(fmt.Sprint(item)); item != nil && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func appendMissing(list []string, items ...string) []string {
	for _, it := range items {
		if !slices.Contains(list, it) {
			list = append(list, it)
		}
	}
	return list
}

func setOrDelete(m map[string]any, key, v string) {
	if v == "" {
		delete(m, key)
		return
	}
	m[key] = v
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
