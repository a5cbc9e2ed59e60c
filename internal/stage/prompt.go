package stage

import (
	"bytes"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/meta"
	"github.com/lucasnoah/dsmeta/internal/search"
)

// SystemPrompt is sent with every analysis and synthesis request.
const SystemPrompt = "You are a professional dataset analysis expert. Always respond in valid JSON format as requested."

const (
	promptSampleChars  = 4000
	promptResults      = 5
	promptSnippetChars = 200
	promptFormats      = 10
)

//go:embed prompts/analyze.tmpl
var analyzeTmpl string

//go:embed prompts/synthesize.tmpl
var synthesizeTmpl string

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"inc":     func(i int) int { return i + 1 },
	"snippet": func(s string) string { return truncate(s, promptSnippetChars) },
}).Option("missingkey=error").Parse(`{{define "analyze"}}` + analyzeTmpl + `{{end}}{{define "synthesize"}}` + synthesizeTmpl + `{{end}}`))

// Vocabulary lists the allowed enum values as shown to the model.
type Vocabulary struct {
	Modalities         string
	UseCases           string
	Domains            string
	BusinessDirections string
	Ratings            string
}

var vocabulary = Vocabulary{
	Modalities:         strings.Join(meta.Modalities, "|"),
	UseCases:           strings.Join(meta.UseCases, "|"),
	Domains:            strings.Join(meta.Domains, "|"),
	BusinessDirections: strings.Join(meta.BusinessDirections, "|"),
	Ratings:            strings.Join(meta.Ratings, "|"),
}

// AnalysisPrompt builds the preliminary analysis request for a scanned and sampled dataset.
func AnalysisPrompt(st *dataset.State) (string, error) {
	data := struct {
		Vocabulary
		Name, Creator, CreationDate string
		FileCount                   int
		Size, FormatStats, Samples  string
	}{
		Vocabulary:   vocabulary,
		Name:         st.DatasetName,
		Creator:      st.Creator,
		CreationDate: st.CreationDate,
		FileCount:    len(st.Files),
		Size:         dataset.HumanSize(st.TotalSize),
		FormatStats:  FormatStats(st.Files),
		Samples:      truncate(st.FileSamples, promptSampleChars),
	}
	return execute("analyze", data)
}

// SynthesisPrompt builds the request that merges preliminary analysis,
// document fields and search results into a full record.
func SynthesisPrompt(st *dataset.State) (string, error) {
	prelim, err := dataset.MarshalJSON(st.Preliminary)
	if err != nil {
		return "", fmt.Errorf("encode preliminary analysis: %w", err)
	}
	results := st.WebSearch
	if len(results) > promptResults {
		results = results[:promptResults]
	}
	data := struct {
		Vocabulary
		Name                 string
		FileCount            int
		Size                 string
		Preliminary, DocInfo string
		Results              []search.Result
	}{
		Vocabulary:  vocabulary,
		Name:        st.DatasetName,
		FileCount:   len(st.Files),
		Size:        dataset.HumanSize(st.TotalSize),
		Preliminary: strings.TrimRight(string(prelim), "\n"),
		DocInfo:     FormatDocInfo(st.DocInfo),
		Results:     results,
	}
	return execute("synthesize", data)
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := prompts.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

// FormatStats summarises the ten most common file formats.
func FormatStats(files []dataset.FileStat) string {
	if len(files) == 0 {
		return "无文件"
	}
	var order []string
	counts := map[string]int{}
	sizes := map[string]int64{}
	for _, f := range files {
		if _, ok := counts[f.Format]; !ok {
			order = append(order, f.Format)
		}
		counts[f.Format]++
		sizes[f.Format] += f.SizeBytes
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > promptFormats {
		order = order[:promptFormats]
	}
	lines := make([]string, 0, len(order))
	for _, f := range order {
		lines = append(lines, fmt.Sprintf("  %s: %d个文件, %s", f, counts[f], dataset.HumanSize(sizes[f])))
	}
	return strings.Join(lines, "\n")
}

var docLabels = []struct{ field, label string }{
	{"description", "数据集描述"},
	{"source_url", "官方来源链接"},
	{"use_case", "用途"},
	{"modality", "数据模态"},
	{"domain", "专业领域"},
	{"business_direction", "业务方向"},
	{"business_point", "业务场景"},
	{"rating", "专业评级"},
	{"size", "数据集大小"},
	{"format", "文件格式"},
	{"remarks", "备注说明"},
}

// FormatDocInfo renders document fields for the synthesis prompt, labelled
// fields first and the rest sorted by name.
func FormatDocInfo(doc map[string]any) string {
	if len(doc) == 0 {
		return "（未找到内部文档信息）"
	}
	var b strings.Builder
	b.WriteString("从数据集内部文档（README.md、数据集名.md等）中提取的真实信息：\n")

	seen := map[string]bool{}
	for _, l := range docLabels {
		seen[l.field] = true
		if v := docValue(doc[l.field]); v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", l.label, v)
		}
	}
	var rest []string
	for k := range doc {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		if v := docValue(doc[k]); v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
	}
	b.WriteString("\n注意: 这些是从官方文档中提取的真实信息，应该作为元数据生成的权威参考。")
	return b.String()
}

func docValue(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case []string, []any:
		return strings.Join(meta.Strings(v), "; ")
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
