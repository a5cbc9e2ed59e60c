package scan

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// sectionFields maps a "## heading" (lowercased) to the metadata field it fills.
var sectionFields = map[string]string{
	"数据集名称": "name", "名称": "name", "name": "name",
	"创建者": "creator", "creator": "creator",
	"创建日期": "creation_date", "creation date": "creation_date",
	"数据集描述": "description", "描述": "description", "description": "description", "dataset description": "description",
	"数据集来源": "source_url", "来源": "source_url", "source": "source_url", "source url": "source_url",
	"数据集用途": "use_case", "用途": "use_case", "use case": "use_case", "usage": "use_case",
	"数据模态": "modality", "modality": "modality",
	"大小": "size", "size": "size",
	"赋能专业方向": "domain", "专业方向": "domain", "domain": "domain",
	"赋能业务方向": "business_direction", "业务方向": "business_direction", "business direction": "business_direction",
	"赋能业务点": "business_point", "业务点": "business_point", "business point": "business_point",
	"专业评级": "rating", "rating": "rating",
	"格式": "format", "format": "format",
	"备注": "remarks", "remarks": "remarks", "notes": "remarks",
	"序号":  "sequence",
	"许可证": "license", "license": "license",
	"引用": "citation", "citation": "citation",
}

var valueMappings = map[string]map[string]string{
	"modality": {
		"自然语言文本": "自然语言文本",
		"代码":     "代码",
		"结构化":    "结构化/表格",
		"表格":     "结构化/表格",
		"图像":     "图像",
		"多模态":    "多模态",
	},
	"use_case": {
		"微调问答": "模型微调",
		"强化学习": "强化学习",
		"模型评测": "模型评测",
		"数据分析": "数据分析",
	},
	"domain": {
		"基础通用":  "基础通用",
		"攻防":    "网络攻防",
		"网络攻防":  "网络攻防",
		"安全认知":  "安全认知",
		"体系化防御": "体系化防御",
	},
	"rating": {
		"基础":   "基础",
		"进阶":   "进阶",
		"高级":   "高级",
		"专用私有": "专用私有",
	},
}

var (
	listMarker   = regexp.MustCompile(`^\s*[-*+]\s*`)
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	whitespace   = regexp.MustCompile(`\s+`)
	listSplit    = regexp.MustCompile(`\s*[、,，|;；]\s*`)
)

// Extractor recovers authoritative metadata fields from documentation
// files shipped inside a dataset directory.
type Extractor struct {
	log *zap.Logger
}

// NewExtractor returns a document field extractor.
func NewExtractor(log *zap.Logger) *Extractor {
	return &Extractor{log: log}
}

// Candidates returns the documentation file names checked for a dataset
// directory, in order. For "a-b-Rest(Extra)" folders the pure name "Rest(Extra)"
// and its prefix before "(" are tried as well.
func Candidates(dir string) []string {
	name := filepath.Base(dir)
	names := []string{"README.md", "readme.md", "README.MD", name + ".md"}

	if parts := strings.Split(name, "-"); len(parts) >= 3 {
		pure := strings.Join(parts[2:], "-")
		names = append(names, pure+".md", pure+".MD")
		if base, _, ok := strings.Cut(pure, "("); ok && base != "" {
			names = append(names, base+".md", base+".MD")
		}
	}

	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

// Extract parses every candidate document found in dir. Later documents
// override earlier ones field by field. A directory without documents yields
// an empty map.
func (e *Extractor) Extract(dir string) map[string]any {
	info := map[string]any{}
	found := 0
	for _, name := range Candidates(dir) {
		p := filepath.Join(dir, name)
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		found++
		fields := ParseDocument(string(data))
		for k, v := range fields {
			info[k] = v
		}
		e.log.Debug("parsed dataset document", zap.String("path", p), zap.Int("fields", len(fields)))
	}
	if found == 0 {
		e.log.Debug("no dataset documents found", zap.String("dataset_path", dir))
		return info
	}
	return postprocess(info)
}

// ParseDocument extracts known "## heading" sections from markdown. A
// section's value is its first paragraph, cleaned of list markers, links and
// extra whitespace, then mapped onto vocabulary members where known.
func ParseDocument(content string) map[string]string {
	out := map[string]string{}
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var field string
	var para []string
	started := false

	flush := func() {
		if field != "" && len(para) > 0 {
			if _, dup := out[field]; !dup {
				if v := cleanValue(strings.Join(para, "\n")); v != "" {
					if m, ok := valueMappings[field][v]; ok {
						v = m
					}
					out[field] = v
				}
			}
		}
		field, para, started = "", nil, false
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, "##") {
			flush()
			if strings.HasPrefix(line, "## ") {
				heading := strings.ToLower(strings.TrimSpace(line[3:]))
				field = sectionFields[heading]
			}
			continue
		}
		if field == "" {
			continue
		}
		if strings.TrimSpace(line) == "" {
			if started {
				// the first paragraph ends at a blank line
				flush()
			}
			continue
		}
		started = true
		para = append(para, line)
	}
	flush()
	return out
}

func cleanValue(v string) string {
	lines := strings.Split(v, "\n")
	for i, l := range lines {
		lines[i] = listMarker.ReplaceAllString(l, "")
	}
	v = strings.Join(lines, " ")
	v = markdownLink.ReplaceAllString(v, "$1")
	v = whitespace.ReplaceAllString(v, " ")
	return strings.TrimSpace(v)
}

func postprocess(info map[string]any) map[string]any {
	for _, f := range []string{"business_direction", "business_point"} {
		if s, ok := info[f].(string); ok {
			var items []string
			for _, part := range listSplit.Split(s, -1) {
				if part = strings.TrimSpace(part); part != "" {
					items = append(items, part)
				}
			}
			info[f] = items
		}
	}

	if u, ok := info["source_url"].(string); ok && u != "" {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") &&
			(strings.HasPrefix(u, "github.com") || strings.HasPrefix(u, "huggingface.co")) {
			u = "https://" + u
			info["source_url"] = u
		}
		if _, ok := info["source"]; !ok {
			info["source"] = SourceFromURL(u)
		}
	}
	return info
}

// SourceFromURL names the hosting platform of a URL.
func SourceFromURL(u string) string {
	switch {
	case strings.Contains(u, "github.com"):
		return "GitHub"
	case strings.Contains(u, "huggingface.co"):
		return "HuggingFace"
	case strings.Contains(u, "kaggle.com"):
		return "Kaggle"
	case strings.Contains(u, "arxiv.org"):
		return "arXiv"
	default:
		return "其他"
	}
}
