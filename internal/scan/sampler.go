package scan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/lucasnoah/dsmeta/internal/config"
	"github.com/lucasnoah/dsmeta/internal/dataset"
)

const (
	maxSampledFiles   = 50
	maxSampleFileSize = 10 * 1024 * 1024
	specialFileChars  = 2000
	maxTextSamples    = 10
	maxDataSamples    = 5
	jsonSampleItems   = 10
	csvSampleLines    = 20
)

var binaryExtensions = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".svg": true, ".ico": true,
	".mp3": true, ".wav": true, ".mp4": true, ".avi": true, ".mov": true, ".mkv": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".bin": true, ".dat": true, ".db": true, ".sqlite": true,
}

var structuredExtensions = map[string]bool{".json": true, ".csv": true, ".tsv": true, ".xml": true}

var encodingAliases = map[string]string{
	"utf8":    "utf-8",
	"latin-1": "iso-8859-1",
	"latin1":  "iso-8859-1",
	"gb2312":  "gbk",
}

var piiPatterns = []struct {
	re   *regexp.Regexp
	mask string
}{
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL]"},
	{regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`), "[IP]"},
	{regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`), "[PHONE]"},
	{regexp.MustCompile(`\b[A-Za-z0-9]{32,}\b`), "[TOKEN]"},
}

// FileSummary lists a file considered by the sampler.
type FileSummary struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Format string `json:"format"`
}

// FileSample is sampled content from one file.
type FileSample struct {
	File   string `json:"file"`
	Type   string `json:"type,omitempty"`
	Sample string `json:"sample"`
}

// Sample is everything the sampler extracted from a dataset.
type Sample struct {
	FileSummaries []FileSummary `json:"file_summaries"`
	TextSamples   []FileSample  `json:"text_samples"`
	DataSamples   []FileSample  `json:"data_samples"`
	SpecialFiles  []FileSample  `json:"special_files"`
	Combined      string        `json:"combined"`
}

// Sampler reads a bounded, PII-masked excerpt of a dataset's files.
type Sampler struct {
	headLines  int
	tailLines  int
	randomSize int
	encodings  []encoding.Encoding
	names      []string
	rng        *rand.Rand
	log        *zap.Logger
}

// NewSampler builds a Sampler from the file_processing config section.
// Unknown encoding names are dropped with a warning.
func NewSampler(cfg config.FileProcessing, log *zap.Logger) *Sampler {
	s := &Sampler{
		headLines:  cfg.SampleHeadLines,
		tailLines:  cfg.SampleTailLines,
		randomSize: cfg.SampleRandomSize,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:        log,
	}
	for _, name := range cfg.EncodingFallback {
		label := strings.ToLower(strings.TrimSpace(name))
		if alias, ok := encodingAliases[label]; ok {
			label = alias
		}
		enc, err := htmlindex.Get(label)
		if err != nil {
			log.Warn("unknown encoding in fallback list", zap.String("encoding", name))
			continue
		}
		s.encodings = append(s.encodings, enc)
		s.names = append(s.names, label)
	}
	return s
}

// SetSeed makes random middle sampling reproducible.
func (s *Sampler) SetSeed(seed uint64) {
	s.rng = rand.New(rand.NewPCG(seed, seed))
}

// Sample reads up to 50 prioritised files under root. Per-file failures are
// logged and skipped; Sample never fails.
func (s *Sampler) Sample(root string, files []dataset.FileStat) Sample {
	out := Sample{
		FileSummaries: []FileSummary{},
		TextSamples:   []FileSample{},
		DataSamples:   []FileSample{},
		SpecialFiles:  []FileSample{},
	}

	ordered := Prioritize(files)
	if len(ordered) > maxSampledFiles {
		ordered = ordered[:maxSampledFiles]
	}

	for _, f := range ordered {
		out.FileSummaries = append(out.FileSummaries, FileSummary{Path: f.Path, Size: f.SizeBytes, Format: f.Format})

		if binaryExtensions[f.Format] || f.SizeBytes > maxSampleFileSize {
			continue
		}

		full := filepath.Join(root, filepath.FromSlash(f.Path))
		content, err := s.readFile(full)
		if err != nil {
			s.log.Warn("failed to sample file", zap.String("path", full), zap.Error(err))
			continue
		}

		if structuredExtensions[f.Format] {
			if sample := sampleStructured(content, f.Format); sample != "" {
				out.DataSamples = append(out.DataSamples, FileSample{File: f.Path, Type: f.Format, Sample: sample})
			}
		} else if sample := s.sampleText(content); sample != "" {
			out.TextSamples = append(out.TextSamples, FileSample{File: f.Path, Sample: sample})
		}

		if isSpecialFile(f.Path) {
			out.SpecialFiles = append(out.SpecialFiles, FileSample{File: f.Path, Sample: truncateRunes(content, specialFileChars)})
		}
	}

	out.Combined = combine(out)
	return out
}

// Prioritize orders files docs first, then config/meta, structured data,
// text, code, everything else. The sort is stable.
func Prioritize(files []dataset.FileStat) []dataset.FileStat {
	out := slices.Clone(files)
	sort.SliceStable(out, func(i, j int) bool {
		return priority(out[i]) < priority(out[j])
	})
	return out
}

func priority(f dataset.FileStat) int {
	name := strings.ToLower(path.Base(f.Path))
	ext := strings.ToLower(f.Format)

	switch {
	case containsAny(name, "readme", "license", "changelog", "contributing"):
		return 1
	case containsAny(name, "config", "meta", "info") || ext == ".yaml" || ext == ".yml" || ext == ".toml" || ext == ".ini":
		return 2
	case structuredExtensions[ext]:
		return 3
	case ext == ".txt" || ext == ".md" || ext == ".rst":
		return 4
	case ext == ".py" || ext == ".js" || ext == ".java" || ext == ".cpp" || ext == ".c" || ext == ".h" || ext == ".go":
		return 5
	default:
		return 6
	}
}

func isSpecialFile(p string) bool {
	return containsAny(strings.ToLower(path.Base(p)), "readme", "license", "config")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// readFile decodes a file with the configured encodings in order. A decoder
// that yields replacement characters counts as a miss. The result is PII-masked.
func (s *Sampler) readFile(p string) (string, error) {
	raw, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	text, _, ok := s.decode(raw)
	if !ok {
		return "", fmt.Errorf("no encoding in %v could decode file", s.names)
	}
	return MaskPII(text), nil
}

func (s *Sampler) decode(raw []byte) (string, string, bool) {
	for i, enc := range s.encodings {
		if s.names[i] == "utf-8" {
			if utf8.Valid(raw) {
				return string(raw), "utf-8", true
			}
			continue
		}
		decoded, err := enc.NewDecoder().Bytes(raw)
		if err != nil || bytes.ContainsRune(decoded, utf8.RuneError) {
			continue
		}
		return string(decoded), s.names[i], true
	}
	return "", "", false
}

// MaskPII replaces email addresses, IPv4 addresses, phone numbers and long
// token-like strings with placeholders.
func MaskPII(content string) string {
	for _, p := range piiPatterns {
		content = p.re.ReplaceAllString(content, p.mask)
	}
	return content
}

func (s *Sampler) sampleText(content string) string {
	lines := strings.Split(content, "\n")
	total := len(lines)
	if total <= s.headLines+s.tailLines {
		return content
	}

	sampled := slices.Clone(lines[:s.headLines])

	middleStart, middleEnd := s.headLines, total-s.tailLines
	if n := min(s.randomSize, middleEnd-middleStart); n > 0 {
		idx := s.rng.Perm(middleEnd - middleStart)[:n]
		sort.Ints(idx)
		sampled = append(sampled, "\n... [RANDOM MIDDLE SAMPLE] ...\n")
		for _, i := range idx {
			sampled = append(sampled, lines[middleStart+i])
		}
	}
	if s.tailLines > 0 {
		sampled = append(sampled, "\n... [TAIL SAMPLE] ...\n")
		sampled = append(sampled, lines[total-s.tailLines:]...)
	}
	return strings.Join(sampled, "\n")
}

func sampleStructured(content, format string) string {
	switch format {
	case ".json":
		var v any
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return truncateRunes(content, 1000)
		}
		return sampleJSON(v)
	case ".csv", ".tsv":
		return sampleCSV(content)
	default:
		return truncateRunes(content, 2000)
	}
}

func sampleJSON(v any) string {
	switch t := v.(type) {
	case []any:
		if len(t) > jsonSampleItems {
			v = map[string]any{"sample_size": jsonSampleItems, "total_items": len(t), "sample": t[:jsonSampleItems]}
		}
	case map[string]any:
		if len(t) > jsonSampleItems {
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			sample := make(map[string]any, jsonSampleItems)
			for _, k := range keys[:jsonSampleItems] {
				sample[k] = t[k]
			}
			v = map[string]any{"sample_size": jsonSampleItems, "total_keys": len(t), "sample": sample}
		}
	}
	data, err := dataset.MarshalJSON(v)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), "\n")
}

func sampleCSV(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= csvSampleLines {
		return content
	}
	out := append([]string{lines[0]}, lines[1:csvSampleLines]...)
	out = append(out, fmt.Sprintf("... (%d more lines)", len(lines)-csvSampleLines))
	return strings.Join(out, "\n")
}

func combine(s Sample) string {
	var parts []string
	for _, f := range s.SpecialFiles {
		parts = append(parts, fmt.Sprintf("=== %s ===\n%s\n", f.File, f.Sample))
	}
	for _, f := range s.TextSamples[:min(len(s.TextSamples), maxTextSamples)] {
		parts = append(parts, fmt.Sprintf("=== %s ===\n%s\n", f.File, f.Sample))
	}
	for _, f := range s.DataSamples[:min(len(s.DataSamples), maxDataSamples)] {
		parts = append(parts, fmt.Sprintf("=== %s (%s) ===\n%s\n", f.File, f.Type, f.Sample))
	}
	return strings.Join(parts, "\n")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
