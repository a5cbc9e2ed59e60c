// Package export collects the meta.json and meta.yaml records under a
// directory tree into one CSV file.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/dsmeta/internal/meta"
)

// Headers are the CSV columns in order.
var Headers = []string{
	"id", "name", "description", "source", "source_url",
	"size", "num_files", "num_records", "languages",
	"modality", "use_case", "task_types", "file_formats_summary",
	"domain", "business_direction", "business_point", "rating",
	"creator", "creation_date", "version", "license",
	"access_level", "citation",
	"pii_risk", "quality_notes", "checksum",
	"metadata_file_path", "last_updated", "processing_status",
}

// Result reports what an export did.
type Result struct {
	OutputFile   string   `json:"output_file"`
	TotalFiles   int      `json:"total_files"`
	ExportedRows int      `json:"exported_rows"`
	FailedFiles  []string `json:"failed_files,omitempty"`
	Summary      *Summary `json:"summary,omitempty"`
}

// Summary counts datasets by classification.
type Summary struct {
	TotalDatasets int            `json:"total_datasets"`
	Modality      map[string]int `json:"modality_distribution"`
	Domain        map[string]int `json:"domain_distribution"`
	UseCase       map[string]int `json:"use_case_distribution"`
	Rating        map[string]int `json:"rating_distribution"`
	Creators      map[string]int `json:"creators"`
	FileCount     FileCountStats `json:"file_count_stats"`
}

// FileCountStats describes num_files across datasets.
type FileCountStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Max    int     `json:"max"`
	Min    int     `json:"min"`
}

// Exporter walks a tree for metadata records.
type Exporter struct {
	log *zap.Logger
}

// New returns an Exporter.
func New(log *zap.Logger) *Exporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Exporter{log: log}
}

// Find returns one metadata file per dataset directory under root, meta.json
// preferred over meta.yaml, sorted by path.
func (e *Exporter) Find(root string) ([]string, error) {
	byDir := map[string]string{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			e.log.Warn("skipping unreadable path", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() && p != root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		dir := filepath.Dir(p)
		switch d.Name() {
		case "meta.json":
			byDir[dir] = p
		case "meta.yaml":
			if _, ok := byDir[dir]; !ok {
				byDir[dir] = p
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	files := make([]string, 0, len(byDir))
	for _, p := range byDir {
		files = append(files, p)
	}
	sort.Strings(files)
	e.log.Info("found metadata files", zap.String("root", root), zap.Int("files", len(files)))
	return files, nil
}

// Load reads one metadata file and adds the export bookkeeping columns.
func Load(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		return nil, fmt.Errorf("unsupported metadata format: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if m == nil {
		return nil, fmt.Errorf("empty metadata file: %s", path)
	}
	m["metadata_file_path"] = path
	m["last_updated"] = info.ModTime().Format(time.RFC3339)
	m["processing_status"] = "completed"
	return m, nil
}

// Row converts a metadata map to CSV cells in Headers order.
func Row(m map[string]any) []string {
	row := make([]string, len(Headers))
	for i, h := range Headers {
		if h == "file_formats_summary" {
			row[i] = formatsSummary(m["file_formats"])
			continue
		}
		row[i] = cell(m[h])
	}
	return row
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if obj, ok := item.(map[string]any); ok {
				parts = append(parts, fmt.Sprintf("%v(%v)", or(obj["format"], "unknown"), or(obj["count"], 0)))
				continue
			}
			parts = append(parts, cell(item))
		}
		return strings.Join(parts, "; ")
	}
	return fmt.Sprint(v)
}

func formatsSummary(v any) string {
	list, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			parts = append(parts, cell(item))
			continue
		}
		parts = append(parts, fmt.Sprintf("%v(%sfiles,%v)", or(obj["format"], "unknown"), cell(or(obj["count"], 0)), or(obj["size"], "0B")))
	}
	return strings.Join(parts, "; ")
}

func or(v, fallback any) any {
	if v == nil {
		return fallback
	}
	return v
}

// Export writes every metadata record under root to output as CSV. When
// summary is set the result also carries the distribution summary.
func (e *Exporter) Export(root, output string, summary bool) (Result, error) {
	files, err := e.Find(root)
	if err != nil {
		return Result{}, err
	}
	if len(files) == 0 {
		return Result{}, fmt.Errorf("no metadata files found under %s", root)
	}

	res := Result{TotalFiles: len(files)}
	var records []map[string]any
	for _, f := range files {
		m, err := Load(f)
		if err != nil {
			e.log.Error("failed to load metadata file", zap.String("path", f), zap.Error(err))
			res.FailedFiles = append(res.FailedFiles, f)
			continue
		}
		records = append(records, m)
	}

	out, err := os.Create(output)
	if err != nil {
		return res, fmt.Errorf("create %s: %w", output, err)
	}
	defer out.Close()
	if err := Write(out, records); err != nil {
		return res, fmt.Errorf("write %s: %w", output, err)
	}
	if err := out.Close(); err != nil {
		return res, fmt.Errorf("close %s: %w", output, err)
	}

	abs, err := filepath.Abs(output)
	if err != nil {
		abs = output
	}
	res.OutputFile = abs
	res.ExportedRows = len(records)
	if summary {
		s := Summarize(records)
		res.Summary = &s
	}
	e.log.Info("csv export done", zap.String("output", abs), zap.Int("rows", res.ExportedRows), zap.Int("failed", len(res.FailedFiles)))
	return res, nil
}

// Write emits the header and one row per record.
func Write(w io.Writer, records []map[string]any) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return err
	}
	for _, m := range records {
		if err := cw.Write(Row(m)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

const topCreators = 10

// Summarize builds the distribution summary over loaded records.
func Summarize(records []map[string]any) Summary {
	s := Summary{
		TotalDatasets: len(records),
		Modality:      map[string]int{},
		Domain:        map[string]int{},
		UseCase:       map[string]int{},
		Rating:        map[string]int{},
		Creators:      map[string]int{},
	}
	var counts []int
	for _, m := range records {
		count(s.Modality, m["modality"])
		count(s.Domain, m["domain"])
		count(s.UseCase, m["use_case"])
		count(s.Rating, m["rating"])
		count(s.Creators, m["creator"])
		if n, ok := meta.Float(m["num_files"]); ok {
			counts = append(counts, int(n))
		}
	}
	s.Creators = top(s.Creators, topCreators)
	s.FileCount = fileCountStats(counts)
	return s
}

func count(dist map[string]int, v any) {
	if s, ok := v.(string); ok && s != "" {
		dist[s]++
	}
}

func top(dist map[string]int, n int) map[string]int {
	if len(dist) <= n {
		return dist
	}
	keys := make([]string, 0, len(dist))
	for k := range dist {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if dist[keys[i]] != dist[keys[j]] {
			return dist[keys[i]] > dist[keys[j]]
		}
		return keys[i] < keys[j]
	})
	out := make(map[string]int, n)
	for _, k := range keys[:n] {
		out[k] = dist[k]
	}
	return out
}

func fileCountStats(counts []int) FileCountStats {
	if len(counts) == 0 {
		return FileCountStats{}
	}
	sort.Ints(counts)
	sum := 0
	for _, c := range counts {
		sum += c
	}
	mid := len(counts) / 2
	median := float64(counts[mid])
	if len(counts)%2 == 0 {
		median = float64(counts[mid-1]+counts[mid]) / 2
	}
	return FileCountStats{
		Mean:   float64(sum) / float64(len(counts)),
		Median: median,
		Max:    counts[len(counts)-1],
		Min:    counts[0],
	}
}
