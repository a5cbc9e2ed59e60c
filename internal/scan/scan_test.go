package scan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/config"
	"github.com/lucasnoah/dsmeta/internal/dataset"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		folder string
		want   NameInfo
	}{
		{"alice-20240101-SampleSet", NameInfo{Name: "SampleSet", Creator: "alice", Date: "2024-01-01"}},
		{"qiaoyu-20250414-Cyber-Bench", NameInfo{Name: "Cyber-Bench", Creator: "qiaoyu", Date: "2025-04-14"}},
		{"plain_folder", NameInfo{Name: "plain_folder"}},
		{"bob-2024-Set", NameInfo{Name: "bob-2024-Set"}},
	}
	for _, tt := range tests {
		if got := ParseName(tt.folder); got != tt.want {
			t.Errorf("ParseName(%q) = %+v, want %+v", tt.folder, got, tt.want)
		}
	}
}

func TestScanThreeFiles(t *testing.T) {
	root := filepath.Join(t.TempDir(), "alice-20240101-SampleSet")
	writeFile(t, filepath.Join(root, "README.md"), "# Sample\n")
	writeFile(t, filepath.Join(root, "data", "train.jsonl"), `{"a":1}`+"\n")
	writeFile(t, filepath.Join(root, "LICENSE"), "MIT")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(root, "node_modules", "x.js"), "x")
	writeFile(t, filepath.Join(root, "meta.json"), "{}")
	writeFile(t, filepath.Join(root, "meta.20240101_120000.backup.md"), "old")

	res, err := NewScanner(zap.NewNop()).Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Files) != 3 {
		t.Fatalf("got %d files, want 3: %+v", len(res.Files), res.Files)
	}

	var total int64
	formats := map[string]bool{}
	for _, f := range res.Files {
		total += f.SizeBytes
		formats[f.Format] = true
		if f.SHA256 == "" {
			t.Errorf("%s: SHA256 empty", f.Path)
		}
		if f.Format == ".jsonl" && f.Lines != 1 {
			t.Errorf("%s: Lines = %d, want 1", f.Path, f.Lines)
		}
	}
	if res.TotalSize != total {
		t.Errorf("TotalSize = %d, want %d", res.TotalSize, total)
	}
	for _, want := range []string{".md", ".jsonl", ".unknown"} {
		if !formats[want] {
			t.Errorf("missing format %s in %v", want, formats)
		}
	}

	info := ParseName(filepath.Base(root))
	if info.Creator != "alice" || info.Date != "2024-01-01" || info.Name != "SampleSet" {
		t.Errorf("ParseName = %+v", info)
	}
}

func TestIsOutput(t *testing.T) {
	for _, name := range []string{"meta.md", "meta.json", "meta.yaml", "meta.20240101_120000.backup.json", ".dsmeta-tmp-123"} {
		if !IsOutput(name) {
			t.Errorf("IsOutput(%q) = false", name)
		}
	}
	for _, name := range []string{"README.md", "metadata.json", "data.json"} {
		if IsOutput(name) {
			t.Errorf("IsOutput(%q) = true", name)
		}
	}
}

func TestScanEmptyDirectory(t *testing.T) {
	res, err := NewScanner(zap.NewNop()).Scan(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Files == nil || len(res.Files) != 0 {
		t.Errorf("Files = %v, want empty non-nil", res.Files)
	}
	if res.TotalSize != 0 {
		t.Errorf("TotalSize = %d, want 0", res.TotalSize)
	}
}

func TestScanErrors(t *testing.T) {
	s := NewScanner(zap.NewNop())
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := s.Scan(context.Background(), missing); err == nil || !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("missing path error = %v", err)
	}

	file := filepath.Join(t.TempDir(), "file.txt")
	writeFile(t, file, "x")
	if _, err := s.Scan(context.Background(), file); err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("file path error = %v", err)
	}
}

func TestPrioritizeIsStable(t *testing.T) {
	files := []dataset.FileStat{
		{Path: "b.bin", Format: ".bin"},
		{Path: "main.py", Format: ".py"},
		{Path: "a.csv", Format: ".csv"},
		{Path: "README.md", Format: ".md"},
		{Path: "c.bin", Format: ".bin"},
		{Path: "config.yaml", Format: ".yaml"},
	}
	got := Prioritize(files)
	var order []string
	for _, f := range got {
		order = append(order, f.Path)
	}
	want := "README.md,config.yaml,a.csv,main.py,b.bin,c.bin"
	if strings.Join(order, ",") != want {
		t.Errorf("order = %v, want %s", order, want)
	}
}

func TestMaskPII(t *testing.T) {
	in := "mail bob@example.com from 10.0.0.1 call 555-123-4567 key abcdefghijklmnopqrstuvwxyz0123456789"
	got := MaskPII(in)
	for _, leaked := range []string{"bob@example.com", "10.0.0.1", "555-123-4567", "abcdefghijklmnopqrstuvwxyz0123456789"} {
		if strings.Contains(got, leaked) {
			t.Errorf("MaskPII left %q in %q", leaked, got)
		}
	}
	for _, mask := range []string{"[EMAIL]", "[IP]", "[PHONE]", "[TOKEN]"} {
		if !strings.Contains(got, mask) {
			t.Errorf("MaskPII output missing %s: %q", mask, got)
		}
	}
}

func testSampler() *Sampler {
	s := NewSampler(config.FileProcessing{
		SampleHeadLines:  3,
		SampleTailLines:  2,
		SampleRandomSize: 2,
		EncodingFallback: []string{"utf-8", "gbk", "latin-1"},
	}, zap.NewNop())
	s.SetSeed(1)
	return s
}

func TestSampleTextHeadMiddleTail(t *testing.T) {
	s := testSampler()
	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, "line"+string(rune('a'+i)))
	}
	got := s.sampleText(strings.Join(lines, "\n"))

	if !strings.HasPrefix(got, "linea\nlineb\nlinec\n") {
		t.Errorf("missing head lines: %q", got)
	}
	if !strings.Contains(got, "[RANDOM MIDDLE SAMPLE]") || !strings.Contains(got, "[TAIL SAMPLE]") {
		t.Errorf("missing markers: %q", got)
	}
	if !strings.HasSuffix(got, "lines\nlinet") {
		t.Errorf("missing tail lines: %q", got)
	}

	short := "one\ntwo"
	if s.sampleText(short) != short {
		t.Error("short content should be returned whole")
	}
}

func TestSampleStructured(t *testing.T) {
	var items []string
	for i := 0; i < 15; i++ {
		items = append(items, `{"id":1}`)
	}
	got := sampleStructured("["+strings.Join(items, ",")+"]", ".json")
	if !strings.Contains(got, `"total_items": 15`) || !strings.Contains(got, `"sample_size": 10`) {
		t.Errorf("json sample = %s", got)
	}

	var rows []string
	for i := 0; i < 30; i++ {
		rows = append(rows, "a,b")
	}
	csv := sampleStructured(strings.Join(rows, "\n"), ".csv")
	if !strings.HasSuffix(csv, "... (10 more lines)") {
		t.Errorf("csv sample tail = %q", csv)
	}
	if n := strings.Count(csv, "\n"); n != 20 {
		t.Errorf("csv sample has %d newlines, want 20", n)
	}

	bad := sampleStructured("{not json", ".json")
	if bad != "{not json" {
		t.Errorf("invalid json should fall back to raw text, got %q", bad)
	}
}

func TestSampleDataset(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "README.md"), "# Demo\ncontact ops@example.com\n")
	writeFile(t, filepath.Join(root, "train.csv"), "q,a\n1,2\n")
	writeFile(t, filepath.Join(root, "notes.txt"), "hello\n")
	writeFile(t, filepath.Join(root, "image.png"), "\x89PNG")
	// GBK for "中文"
	writeFile(t, filepath.Join(root, "gbk.txt"), "\xd6\xd0\xce\xc4")

	res, err := NewScanner(zap.NewNop()).Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	sample := testSampler().Sample(root, res.Files)

	if len(sample.FileSummaries) != 5 {
		t.Errorf("FileSummaries = %d, want 5", len(sample.FileSummaries))
	}
	if len(sample.DataSamples) != 1 {
		t.Errorf("DataSamples = %d, want 1", len(sample.DataSamples))
	}
	if !strings.HasPrefix(sample.Combined, "=== README.md ===") {
		t.Errorf("Combined should start with the README: %q", sample.Combined)
	}
	if strings.Contains(sample.Combined, "ops@example.com") {
		t.Error("Combined leaks an email address")
	}
	if strings.Contains(sample.Combined, "PNG") {
		t.Error("binary file content should not be sampled")
	}
	if !strings.Contains(sample.Combined, "中文") {
		t.Errorf("GBK file not decoded: %q", sample.Combined)
	}
}

func TestParseDocument(t *testing.T) {
	doc := `# CyberBench

## 数据集描述
- 一个面向网络安全的
  [评测](https://example.com)基准

More text that is a second paragraph.

## 来源
github.com/example/cyberbench

## 数据模态
表格

## 赋能业务方向
漏洞挖掘、代码分析

### 子标题
ignored

## Unknown
whatever
`
	got := ParseDocument(doc)
	if got["description"] != "一个面向网络安全的 评测基准" {
		t.Errorf("description = %q", got["description"])
	}
	if got["source_url"] != "github.com/example/cyberbench" {
		t.Errorf("source_url = %q", got["source_url"])
	}
	if got["modality"] != "结构化/表格" {
		t.Errorf("modality = %q, want mapped value", got["modality"])
	}
	if _, ok := got["Unknown"]; ok {
		t.Error("unknown headings should be ignored")
	}
}

func TestExtract(t *testing.T) {
	root := filepath.Join(t.TempDir(), "qiaoyu-20250414-CyberSecEval(Benchmarks)")
	writeFile(t, filepath.Join(root, "CyberSecEval.md"), "## 来源\ngithub.com/meta/cyberseceval\n\n## 业务点\n静态分析, 动态分析\n")
	writeFile(t, filepath.Join(root, "README.md"), "## Description\nEvaluation suite\n")

	info := NewExtractor(zap.NewNop()).Extract(root)
	if info["description"] != "Evaluation suite" {
		t.Errorf("description = %v", info["description"])
	}
	if info["source_url"] != "https://github.com/meta/cyberseceval" {
		t.Errorf("source_url = %v", info["source_url"])
	}
	if info["source"] != "GitHub" {
		t.Errorf("source = %v", info["source"])
	}
	points, ok := info["business_point"].([]string)
	if !ok || len(points) != 2 || points[0] != "静态分析" {
		t.Errorf("business_point = %#v", info["business_point"])
	}

	if len(NewExtractor(zap.NewNop()).Extract(t.TempDir())) != 0 {
		t.Error("directory without docs should yield empty info")
	}
}

func TestCandidates(t *testing.T) {
	got := Candidates("/x/qiaoyu-20250414-CyberSecEval(Benchmarks)")
	joined := strings.Join(got, "|")
	for _, want := range []string{"README.md", "qiaoyu-20250414-CyberSecEval(Benchmarks).md", "CyberSecEval(Benchmarks).md", "CyberSecEval.MD"} {
		if !strings.Contains(joined, want) {
			t.Errorf("Candidates missing %q: %v", want, got)
		}
	}
}
