package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewState(t *testing.T) {
	s := New("/data/alice-20240101-SampleSet")
	if s.Status != StatusPending {
		t.Errorf("Status = %q, want pending", s.Status)
	}
	if s.ProcessingID == "" {
		t.Error("ProcessingID should not be empty")
	}
	if s.Files == nil || len(s.Files) != 0 {
		t.Errorf("Files = %v, want empty non-nil", s.Files)
	}

	other := New("/data/alice-20240101-SampleSet")
	if other.ProcessingID == s.ProcessingID {
		t.Error("ProcessingID should be unique per state")
	}
}

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusPending, StatusProcessing, StatusSuccess, StatusFailed, StatusRetry}
	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to)
			want := from == StatusProcessing || (from == StatusPending && to == StatusProcessing)
			if got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestApplyRejectsIllegalTransition(t *testing.T) {
	s := New("/x")
	s.Apply(Update{Status: Ptr(StatusSuccess)})
	if s.Status != StatusPending {
		t.Fatalf("Status = %q, want pending (pending->success is illegal)", s.Status)
	}
	if len(s.Errors) != 1 || !strings.Contains(s.Errors[0], "illegal status transition") {
		t.Errorf("Errors = %v, want one illegal transition note", s.Errors)
	}

	s.Apply(Processing("scan"))
	s.Apply(Update{Status: Ptr(StatusSuccess)})
	if s.Status != StatusSuccess {
		t.Fatalf("Status = %q, want success", s.Status)
	}

	// success is terminal
	s.Apply(Update{Status: Ptr(StatusFailed)})
	if s.Status != StatusSuccess {
		t.Errorf("Status = %q, want success to stay terminal", s.Status)
	}
}

func TestApplyMergesMapsAndAppendsErrors(t *testing.T) {
	s := New("/x")
	s.Apply(Update{
		Preliminary: map[string]any{"description": "a"},
		Artifacts:   map[string]Artifact{"markdown": {Filename: "meta.md"}},
		Errors:      []string{"first"},
	})
	s.Apply(Update{
		Preliminary: map[string]any{"modality": "代码"},
		Artifacts:   map[string]Artifact{"json": {Filename: "meta.json"}},
		Errors:      []string{"second"},
	})

	if len(s.Preliminary) != 2 {
		t.Errorf("Preliminary has %d keys, want 2", len(s.Preliminary))
	}
	if len(s.Artifacts) != 2 {
		t.Errorf("Artifacts has %d keys, want 2", len(s.Artifacts))
	}
	if strings.Join(s.Errors, ",") != "first,second" {
		t.Errorf("Errors = %v, want [first second]", s.Errors)
	}
}

func TestApplyNilLeavesFieldsAlone(t *testing.T) {
	s := New("/x")
	s.Apply(Update{DatasetName: Ptr("SampleSet"), TotalSize: Ptr(int64(42))})
	s.Apply(Update{CurrentStep: Ptr("sample")})

	if s.DatasetName != "SampleSet" {
		t.Errorf("DatasetName = %q, want SampleSet", s.DatasetName)
	}
	if s.TotalSize != 42 {
		t.Errorf("TotalSize = %d, want 42", s.TotalSize)
	}

	// empty but non-nil replaces
	s.Apply(Update{WebSearch: nil})
	if s.WebSearch == nil {
		t.Error("WebSearch should remain the initial empty slice")
	}
}

func TestFailed(t *testing.T) {
	s := New("/x")
	s.Apply(Processing("scan"))
	s.Apply(Failed("scan", "dataset path does not exist: /x"))

	if s.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", s.Status)
	}
	if s.ErrorMessage != "dataset path does not exist: /x" {
		t.Errorf("ErrorMessage = %q", s.ErrorMessage)
	}
	if s.CurrentStep != "scan" {
		t.Errorf("CurrentStep = %q, want scan", s.CurrentStep)
	}
}

func TestNormalizeFormat(t *testing.T) {
	tests := map[string]string{
		"":      ".unknown",
		".JSON": ".json",
		"csv":   ".csv",
		".":     ".unknown",
	}
	for in, want := range tests {
		if got := NormalizeFormat(in); got != want {
			t.Errorf("NormalizeFormat(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("/data/set", 100)
	if len(a) != 16 {
		t.Fatalf("len(CacheKey) = %d, want 16", len(a))
	}
	if a != CacheKey("/data/set", 100) {
		t.Error("CacheKey not deterministic")
	}
	if a == CacheKey("/data/set", 101) {
		t.Error("CacheKey should change with size")
	}
}

func TestHumanSize(t *testing.T) {
	tests := map[int64]string{
		0:               "0.0B",
		512:             "512.0B",
		1536:            "1.5KB",
		5 * 1024 * 1024: "5.0MB",
	}
	for in, want := range tests {
		if got := HumanSize(in); got != want {
			t.Errorf("HumanSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteAtomicAndHash(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "meta.md")

	if err := WriteAtomic(path, []byte("# hello\n")); err != nil {
		t.Fatalf("WriteAtomic: %v", err)
	}
	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if got != HashBytes([]byte("# hello\n")) {
		t.Error("HashFile and HashBytes disagree")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("found %d entries, want 1 (no temp files left)", len(entries))
	}
}

func TestBackupName(t *testing.T) {
	ts := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	got := BackupName("/data/set/meta.json", ts)
	want := "/data/set/meta.20240102_150405.backup.json"
	if got != want {
		t.Errorf("BackupName = %q, want %q", got, want)
	}
}

func TestMarshalJSONKeepsUnicode(t *testing.T) {
	data, err := MarshalJSON(map[string]string{"modality": "自然语言文本", "note": "<b>"})
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if !strings.Contains(string(data), "自然语言文本") || !strings.Contains(string(data), "<b>") {
		t.Errorf("MarshalJSON escaped content: %s", data)
	}
}
