package dataset

import (
	"strings"

	"github.com/lucasnoah/dsmeta/internal/search"
)

// Status is the lifecycle status of a single processing run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusRetry      Status = "retry"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// FileStat describes one file found under a dataset directory.
type FileStat struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	Format    string `json:"format"`
	SHA256    string `json:"sha256,omitempty"`
	Encoding  string `json:"encoding,omitempty"`
	Lines     int    `json:"lines,omitempty"`
}

// NormalizeFormat lowercases an extension and makes sure it starts with ".".
// An empty extension becomes ".unknown".
func NormalizeFormat(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ".unknown"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// WriteStatus is the outcome of persisting one artifact.
type WriteStatus string

const (
	WriteWritten   WriteStatus = "written"
	WriteUnchanged WriteStatus = "unchanged"
	WriteFailed    WriteStatus = "failed"
)

// WrittenFile records what happened to one artifact during persist.
type WrittenFile struct {
	Filename string      `json:"filename"`
	Path     string      `json:"path"`
	Status   WriteStatus `json:"status"`
	Size     int64       `json:"size"`
	Backup   string      `json:"backup,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// Artifact is one rendered output file, keyed by format in State.Artifacts.
type Artifact struct {
	Filename string `json:"filename"`
	Format   string `json:"format"`
	Content  []byte `json:"-"`
}

// State is the per-run processing state. A State is created fresh for every
// attempt and is never shared between runs.
type State struct {
	DatasetPath  string `json:"dataset_path"`
	ProcessingID string `json:"processing_id"`

	DatasetName  string `json:"dataset_name"`
	Creator      string `json:"creator,omitempty"`
	CreationDate string `json:"creation_date,omitempty"`

	Files     []FileStat     `json:"files"`
	TotalSize int64          `json:"total_size"`
	CacheKey  string         `json:"cache_key,omitempty"`
	DocInfo   map[string]any `json:"doc_info,omitempty"`

	FileSamples string `json:"file_samples,omitempty"`

	CurrentStep string `json:"current_step"`
	Status      Status `json:"status"`

	Preliminary map[string]any      `json:"preliminary"`
	WebSearch   []search.Result     `json:"web_search"`
	Meta        map[string]any      `json:"meta"`
	Artifacts   map[string]Artifact `json:"artifacts"`

	NeedSearch    bool     `json:"need_search"`
	SearchReasons []string `json:"search_reasons,omitempty"`

	Errors       []string `json:"errors"`
	ErrorMessage string   `json:"error_message,omitempty"`

	ConfidenceScores map[string]float64 `json:"confidence_scores,omitempty"`
	QualityScore     float64            `json:"quality_score"`
	ValidationPassed bool               `json:"validation_passed"`
	ValidationErrors []string           `json:"validation_errors,omitempty"`

	WrittenFiles []WrittenFile `json:"written_files,omitempty"`
}

// Update is a partial State returned by a stage. Nil pointers, nil maps and
// nil slices mean "not set"; a stage that wants an empty list sets a non-nil
// empty slice.
type Update struct {
	DatasetName  *string
	Creator      *string
	CreationDate *string

	Files     []FileStat
	TotalSize *int64
	CacheKey  *string
	DocInfo   map[string]any

	FileSamples *string

	CurrentStep *string
	Status      *Status

	Preliminary map[string]any
	WebSearch   []search.Result
	// Meta replaces the whole record: synthesize produces it and validate refines it.
	Meta      map[string]any
	Artifacts map[string]Artifact

	NeedSearch    *bool
	SearchReasons []string

	Errors       []string
	ErrorMessage *string

	ConfidenceScores map[string]float64
	QualityScore     *float64
	ValidationPassed *bool
	ValidationErrors []string

	WrittenFiles []WrittenFile
}

// Ptr returns a pointer to v. Handy for building Updates.
func Ptr[T any](v T) *T {
	return &v
}
