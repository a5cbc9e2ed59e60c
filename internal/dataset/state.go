package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/lucasnoah/dsmeta/internal/search"
)

// New creates a pending State for the given dataset directory.
func New(path string) *State {
	return &State{
		DatasetPath:  path,
		ProcessingID: uuid.NewString(),
		CurrentStep:  "start",
		Status:       StatusPending,
		Files:        []FileStat{},
		Preliminary:  map[string]any{},
		WebSearch:    []search.Result{},
		Meta:         map[string]any{},
		Artifacts:    map[string]Artifact{},
		Errors:       []string{},
	}
}

// CanTransition reports whether a run may move from one status to another.
// Only pending→processing and processing→anything are legal.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return true
	default:
		return false
	}
}

// Apply merges a partial update into the state. Scalars overwrite, maps merge
// key by key, Errors appends. An illegal status change is dropped and noted
// in Errors.
func (s *State) Apply(u Update) {
	if u.DatasetName != nil {
		s.DatasetName = *u.DatasetName
	}
	if u.Creator != nil {
		s.Creator = *u.Creator
	}
	if u.CreationDate != nil {
		s.CreationDate = *u.CreationDate
	}
	if u.Files != nil {
		s.Files = u.Files
	}
	if u.TotalSize != nil {
		s.TotalSize = *u.TotalSize
	}
	if u.CacheKey != nil {
		s.CacheKey = *u.CacheKey
	}
	if u.DocInfo != nil {
		if s.DocInfo == nil {
			s.DocInfo = map[string]any{}
		}
		maps.Copy(s.DocInfo, u.DocInfo)
	}
	if u.FileSamples != nil {
		s.FileSamples = *u.FileSamples
	}
	if u.CurrentStep != nil {
		s.CurrentStep = *u.CurrentStep
	}
	if u.Preliminary != nil {
		if s.Preliminary == nil {
			s.Preliminary = map[string]any{}
		}
		maps.Copy(s.Preliminary, u.Preliminary)
	}
	if u.WebSearch != nil {
		s.WebSearch = u.WebSearch
	}
	if u.Meta != nil {
		s.Meta = u.Meta
	}
	if u.Artifacts != nil {
		if s.Artifacts == nil {
			s.Artifacts = map[string]Artifact{}
		}
		maps.Copy(s.Artifacts, u.Artifacts)
	}
	if u.NeedSearch != nil {
		s.NeedSearch = *u.NeedSearch
	}
	if u.SearchReasons != nil {
		s.SearchReasons = u.SearchReasons
	}
	s.Errors = append(s.Errors, u.Errors...)
	if u.ErrorMessage != nil {
		s.ErrorMessage = *u.ErrorMessage
	}
	if u.ConfidenceScores != nil {
		if s.ConfidenceScores == nil {
			s.ConfidenceScores = map[string]float64{}
		}
		maps.Copy(s.ConfidenceScores, u.ConfidenceScores)
	}
	if u.QualityScore != nil {
		s.QualityScore = *u.QualityScore
	}
	if u.ValidationPassed != nil {
		s.ValidationPassed = *u.ValidationPassed
	}
	if u.ValidationErrors != nil {
		s.ValidationErrors = u.ValidationErrors
	}
	if u.WrittenFiles != nil {
		s.WrittenFiles = u.WrittenFiles
	}

	if u.Status != nil && *u.Status != s.Status {
		if CanTransition(s.Status, *u.Status) {
			s.Status = *u.Status
		} else {
			s.Errors = append(s.Errors, fmt.Sprintf("illegal status transition %s -> %s", s.Status, *u.Status))
		}
	}
}

// Failed builds an Update that fails the run at the given step.
func Failed(step, msg string) Update {
	return Update{
		CurrentStep:  Ptr(step),
		Status:       Ptr(StatusFailed),
		ErrorMessage: Ptr(msg),
		Errors:       []string{msg},
	}
}

// Processing builds an Update that records the step and keeps the run going.
func Processing(step string) Update {
	return Update{
		CurrentStep: Ptr(step),
		Status:      Ptr(StatusProcessing),
	}
}

// CacheKey returns the change-detection fingerprint for a dataset:
// the first 16 hex chars of sha256("path:totalSize").
func CacheKey(path string, totalSize int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", path, totalSize)))
	return hex.EncodeToString(sum[:])[:16]
}

// HumanSize formats a byte count the way the metadata documents show it, e.g. "1.5MB".
func HumanSize(n int64) string {
	size := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024 {
			return fmt.Sprintf("%.1f%s", size, unit)
		}
		size /= 1024
	}
	return fmt.Sprintf("%.1fPB", size)
}
