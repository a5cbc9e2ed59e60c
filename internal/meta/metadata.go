package meta

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// FileFormatStat is one row of the per-format histogram.
type FileFormatStat struct {
	Format string `json:"format" yaml:"format"`
	Count  int    `json:"count" yaml:"count"`
	Size   string `json:"size" yaml:"size"`
	Ratio  string `json:"ratio" yaml:"ratio"`
}

// Metadata is the final, typed metadata record of a dataset.
type Metadata struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Source      string   `json:"source,omitempty" yaml:"source,omitempty"`
	SourceURL   string   `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	Size        string   `json:"size" yaml:"size"`
	NumFiles    int      `json:"num_files" yaml:"num_files"`
	NumRecords  *int     `json:"num_records,omitempty" yaml:"num_records,omitempty"`
	Languages   []string `json:"languages" yaml:"languages"`

	Modality    string           `json:"modality" yaml:"modality"`
	FileFormats []FileFormatStat `json:"file_formats" yaml:"file_formats"`
	UseCase     string           `json:"use_case" yaml:"use_case"`
	TaskTypes   []string         `json:"task_types" yaml:"task_types"`
	InputSchema map[string]any   `json:"input_schema,omitempty" yaml:"input_schema,omitempty"`
	LabelSchema map[string]any   `json:"label_schema,omitempty" yaml:"label_schema,omitempty"`

	Domain            string   `json:"domain" yaml:"domain"`
	BusinessDirection []string `json:"business_direction" yaml:"business_direction"`
	BusinessPoint     []string `json:"business_point" yaml:"business_point"`
	Rating            string   `json:"rating" yaml:"rating"`

	Creator      string `json:"creator,omitempty" yaml:"creator,omitempty"`
	CreationDate string `json:"creation_date,omitempty" yaml:"creation_date,omitempty"`
	Version      string `json:"version" yaml:"version"`
	License      string `json:"license,omitempty" yaml:"license,omitempty"`
	AccessLevel  string `json:"access_level" yaml:"access_level"`
	Citation     string `json:"citation,omitempty" yaml:"citation,omitempty"`

	Sample       string `json:"sample,omitempty" yaml:"sample,omitempty"`
	Remarks      string `json:"remarks,omitempty" yaml:"remarks,omitempty"`
	PIIRisk      string `json:"pii_risk" yaml:"pii_risk"`
	QualityNotes string `json:"quality_notes,omitempty" yaml:"quality_notes,omitempty"`
	Checksum     string `json:"checksum,omitempty" yaml:"checksum,omitempty"`

	ConfidenceScore float64  `json:"confidence_score,omitempty" yaml:"confidence_score,omitempty"`
	QualityIssues   []string `json:"quality_issues,omitempty" yaml:"quality_issues,omitempty"`
}

var urlPattern = regexp.MustCompile(`(?i)^https?://(?:(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,6}\.?|localhost|\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})(?::\d+)?(?:/?|[/?]\S+)$`)

// ValidURL reports whether u is an absolute http(s) URL with a plausible host.
func ValidURL(u string) bool {
	if !urlPattern.MatchString(u) {
		return false
	}
	_, err := url.Parse(u)
	return err == nil
}

// FromMap builds a Metadata record from a loosely typed metadata map.
// Values of the wrong JSON type are reported as errors; unknown keys are ignored.
func FromMap(m map[string]any) (Metadata, error) {
	var md Metadata
	data, err := json.Marshal(coerce(m))
	if err != nil {
		return md, fmt.Errorf("encoding metadata map: %w", err)
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return md, fmt.Errorf("decoding metadata: %w", err)
	}
	return md, nil
}

// ToMap converts a record back into the map form carried on the run state.
func (md Metadata) ToMap() map[string]any {
	data, err := json.Marshal(md)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// coerce fixes the common loose shapes an analysis service returns: numbers
// as strings for counters and single strings where lists are expected.
func coerce(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, f := range []string{"languages", "task_types", "business_direction", "business_point", "quality_issues"} {
		if s, ok := out[f].(string); ok {
			out[f] = splitList(s)
		}
	}
	for _, f := range []string{"num_files", "num_records"} {
		if s, ok := out[f].(string); ok {
			var n int
			if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err == nil {
				out[f] = n
			} else {
				delete(out, f)
			}
		}
		if fv, ok := out[f].(float64); ok {
			out[f] = int(fv)
		}
	}
	if s, ok := out["confidence_score"].(string); ok {
		if f, ok := Float(s); ok {
			out["confidence_score"] = f
		} else {
			delete(out, "confidence_score")
		}
	}
	return out
}

// Check strictly validates a record and returns one "field: message" entry per problem.
func Check(md Metadata) []string {
	var errs []string
	if strings.TrimSpace(md.Name) == "" {
		errs = append(errs, "name: field required")
	}
	if strings.TrimSpace(md.Description) == "" {
		errs = append(errs, "description: field required")
	}
	if md.Size == "" {
		errs = append(errs, "size: field required")
	}
	single := []struct{ field, value string }{
		{"modality", md.Modality},
		{"use_case", md.UseCase},
		{"domain", md.Domain},
		{"rating", md.Rating},
		{"pii_risk", md.PIIRisk},
		{"access_level", md.AccessLevel},
	}
	for _, f := range single {
		if !IsValid(f.field, f.value) {
			errs = append(errs, fmt.Sprintf("%s: invalid value %q", f.field, f.value))
		}
	}
	for i, v := range md.BusinessDirection {
		if !IsValid("business_direction", v) {
			errs = append(errs, fmt.Sprintf("business_direction.%d: invalid value %q", i, v))
		}
	}
	for i, v := range md.BusinessPoint {
		if !IsValid("business_point", v) {
			errs = append(errs, fmt.Sprintf("business_point.%d: invalid value %q", i, v))
		}
	}
	if md.ConfidenceScore < 0 || md.ConfidenceScore > 1 {
		errs = append(errs, fmt.Sprintf("confidence_score: %v out of range [0,1]", md.ConfidenceScore))
	}
	return errs
}

var listSeparators = regexp.MustCompile(`\s*[|,，、;；]\s*`)

func splitList(s string) []string {
	var out []string
	for _, part := range listSeparators.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
