package meta

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lucasnoah/dsmeta/internal/config"
	"github.com/lucasnoah/dsmeta/internal/dataset"
)

// Clean trims strings, normalises newlines, drops nil and empty values and
// dedupes lists keeping first occurrences. The input map is not modified.
func Clean(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				continue
			}
			s = strings.ReplaceAll(s, "\r\n", "\n")
			out[k] = strings.ReplaceAll(s, "\r", "\n")
		case []string:
			if list := dedupe(Strings(t)); len(list) > 0 {
				out[k] = list
			}
		case []any:
			if !scalars(t) {
				out[k] = t
				continue
			}
			if list := dedupe(Strings(t)); len(list) > 0 {
				out[k] = list
			}
		default:
			out[k] = v
		}
	}
	return out
}

func scalars(list []any) bool {
	for _, v := range list {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func dedupe(list []string) []string {
	seen := make(map[string]bool, len(list))
	out := list[:0]
	for _, s := range list {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Supplement fills required fields the record is missing. Size and file
// count always reflect the scan.
func Supplement(m map[string]any, l Local) map[string]any {
	if str(m, "id") == "" {
		m["id"] = DatasetID(l.Path)
	}
	if str(m, "name") == "" {
		m["name"] = firstNonEmpty(l.Name, "Unknown Dataset")
	}
	if str(m, "description") == "" {
		m["description"] = fmt.Sprintf("%s 数据集的自动生成描述", m["name"])
	}
	if _, ok := m["creator"]; !ok && l.Creator != "" {
		m["creator"] = l.Creator
	}
	if _, ok := m["creation_date"]; !ok && l.CreationDate != "" {
		m["creation_date"] = l.CreationDate
	}
	if _, ok := m["version"]; !ok {
		m["version"] = "v1.0"
	}
	if _, ok := m["access_level"]; !ok {
		m["access_level"] = "public"
	}
	m["size"] = dataset.HumanSize(l.TotalSize)
	m["num_files"] = len(l.Files)
	if _, ok := m["languages"]; !ok {
		m["languages"] = []string{"zh", "en"}
	}
	return m
}

// DatasetID is a stable UUID for a dataset directory, so re-annotating the
// same directory keeps its id.
func DatasetID(path string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("dsmeta:"+path)).String()
}

// FileFormats builds the per-format histogram, largest share first.
func FileFormats(files []dataset.FileStat, totalSize int64) []FileFormatStat {
	type agg struct {
		count int
		size  int64
	}
	var order []string
	stats := map[string]*agg{}
	for _, f := range files {
		a, ok := stats[f.Format]
		if !ok {
			a = &agg{}
			stats[f.Format] = a
			order = append(order, f.Format)
		}
		a.count++
		a.size += f.SizeBytes
	}

	ratio := func(size int64) float64 {
		if totalSize <= 0 {
			return 0
		}
		return float64(size) / float64(totalSize) * 100
	}
	sort.SliceStable(order, func(i, j int) bool {
		return stats[order[i]].size > stats[order[j]].size
	})

	out := make([]FileFormatStat, 0, len(order))
	for _, f := range order {
		a := stats[f]
		out = append(out, FileFormatStat{
			Format: f,
			Count:  a.count,
			Size:   dataset.HumanSize(a.size),
			Ratio:  fmt.Sprintf("%.1f%%", ratio(a.size)),
		})
	}
	return out
}

// NormalizeEnums splits multi-select strings on "|", corrects single enum
// fields onto their vocabularies and drops uncorrectable multi-select items.
// It returns one note per change.
func NormalizeEnums(m map[string]any) []string {
	var notes []string
	for _, f := range multiSelectFields {
		s, ok := m[f].(string)
		if !ok {
			continue
		}
		var items []string
		for _, part := range strings.Split(s, "|") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		m[f] = items
	}

	for _, f := range sortedKeys(enumFields) {
		v, ok := m[f]
		if !ok || v == nil {
			continue
		}
		cur := fmt.Sprint(v)
		if IsValid(f, cur) {
			continue
		}
		fixed, matched := Correct(f, cur)
		m[f] = fixed
		if matched {
			notes = append(notes, fmt.Sprintf("%s: corrected %q -> %q", f, cur, fixed))
		} else {
			notes = append(notes, fmt.Sprintf("%s: %q replaced by default %q", f, cur, fixed))
		}
	}

	for _, f := range sortedKeys(multiEnumFields) {
		if _, ok := m[f]; !ok {
			continue
		}
		var kept []string
		for _, item := range Strings(m[f]) {
			if IsValid(f, item) {
				kept = append(kept, item)
				continue
			}
			if fixed, ok := Match(item, multiEnumFields[f]); ok {
				kept = append(kept, fixed)
				notes = append(notes, fmt.Sprintf("%s: corrected %q -> %q", f, item, fixed))
			} else {
				notes = append(notes, fmt.Sprintf("%s: dropped %q", f, item))
			}
		}
		m[f] = dedupe(kept)
	}
	return notes
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Checksum is the aggregate dataset checksum: sha256 over the path, the
// total size and every "relpath:size:sha256", truncated to 16 hex chars.
func Checksum(path string, totalSize int64, files []dataset.FileStat) string {
	parts := []string{path, strconv.FormatInt(totalSize, 10)}
	for _, f := range files {
		parts = append(parts, fmt.Sprintf("%s:%d:%s", f.Path, f.SizeBytes, f.SHA256))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:16]
}

// QualityIssues lists soft problems with a record. Issues never fail a run.
func QualityIssues(m map[string]any, qc config.QualityControl) []string {
	var issues []string
	for _, f := range qc.RequiredFields {
		if empty(m[f]) {
			issues = append(issues, "missing required field: "+f)
		}
	}

	switch n := utf8.RuneCountInString(str(m, "description")); {
	case n < 10:
		issues = append(issues, "description too short, expected at least 10 characters")
	case n > 500:
		issues = append(issues, "description too long, expected at most 500 characters")
	}

	if c, ok := Float(m["confidence_score"]); ok && c < qc.MinConfidenceScore {
		issues = append(issues, fmt.Sprintf("confidence too low: %v", c))
	}
	if u := str(m, "source_url"); u != "" && !ValidURL(u) {
		issues = append(issues, "invalid source_url: "+u)
	}
	return issues
}

// Fixup resets the fields named by strict validation errors to safe values.
func Fixup(m map[string]any, errs []string, l Local) map[string]any {
	for _, e := range errs {
		field, _, _ := strings.Cut(e, ":")
		field, _, _ = strings.Cut(field, ".")
		switch field {
		case "modality", "use_case", "domain", "rating", "pii_risk", "access_level":
			m[field] = Default(field)
		case "business_direction", "business_point":
			var kept []string
			for _, item := range Strings(m[field]) {
				if IsValid(field, item) {
					kept = append(kept, item)
				}
			}
			m[field] = kept
		case "name":
			m["name"] = firstNonEmpty(l.Name, "Unknown Dataset")
		case "description":
			m["description"] = fmt.Sprintf("%s 数据集", firstNonEmpty(str(m, "name"), l.Name))
		case "size":
			m["size"] = dataset.HumanSize(l.TotalSize)
		case "confidence_score":
			c, _ := Float(m["confidence_score"])
			m["confidence_score"] = math.Max(0, math.Min(1, c))
		case "num_files", "num_records", "decode":
			m["num_files"] = len(l.Files)
			delete(m, "num_records")
		}
	}
	return m
}

var bonusFields = []string{"source_url", "license", "citation", "sample"}

// QualityScore is (1 - 0.1 per issue + 0.05 per bonus field) scaled by the
// confidence score (0.5 when absent), clamped to [0,1].
func QualityScore(m map[string]any, issues []string) float64 {
	score := 1.0 - 0.1*float64(len(issues))
	for _, f := range bonusFields {
		if !empty(m[f]) {
			score += 0.05
		}
	}
	conf, ok := Float(m["confidence_score"])
	if !ok {
		conf = 0.5
	}
	return math.Max(0, math.Min(1, score*conf))
}

// Float reads a numeric value from a loosely typed map entry.
func Float(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
