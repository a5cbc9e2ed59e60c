package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/meta"
)

// Validate cleans and completes the synthesized record, corrects enum
// values, runs the quality checks and strict validation, and scores the
// result. Only an empty record fails the run.
func (s *Stages) Validate(ctx context.Context, st *dataset.State) (dataset.Update, error) {
	if len(st.Meta) == 0 {
		return dataset.Failed(StepValidate, "no metadata to validate"), nil
	}

	l := meta.LocalFrom(st)
	qc := s.cfg.QualityControl

	m := meta.Clean(st.Meta)
	m = meta.Supplement(m, l)
	m["file_formats"] = meta.FileFormats(st.Files, st.TotalSize)

	var notes []string
	if qc.EnumValidation {
		notes = meta.NormalizeEnums(m)
	}
	m["checksum"] = meta.Checksum(st.DatasetPath, st.TotalSize, st.Files)

	issues := meta.QualityIssues(m, qc)
	if len(issues) > 0 {
		m["quality_issues"] = issues
	} else {
		delete(m, "quality_issues")
	}

	var errs []string
	md, err := meta.FromMap(m)
	if err != nil {
		errs = []string{fmt.Sprintf("decode: %v", err)}
	} else {
		errs = meta.Check(md)
	}
	if len(errs) > 0 {
		s.log.Warn("metadata failed strict validation, applying fixups",
			zap.String("dataset_name", st.DatasetName),
			zap.Strings("errors", errs),
		)
		m = meta.Fixup(m, errs, l)
	}

	score := meta.QualityScore(m, issues)
	passed := len(errs) == 0 && len(issues) == 0
	s.log.Info("metadata validated",
		zap.String("dataset_name", st.DatasetName),
		zap.Float64("quality_score", score),
		zap.Int("issues", len(issues)),
		zap.Int("enum_notes", len(notes)),
		zap.Bool("passed", passed),
	)
	if qc.ReviewThreshold > 0 && score < qc.ReviewThreshold {
		s.log.Warn("metadata needs human review",
			zap.String("dataset_name", st.DatasetName),
			zap.Float64("quality_score", score),
			zap.Float64("threshold", qc.ReviewThreshold),
		)
	}

	validationErrors := append(append([]string{}, errs...), issues...)
	validationErrors = append(validationErrors, notes...)

	u := dataset.Processing(StepValidate)
	u.Meta = m
	u.QualityScore = dataset.Ptr(score)
	u.ValidationPassed = dataset.Ptr(passed)
	u.ValidationErrors = validationErrors
	return u, nil
}
