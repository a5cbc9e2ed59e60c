package stage

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/meta"
)

// LowConfidence is the analysis confidence below which a search is run.
const LowConfidence = 0.7

var sourceFields = []string{"source", "source_url", "license", "citation"}

var publicIndicators = []string{
	"benchmark", "bench", "eval", "test", "challenge", "competition",
	"coco", "imagenet", "bert", "glue", "squad", "wiki", "common",
	"open", "public", "arxiv", "paper", "official",
}

var versionPattern = regexp.MustCompile(`v\d+|version|20\d{2}`)

// Decision is the outcome of the search routing rule.
type Decision struct {
	NeedSearch    bool
	Reasons       []string
	Missing       []string
	LowConfidence bool
	PublicDataset bool
}

// DecideNeedSearch decides whether the preliminary analysis needs a web
// search. A confidence_score that is present but not a number is an error.
func DecideNeedSearch(st *dataset.State) (Decision, error) {
	var d Decision
	prelim := st.Preliminary

	for _, f := range sourceFields {
		if v, ok := prelim[f].(string); !ok || strings.TrimSpace(v) == "" {
			d.Missing = append(d.Missing, f)
		}
	}
	if len(d.Missing) >= 2 {
		d.Reasons = append(d.Reasons, "missing fields: "+strings.Join(d.Missing, ", "))
	}

	conf := 0.0
	if v, ok := prelim["confidence_score"]; ok && v != nil {
		c, ok := meta.Float(v)
		if !ok {
			return Decision{}, fmt.Errorf("confidence_score has unexpected type %T", v)
		}
		conf = c
	}
	if conf < LowConfidence {
		d.LowConfidence = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("low confidence: %.2f", conf))
	}

	desc, _ := prelim["description"].(string)
	if LikelyPublic(st.DatasetName, desc) {
		d.PublicDataset = true
		d.Reasons = append(d.Reasons, "likely public dataset")
	}

	if v, _ := prelim["needs_web_search"].(bool); v {
		d.Reasons = append(d.Reasons, "requested by analysis")
	}

	d.NeedSearch = len(d.Reasons) > 0
	return d, nil
}

// LikelyPublic reports whether a dataset looks like a published one: an
// indicator token in its name or description, or a version or year in its name.
func LikelyPublic(name, description string) bool {
	text := strings.ToLower(name + " " + description)
	for _, tok := range publicIndicators {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return versionPattern.MatchString(strings.ToLower(name))
}

// Route records whether the run goes through search. A routing error
// defaults to searching.
func (s *Stages) Route(ctx context.Context, st *dataset.State) (dataset.Update, error) {
	d, err := DecideNeedSearch(st)
	if err != nil {
		s.log.Warn("search routing failed, defaulting to search", zap.String("dataset_name", st.DatasetName), zap.Error(err))
		d = Decision{NeedSearch: true, Reasons: []string{"routing error: " + err.Error()}}
	}
	s.log.Info("search routing decided",
		zap.String("dataset_name", st.DatasetName),
		zap.Bool("need_search", d.NeedSearch),
		zap.Strings("reasons", d.Reasons),
	)

	u := dataset.Processing(StepRoute)
	u.NeedSearch = dataset.Ptr(d.NeedSearch)
	u.SearchReasons = append([]string{}, d.Reasons...)
	return u, nil
}
