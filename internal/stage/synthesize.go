package stage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/llm"
	"github.com/lucasnoah/dsmeta/internal/meta"
	"github.com/lucasnoah/dsmeta/internal/search"
)

var synthesisRequired = []string{"name", "description", "modality", "use_case", "domain", "confidence_score"}

// Search looks the dataset up on the web. Disabled search yields an empty
// list; query failures are absorbed by the searcher.
func (s *Stages) Search(ctx context.Context, st *dataset.State) (dataset.Update, error) {
	u := dataset.Processing(StepSearch)
	if s.searcher == nil {
		s.log.Info("search_skipped", zap.String("dataset_name", st.DatasetName), zap.String("reason", "search disabled or no api key"))
		u.WebSearch = []search.Result{}
		return u, nil
	}

	desc, _ := st.Preliminary["description"].(string)
	results := s.searcher.Run(ctx, st.DatasetName, desc)
	if results == nil {
		results = []search.Result{}
	}
	s.log.Info("web search done", zap.String("dataset_name", st.DatasetName), zap.Int("results", len(results)))
	u.WebSearch = results
	return u, nil
}

// Synthesize produces the full metadata record. A failing model falls back
// to a local merge, so this step never fails the run.
func (s *Stages) Synthesize(ctx context.Context, st *dataset.State) (dataset.Update, error) {
	u := dataset.Processing(StepSynthesize)

	var m map[string]any
	if llm.IsOffline(s.llm) {
		m = meta.Expand(st.DatasetName, st.Preliminary, st.DocInfo, st.WebSearch)
	} else {
		prompt, err := SynthesisPrompt(st)
		if err == nil {
			m, err = llm.CompleteJSON(ctx, s.llm, s.request(prompt), s.policy, synthesisRequired, s.log, "synthesize")
		}
		if err != nil {
			s.log.Warn("synthesis failed, merging locally", zap.String("dataset_name", st.DatasetName), zap.Error(err))
			u.Errors = append(u.Errors, fmt.Sprintf("synthesize: %v; used local merge", err))
			m = meta.Merge(st.DatasetName, st.Preliminary, st.DocInfo, st.WebSearch)
		}
	}

	m = meta.SupplementLocal(m, meta.LocalFrom(st))
	conf := normalizeConfidence(m)

	s.log.Info("metadata synthesized",
		zap.String("dataset_name", st.DatasetName),
		zap.Int("fields", len(m)),
		zap.Float64("confidence", conf),
	)
	u.Meta = m
	u.ConfidenceScores = map[string]float64{StepSynthesize: conf}
	return u, nil
}
