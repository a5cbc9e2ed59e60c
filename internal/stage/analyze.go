package stage

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/llm"
	"github.com/lucasnoah/dsmeta/internal/meta"
)

var analysisRequired = []string{"description", "modality", "use_case", "domain"}

// defaultConfidence replaces a missing or out-of-range confidence_score.
const defaultConfidence = 0.5

var codeFormats = map[string]bool{
	".py": true, ".js": true, ".cpp": true, ".c": true, ".h": true, ".go": true, ".java": true,
}

// Analyze asks the model for a preliminary classification of the dataset.
// When every attempt fails the run fails.
func (s *Stages) Analyze(ctx context.Context, st *dataset.State) (dataset.Update, error) {
	var out map[string]any
	if llm.IsOffline(s.llm) {
		out = MockAnalysis(st)
		s.log.Info("using offline analysis", zap.String("dataset_name", st.DatasetName))
	} else {
		prompt, err := AnalysisPrompt(st)
		if err != nil {
			return dataset.Failed(StepAnalyze, err.Error()), nil
		}
		req := s.request(prompt)
		out, err = llm.CompleteJSON(ctx, s.llm, req, s.policy, analysisRequired, s.log, "analyze")
		if err != nil {
			return dataset.Failed(StepAnalyze, fmt.Sprintf("analysis failed: %v", err)), nil
		}
	}

	conf := normalizeConfidence(out)
	if _, ok := out["needs_web_search"].(bool); !ok {
		out["needs_web_search"] = false
	}

	s.log.Info("preliminary analysis done",
		zap.String("dataset_name", st.DatasetName),
		zap.Any("modality", out["modality"]),
		zap.Any("domain", out["domain"]),
		zap.Float64("confidence", conf),
	)

	u := dataset.Processing(StepAnalyze)
	u.Preliminary = out
	u.ConfidenceScores = map[string]float64{StepAnalyze: conf}
	return u, nil
}

func (s *Stages) request(prompt string) llm.Request {
	return llm.Request{
		Model:       s.cfg.LLM.Model,
		System:      SystemPrompt,
		Prompt:      prompt,
		Temperature: s.cfg.LLM.Temperature,
		MaxTokens:   s.cfg.LLM.MaxTokens,
		JSON:        true,
	}
}

// normalizeConfidence stores a usable confidence_score on m and returns it.
func normalizeConfidence(m map[string]any) float64 {
	c, ok := meta.Float(m["confidence_score"])
	if !ok || math.IsNaN(c) || c < 0 || c > 1 {
		c = defaultConfidence
	}
	m["confidence_score"] = c
	return c
}

// MockAnalysis is the deterministic analysis used when no model is reachable.
// It keys off the dataset name and whether any source code is present.
func MockAnalysis(st *dataset.State) map[string]any {
	name := st.DatasetName
	lower := strings.ToLower(name)

	hasCode := false
	for _, f := range st.Files {
		if codeFormats[f.Format] {
			hasCode = true
			break
		}
	}

	out := map[string]any{
		"confidence_score": 0.75,
		"needs_web_search": false,
	}
	switch {
	case strings.Contains(lower, "cyber"):
		out["modality"] = "自然语言文本"
		if hasCode {
			out["modality"] = "代码"
		}
		out["domain"] = "网络攻防"
		out["use_case"] = "模型评测"
		out["description"] = fmt.Sprintf("%s 是一个网络安全相关的数据集，包含用于网络安全评测和训练的数据。", name)
	case hasCode:
		out["modality"] = "代码"
		out["domain"] = "基础通用"
		out["use_case"] = "模型评测"
		out["description"] = fmt.Sprintf("%s 是一个代码相关的数据集，可用于代码分析和评测。", name)
	default:
		out["modality"] = "自然语言文本"
		out["domain"] = "基础通用"
		out["use_case"] = "数据分析"
		out["description"] = fmt.Sprintf("%s 是一个通用数据集，包含多种格式的数据文件。", name)
	}

	if strings.Contains(lower, "bench") {
		out["task_types"] = []string{"benchmark", "evaluation"}
	} else {
		out["task_types"] = []string{"analysis"}
	}
	out["reasoning"] = fmt.Sprintf("基于数据集名称和 %d 个文件的格式推断", len(st.Files))
	return out
}
