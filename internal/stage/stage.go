// Package stage implements the steps a dataset goes through on its way to
// a meta.md: scan, sample, analyze, route, search, synthesize, validate,
// render and persist. Every step reads the run state and returns a partial
// update; none of them mutates the state directly.
package stage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/config"
	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/llm"
	"github.com/lucasnoah/dsmeta/internal/render"
	"github.com/lucasnoah/dsmeta/internal/scan"
	"github.com/lucasnoah/dsmeta/internal/search"
)

// Step names, as recorded in State.CurrentStep and the logs.
const (
	StepScan       = "scan"
	StepSample     = "sample"
	StepAnalyze    = "analyze"
	StepRoute      = "route"
	StepSearch     = "search"
	StepSynthesize = "synthesize"
	StepValidate   = "validate"
	StepRender     = "render"
	StepPersist    = "persist"
)

// Func is one step. A returned error is turned into a failed update by the caller.
type Func func(ctx context.Context, st *dataset.State) (dataset.Update, error)

// Deps are the collaborators the steps call out to.
type Deps struct {
	Config *config.Config
	LLM    llm.Client
	// Search may be nil; the search step then records a skip.
	Search search.Provider
	Log    *zap.Logger
}

// Stages holds the configured step implementations.
type Stages struct {
	cfg       *config.Config
	llm       llm.Client
	scanner   *scan.Scanner
	sampler   *scan.Sampler
	extractor *scan.Extractor
	searcher  *search.Searcher
	renderer  *render.Renderer
	policy    llm.Policy
	force     bool
	now       func() time.Time
	log       *zap.Logger
}

// New wires the steps from config and external clients.
func New(d Deps) *Stages {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	cfg := d.Config
	s := &Stages{
		cfg:       cfg,
		llm:       d.LLM,
		scanner:   scan.NewScanner(log),
		sampler:   scan.NewSampler(cfg.FileProcessing, log),
		extractor: scan.NewExtractor(log),
		renderer:  render.New(cfg.Output, log),
		policy: llm.Policy{
			Attempts:  cfg.Node.MaxRetries,
			BaseDelay: time.Second,
			Timeout:   config.Duration(cfg.LLM.Timeout, 60*time.Second),
		},
		now: time.Now,
		log: log,
	}
	if d.Search != nil && cfg.Search.Enabled && cfg.Search.APIKey != "" {
		s.searcher = search.NewSearcher(d.Search, cfg.Search.MaxResults, log)
	}
	return s
}

// SetForce makes persist rewrite artifacts even when their content is unchanged.
func (s *Stages) SetForce(force bool) {
	s.force = force
}

// SetTemplate overrides the markdown template name.
func (s *Stages) SetTemplate(name string) {
	s.renderer.SetTemplate(name)
}

// SetPolicy overrides the retry policy for analysis and synthesis calls.
func (s *Stages) SetPolicy(p llm.Policy) {
	s.policy = p
}

// SetClock overrides the clock used for backup file names (for testing).
func (s *Stages) SetClock(now func() time.Time) {
	s.now = now
}

// SetSearchPause overrides the delay between search queries (for testing).
func (s *Stages) SetSearchPause(d time.Duration) {
	if s.searcher != nil {
		s.searcher.SetPause(d)
	}
}

// SetSampleSeed makes random middle sampling reproducible.
func (s *Stages) SetSampleSeed(seed uint64) {
	s.sampler.SetSeed(seed)
}

func step(name string) *string {
	return dataset.Ptr(name)
}
