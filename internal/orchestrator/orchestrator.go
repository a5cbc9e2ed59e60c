// Package orchestrator runs one dataset through the stage graph.
package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/stage"
)

// End is the edge target that finishes a run.
const End = ""

// Node is one named step of the graph.
type Node struct {
	Name string
	Run  stage.Func
}

// Edge picks the next node after a step from the state it produced.
type Edge func(st *dataset.State) string

// Graph is an ordered node table. Without an explicit edge a node is
// followed by the next one in the table; the last node is followed by End.
type Graph struct {
	nodes []Node
	index map[string]int
	edges map[string]Edge
}

// NewGraph builds a graph from nodes in order.
func NewGraph(nodes ...Node) *Graph {
	g := &Graph{nodes: nodes, index: make(map[string]int, len(nodes)), edges: map[string]Edge{}}
	for i, n := range nodes {
		g.index[n.Name] = i
	}
	return g
}

// Branch installs a conditional edge after the named node.
func (g *Graph) Branch(after string, e Edge) {
	g.edges[after] = e
}

// Names lists the node names in table order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Name
	}
	return out
}

func (g *Graph) next(name string, st *dataset.State) string {
	if e, ok := g.edges[name]; ok {
		return e(st)
	}
	i, ok := g.index[name]
	if !ok || i+1 >= len(g.nodes) {
		return End
	}
	return g.nodes[i+1].Name
}

// Pipeline is the standard graph: scan, sample, analyze, route, an optional
// search, synthesize, validate, render, persist.
func Pipeline(s *stage.Stages) *Graph {
	g := NewGraph(
		Node{stage.StepScan, s.Scan},
		Node{stage.StepSample, s.Sample},
		Node{stage.StepAnalyze, s.Analyze},
		Node{stage.StepRoute, s.Route},
		Node{stage.StepSearch, s.Search},
		Node{stage.StepSynthesize, s.Synthesize},
		Node{stage.StepValidate, s.Validate},
		Node{stage.StepRender, s.Render},
		Node{stage.StepPersist, s.Persist},
	)
	g.Branch(stage.StepRoute, func(st *dataset.State) string {
		if st.NeedSearch {
			return stage.StepSearch
		}
		return stage.StepSynthesize
	})
	return g
}

// Result summarises one run for callers.
type Result struct {
	Success      bool                  `json:"success"`
	Status       dataset.Status        `json:"status"`
	ProcessingID string                `json:"processing_id"`
	DatasetPath  string                `json:"dataset_path"`
	DatasetName  string                `json:"dataset_name"`
	ErrorMessage string                `json:"error_message,omitempty"`
	WrittenFiles []dataset.WrittenFile `json:"written_files,omitempty"`
	QualityScore float64               `json:"quality_score"`
	Duration     time.Duration         `json:"duration"`
	State        *dataset.State        `json:"-"`
}

// Orchestrator executes a Graph for one dataset at a time. It holds no
// per-run state and is safe for concurrent use.
type Orchestrator struct {
	graph *Graph
	final string
	log   *zap.Logger
	now   func() time.Time
}

// New returns an Orchestrator for g. Only the node named final may mark a
// run successful.
func New(g *Graph, final string, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{graph: g, final: final, log: log, now: time.Now}
}

// NewPipeline is New with the standard graph.
func NewPipeline(s *stage.Stages, log *zap.Logger) *Orchestrator {
	return New(Pipeline(s), stage.StepPersist, log)
}

// Run processes the dataset at path with a fresh state. It never returns an
// error: every failure is reported on the Result.
func (o *Orchestrator) Run(ctx context.Context, path string) Result {
	start := o.now()
	st := dataset.New(path)
	st.Apply(dataset.Update{Status: dataset.Ptr(dataset.StatusProcessing)})
	log := o.log.With(zap.String("processing_id", st.ProcessingID), zap.String("dataset_path", path))
	log.Info("run started")

	name := End
	if len(o.graph.nodes) > 0 {
		name = o.graph.nodes[0].Name
	}
	for name != End {
		i, ok := o.graph.index[name]
		if !ok {
			st.Apply(dataset.Failed(name, fmt.Sprintf("%s: unknown stage", name)))
			break
		}
		node := o.graph.nodes[i]

		if err := ctx.Err(); err != nil {
			st.Apply(dataset.Failed(node.Name, fmt.Sprintf("%s: %v", node.Name, err)))
			break
		}

		stageStart := o.now()
		log.Info("stage_entered", zap.String("stage", node.Name))
		u := o.runNode(ctx, node, st)
		if u.Status != nil && *u.Status == dataset.StatusSuccess && node.Name != o.final {
			log.Warn("stage tried to finish the run early", zap.String("stage", node.Name))
			u.Status = dataset.Ptr(dataset.StatusProcessing)
		}
		st.Apply(u)
		log.Info("stage_done",
			zap.String("stage", node.Name),
			zap.String("status", string(st.Status)),
			zap.Duration("duration", o.now().Sub(stageStart)),
		)

		if st.Status.Terminal() {
			break
		}
		name = o.graph.next(node.Name, st)
	}

	if !st.Status.Terminal() {
		st.Apply(dataset.Failed(st.CurrentStep, "run ended without persisting results"))
	}

	res := Result{
		Success:      st.Status == dataset.StatusSuccess,
		Status:       st.Status,
		ProcessingID: st.ProcessingID,
		DatasetPath:  path,
		DatasetName:  st.DatasetName,
		ErrorMessage: st.ErrorMessage,
		WrittenFiles: st.WrittenFiles,
		QualityScore: st.QualityScore,
		Duration:     o.now().Sub(start),
		State:        st,
	}
	if res.Success {
		log.Info("run finished", zap.String("dataset_name", res.DatasetName), zap.Duration("duration", res.Duration))
	} else {
		log.Error("run failed",
			zap.String("stage", st.CurrentStep),
			zap.String("error", res.ErrorMessage),
			zap.Duration("duration", res.Duration),
		)
	}
	return res
}

// runNode calls one stage, turning errors and panics into a failed update.
func (o *Orchestrator) runNode(ctx context.Context, n Node, st *dataset.State) (u dataset.Update) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("stage panicked", zap.String("stage", n.Name), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			u = dataset.Failed(n.Name, fmt.Sprintf("%s: %v", n.Name, r))
		}
	}()
	u, err := n.Run(ctx, st)
	if err != nil {
		return dataset.Failed(n.Name, fmt.Sprintf("%s: %v", n.Name, err))
	}
	return u
}
