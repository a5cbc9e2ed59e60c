package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/config"
	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/llm"
	"github.com/lucasnoah/dsmeta/internal/stage"
)

type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) node(name string, u func(*dataset.State) dataset.Update) Node {
	return Node{Name: name, Run: func(ctx context.Context, st *dataset.State) (dataset.Update, error) {
		r.mu.Lock()
		r.order = append(r.order, name)
		r.mu.Unlock()
		if u == nil {
			return dataset.Processing(name), nil
		}
		return u(st), nil
	}}
}

func finish(st *dataset.State) dataset.Update {
	return dataset.Update{CurrentStep: dataset.Ptr("c"), Status: dataset.Ptr(dataset.StatusSuccess)}
}

func TestRunFollowsTableOrder(t *testing.T) {
	r := &recorder{}
	g := NewGraph(r.node("a", nil), r.node("b", nil), r.node("c", finish))
	res := New(g, "c", zap.NewNop()).Run(context.Background(), "/d")

	if !res.Success || res.Status != dataset.StatusSuccess {
		t.Fatalf("result = %+v", res)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(r.order, want) {
		t.Errorf("order = %v, want %v", r.order, want)
	}
	if res.ProcessingID == "" || res.State == nil {
		t.Error("result missing processing id or state")
	}
}

func TestRunBranchSkipsNode(t *testing.T) {
	for _, search := range []bool{true, false} {
		r := &recorder{}
		g := NewGraph(
			r.node("route", func(st *dataset.State) dataset.Update {
				u := dataset.Processing("route")
				u.NeedSearch = dataset.Ptr(search)
				return u
			}),
			r.node("search", nil),
			r.node("c", finish),
		)
		g.Branch("route", func(st *dataset.State) string {
			if st.NeedSearch {
				return "search"
			}
			return "c"
		})
		New(g, "c", nil).Run(context.Background(), "/d")

		want := []string{"route", "c"}
		if search {
			want = []string{"route", "search", "c"}
		}
		if !reflect.DeepEqual(r.order, want) {
			t.Errorf("search=%v: order = %v, want %v", search, r.order, want)
		}
	}
}

func TestRunStopsAtFailure(t *testing.T) {
	r := &recorder{}
	g := NewGraph(
		r.node("a", func(st *dataset.State) dataset.Update { return dataset.Failed("a", "bad input") }),
		r.node("b", nil),
	)
	res := New(g, "b", nil).Run(context.Background(), "/d")
	if res.Success || res.Status != dataset.StatusFailed || res.ErrorMessage != "bad input" {
		t.Errorf("result = %+v", res)
	}
	if len(r.order) != 1 {
		t.Errorf("order = %v, want only a", r.order)
	}
}

func TestRunConvertsErrorsAndPanics(t *testing.T) {
	boom := Node{Name: "boom", Run: func(ctx context.Context, st *dataset.State) (dataset.Update, error) {
		return dataset.Update{}, errors.New("disk on fire")
	}}
	res := New(NewGraph(boom), "boom", nil).Run(context.Background(), "/d")
	if res.ErrorMessage != "boom: disk on fire" || res.State.CurrentStep != "boom" {
		t.Errorf("error result = %+v", res)
	}

	panicky := Node{Name: "panicky", Run: func(ctx context.Context, st *dataset.State) (dataset.Update, error) {
		var m map[string]int
		m["x"] = 1
		return dataset.Update{}, nil
	}}
	res = New(NewGraph(panicky), "panicky", nil).Run(context.Background(), "/d")
	if res.Status != dataset.StatusFailed || !strings.HasPrefix(res.ErrorMessage, "panicky: ") {
		t.Errorf("panic result = %+v", res)
	}
}

func TestOnlyFinalNodeMaySucceed(t *testing.T) {
	r := &recorder{}
	g := NewGraph(r.node("early", finish), r.node("last", nil))
	res := New(g, "other", nil).Run(context.Background(), "/d")
	if res.Success {
		t.Fatal("a non-final node must not finish the run")
	}
	if len(r.order) != 2 {
		t.Errorf("order = %v, want both nodes to run", r.order)
	}
	if !strings.Contains(res.ErrorMessage, "without persisting") {
		t.Errorf("error = %q", res.ErrorMessage)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	r := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := New(NewGraph(r.node("a", nil)), "a", nil).Run(ctx, "/d")
	if res.Status != dataset.StatusFailed || len(r.order) != 0 {
		t.Errorf("result = %+v, order %v", res, r.order)
	}
}

func TestPipelineOffline(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bob-20230315-TextCorpus")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(strings.Repeat("line\n", 40)), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.LLM.Provider = "mock"
	s := stage.New(stage.Deps{Config: cfg, LLM: &llm.Mock{}, Log: zap.NewNop()})
	o := NewPipeline(s, zap.NewNop())

	if want := []string{"scan", "sample", "analyze", "route", "search", "synthesize", "validate", "render", "persist"}; !reflect.DeepEqual(Pipeline(s).Names(), want) {
		t.Errorf("Names = %v", Pipeline(s).Names())
	}

	res := o.Run(context.Background(), dir)
	if !res.Success {
		t.Fatalf("run failed at %s: %s", res.State.CurrentStep, res.ErrorMessage)
	}
	if res.DatasetName != "TextCorpus" || len(res.WrittenFiles) != 2 {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(dir, "meta.md")); err != nil {
		t.Errorf("meta.md not written: %v", err)
	}
	if res.State.Meta["num_records"] == nil {
		t.Errorf("expected record estimate, meta = %v", res.State.Meta)
	}
}
