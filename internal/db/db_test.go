package db

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/orchestrator"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrate(t *testing.T) {
	d, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()

	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for _, table := range []string{"schema_version", "runs"} {
		var name string
		err := d.conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	var version int
	if err := d.conn.QueryRow("SELECT version FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("query schema_version: %v", err)
	}
	if version != 1 {
		t.Errorf("expected schema version 1, got %d", version)
	}

	// Migrate again should be idempotent
	if err := d.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func success(path string) orchestrator.Result {
	return orchestrator.Result{
		Success:      true,
		Status:       dataset.StatusSuccess,
		ProcessingID: "p-" + path,
		DatasetPath:  path,
		DatasetName:  "Demo",
		QualityScore: 0.8,
		Duration:     1500 * time.Millisecond,
		WrittenFiles: []dataset.WrittenFile{{Filename: "meta.md", Path: path + "/meta.md", Status: dataset.WriteWritten, Size: 10}},
	}
}

func TestRecordAndListRuns(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	st := dataset.New("/data/b")
	st.CurrentStep = "analyze"
	failed := orchestrator.Result{Status: dataset.StatusFailed, ProcessingID: "p2", DatasetPath: "/data/b", ErrorMessage: "analysis failed", State: st}

	if err := d.RecordRun(ctx, success("/data/a"), 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := d.RecordRun(ctx, failed, 2); err != nil {
		t.Fatalf("record failed run: %v", err)
	}

	runs, err := d.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}

	failedRuns, err := d.ListRuns(ctx, RunFilter{Status: "failed"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failedRuns) != 1 {
		t.Fatalf("got %d failed runs, want 1", len(failedRuns))
	}
	r := failedRuns[0]
	if r.FailedStage != "analyze" || r.ErrorMessage != "analysis failed" || r.Attempt != 2 {
		t.Errorf("failed run = %+v", r)
	}

	latest, err := d.LatestRun(ctx, "/data/a")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest == nil || latest.DatasetName != "Demo" || latest.DurationMs != 1500 {
		t.Fatalf("latest = %+v", latest)
	}
	if len(latest.WrittenFiles) != 1 || latest.WrittenFiles[0].Status != dataset.WriteWritten {
		t.Errorf("written files = %+v", latest.WrittenFiles)
	}

	none, err := d.LatestRun(ctx, "/nowhere")
	if err != nil || none != nil {
		t.Errorf("LatestRun(/nowhere) = %v, %v", none, err)
	}
}

func TestSummary(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()

	empty, err := d.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if empty.Total != 0 || empty.AvgQuality != 0 {
		t.Errorf("empty summary = %+v", empty)
	}

	for _, p := range []string{"/a", "/a", "/b"} {
		if err := d.RecordRun(ctx, success(p), 1); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := d.RecordRun(ctx, orchestrator.Result{Status: dataset.StatusFailed, DatasetPath: "/c", QualityScore: 0.1}, 1); err != nil {
		t.Fatalf("record: %v", err)
	}

	s, err := d.Summary(ctx)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.Total != 4 || s.Succeeded != 3 || s.Failed != 1 || s.Datasets != 3 {
		t.Errorf("summary = %+v", s)
	}
	if math.Abs(s.AvgQuality-0.8) > 1e-9 {
		t.Errorf("avg quality = %v, want 0.8 (failed runs excluded)", s.AvgQuality)
	}
}

func TestReset(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	if err := d.RecordRun(ctx, success("/a"), 1); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := d.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runs, err := d.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("list after reset: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs after reset, got %d", len(runs))
	}
}

func TestRebind(t *testing.T) {
	got := Rebind("SELECT * FROM runs WHERE a = ? AND b = ? LIMIT ?")
	want := "SELECT * FROM runs WHERE a = $1 AND b = $2 LIMIT $3"
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}
	d := &DB{dialect: "sqlite"}
	if q := d.rebind("a = ?"); q != "a = ?" {
		t.Errorf("sqlite rebind changed query: %q", q)
	}
}
