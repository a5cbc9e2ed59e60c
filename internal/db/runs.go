package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lucasnoah/dsmeta/internal/dataset"
	"github.com/lucasnoah/dsmeta/internal/orchestrator"
)

// Run is a row in the runs table.
type Run struct {
	ID           int                   `json:"id"`
	ProcessingID string                `json:"processing_id"`
	DatasetPath  string                `json:"dataset_path"`
	DatasetName  string                `json:"dataset_name"`
	Status       string                `json:"status"`
	FailedStage  string                `json:"failed_stage,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
	Attempt      int                   `json:"attempt"`
	QualityScore float64               `json:"quality_score"`
	WrittenFiles []dataset.WrittenFile `json:"written_files,omitempty"`
	DurationMs   int64                 `json:"duration_ms"`
	CreatedAt    string                `json:"created_at"`
}

// RunFilter narrows ListRuns. Zero values match everything; Limit 0 means 50.
type RunFilter struct {
	DatasetPath string
	Status      string
	Limit       int
}

// RunSummary aggregates the run history.
type RunSummary struct {
	Total      int     `json:"total"`
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	Datasets   int     `json:"datasets"`
	AvgQuality float64 `json:"avg_quality"`
}

// RecordRun inserts one finished run.
func (d *DB) RecordRun(ctx context.Context, res orchestrator.Result, attempt int) error {
	status := string(dataset.StatusFailed)
	if res.Success {
		status = string(dataset.StatusSuccess)
	}
	var failedStage string
	if !res.Success && res.State != nil {
		failedStage = res.State.CurrentStep
	}
	var files []byte
	if len(res.WrittenFiles) > 0 {
		b, err := json.Marshal(res.WrittenFiles)
		if err != nil {
			return fmt.Errorf("encode written files: %w", err)
		}
		files = b
	}

	_, err := d.conn.ExecContext(ctx, d.rebind(
		`INSERT INTO runs (processing_id, dataset_path, dataset_name, status, failed_stage, error_message, attempt, quality_score, written_files, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		res.ProcessingID, res.DatasetPath, res.DatasetName, status,
		nullString(failedStage), nullString(res.ErrorMessage), attempt, res.QualityScore,
		nullString(string(files)), res.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// ListRuns returns runs newest first.
func (d *DB) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	var where []string
	var args []any
	if f.DatasetPath != "" {
		where = append(where, "dataset_path = ?")
		args = append(args, f.DatasetPath)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT id, processing_id, dataset_path, dataset_name, status, failed_stage, error_message,
	             attempt, quality_score, written_files, duration_ms, created_at
	      FROM runs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.conn.QueryContext(ctx, d.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest run for a dataset, or nil when there is none.
func (d *DB) LatestRun(ctx context.Context, path string) (*Run, error) {
	runs, err := d.ListRuns(ctx, RunFilter{DatasetPath: path, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// Summary aggregates the whole run history.
func (d *DB) Summary(ctx context.Context) (RunSummary, error) {
	var s RunSummary
	var avg sql.NullFloat64
	err := d.conn.QueryRowContext(ctx, d.rebind(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		        COUNT(DISTINCT dataset_path),
		        AVG(CASE WHEN status = ? THEN quality_score END)
		 FROM runs`),
		string(dataset.StatusSuccess), string(dataset.StatusFailed), string(dataset.StatusSuccess),
	).Scan(&s.Total, &s.Succeeded, &s.Failed, &s.Datasets, &avg)
	if err != nil {
		return RunSummary{}, fmt.Errorf("summarize runs: %w", err)
	}
	if avg.Valid {
		s.AvgQuality = avg.Float64
	}
	return s, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	var name, stage, msg, files sql.NullString
	err := s.Scan(&r.ID, &r.ProcessingID, &r.DatasetPath, &name, &r.Status, &stage, &msg,
		&r.Attempt, &r.QualityScore, &files, &r.DurationMs, &r.CreatedAt)
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.DatasetName = name.String
	r.FailedStage = stage.String
	r.ErrorMessage = msg.String
	if files.Valid && files.String != "" {
		if err := json.Unmarshal([]byte(files.String), &r.WrittenFiles); err != nil {
			return Run{}, fmt.Errorf("decode written files: %w", err)
		}
	}
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
