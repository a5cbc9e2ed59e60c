package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/db"
	"github.com/lucasnoah/dsmeta/internal/monitor"
)

// ---- view models ----

type DashboardData struct {
	Monitor    *monitor.Status
	Summary    db.RunSummary
	Runs       []RunRow
	Generated  string
	HasHistory bool
}

type RunRow struct {
	Dataset    string
	Path       string
	Status     string
	Stage      string
	Error      string
	Attempt    int
	Quality    float64
	Duration   int64
	Files      int
	CreatedAgo string
}

// ---- helpers ----

func relTime(ts string) string {
	formats := []string{
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	var t time.Time
	for _, f := range formats {
		if parsed, err := time.Parse(f, ts); err == nil {
			t = parsed
			break
		}
	}
	if t.IsZero() {
		return ts
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func fmtDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", ms)
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) execTemplate(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.dashboardTmpl.ExecuteTemplate(w, "base", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ---- Dashboard ----

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := DashboardData{Generated: time.Now().Format("2006-01-02 15:04:05")}
	if s.status != nil {
		st := s.status.Status()
		data.Monitor = &st
	}
	if s.runs != nil {
		sum, err := s.runs.Summary(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		runs, err := s.runs.ListRuns(r.Context(), db.RunFilter{Limit: 30})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		data.Summary = sum
		data.HasHistory = true
		for _, run := range runs {
			data.Runs = append(data.Runs, RunRow{
				Dataset:    run.DatasetName,
				Path:       run.DatasetPath,
				Status:     run.Status,
				Stage:      run.FailedStage,
				Error:      run.ErrorMessage,
				Attempt:    run.Attempt,
				Quality:    run.QualityScore,
				Duration:   run.DurationMs,
				Files:      len(run.WrittenFiles),
				CreatedAgo: relTime(run.CreatedAt),
			})
		}
	}
	s.execTemplate(w, data)
}

// ---- JSON ----

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "monitoring service is not running")
		return
	}
	writeJSON(w, http.StatusOK, s.status.Status())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not available")
		return
	}
	q := r.URL.Query()
	f := db.RunFilter{DatasetPath: q.Get("dataset"), Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		f.Limit = n
	}
	runs, err := s.runs.ListRuns(r.Context(), f)
	if err != nil {
		s.log.Error("list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not available")
		return
	}
	sum, err := s.runs.Summary(r.Context())
	if err != nil {
		s.log.Error("summarize runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handleEvents serves a Server-Sent Events stream of the monitor status,
// one message per tick, until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeError(w, http.StatusServiceUnavailable, "monitoring service is not running")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	send := func() bool {
		b, err := json.Marshal(s.status.Status())
		if err != nil {
			return false
		}
		fmt.Fprintf(w, "event: status\ndata: %s\n\n", b)
		flusher.Flush()
		return true
	}
	if !send() {
		return
	}

	tick := time.NewTicker(s.tick)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			if !send() {
				return
			}
		}
	}
}
