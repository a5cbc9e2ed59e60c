package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/db"
	"github.com/lucasnoah/dsmeta/internal/monitor"
)

//go:embed templates
var templateFS embed.FS

var funcMap = template.FuncMap{
	"badgeClass": func(status string) string {
		return "badge badge-" + strings.ReplaceAll(status, "_", "-")
	},
	"relTime":  relTime,
	"duration": fmtDuration,
	"pct": func(f float64) string {
		return fmt.Sprintf("%.0f%%", f*100)
	},
}

// StatusSource reports the live state of the monitoring service.
type StatusSource interface {
	Status() monitor.Status
}

// RunStore reads the run history.
type RunStore interface {
	ListRuns(ctx context.Context, f db.RunFilter) ([]db.Run, error)
	Summary(ctx context.Context) (db.RunSummary, error)
}

// Server is the read-only status server.
type Server struct {
	status StatusSource
	runs   RunStore
	addr   string
	log    *zap.Logger

	// tick paces the /events stream.
	tick time.Duration

	dashboardTmpl *template.Template
}

// NewServer creates a Server with parsed templates. status or runs may be nil
// when that source is unavailable; the matching endpoints then answer 503.
func NewServer(status StatusSource, runs RunStore, addr string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		status:        status,
		runs:          runs,
		addr:          addr,
		log:           log,
		tick:          2 * time.Second,
		dashboardTmpl: mustParseTmpl("base.html", "dashboard.html"),
	}
}

func mustParseTmpl(names ...string) *template.Template {
	patterns := make([]string, len(names))
	for i, n := range names {
		patterns[i] = "templates/" + n
	}
	return template.Must(template.New("").Funcs(funcMap).ParseFS(templateFS, patterns...))
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		s.handleDashboard(w, r)
	})
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/runs", s.handleRuns)
	mux.HandleFunc("/summary", s.handleSummary)
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

// Start listens on the configured address until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("status server listening", zap.String("addr", "http://"+ln.Addr().String()))

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
