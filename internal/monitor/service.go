package monitor

import (
	"context"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/dsmeta/internal/config"
)

// Status is the monitoring snapshot served by the status endpoint.
type Status struct {
	Running     bool     `json:"running"`
	Directories []string `json:"monitored_directories"`
	Stats
}

// Service ties a Watcher to an Executor.
type Service struct {
	exec    *Executor
	watcher *Watcher
	running atomic.Bool
	log     *zap.Logger
}

// NewService builds the executor and watcher for cfg.
func NewService(cfg config.Monitoring, runner Runner, rec RunRecorder, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	exec := NewExecutor(runner, rec, ExecutorConfigFrom(cfg), log.Named("executor"))
	w, err := NewWatcher(cfg, exec, log.Named("watcher"))
	if err != nil {
		return nil, err
	}
	return &Service{exec: exec, watcher: w, log: log}, nil
}

// Run watches and processes until ctx is cancelled, then drains in-flight work.
func (s *Service) Run(ctx context.Context) error {
	if err := s.watcher.Start(); err != nil {
		s.watcher.Close()
		return err
	}
	s.running.Store(true)
	defer s.running.Store(false)
	s.log.Info("monitor started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.exec.Run(gctx) })
	g.Go(func() error { return s.watcher.Run(gctx) })
	err := g.Wait()
	s.log.Info("monitor stopped", zap.Any("stats", s.exec.Stats()))
	return err
}

// Status returns the current monitoring snapshot.
func (s *Service) Status() Status {
	dirs := s.watcher.Directories()
	sort.Strings(dirs)
	return Status{
		Running:     s.running.Load(),
		Directories: dirs,
		Stats:       s.exec.Stats(),
	}
}
