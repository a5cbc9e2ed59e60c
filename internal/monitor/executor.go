// Package monitor watches directories for new datasets and runs the
// pipeline for each one on a bounded worker pool with retries.
package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lucasnoah/dsmeta/internal/config"
	"github.com/lucasnoah/dsmeta/internal/orchestrator"
)

// Runner processes one dataset directory to completion.
type Runner interface {
	Run(ctx context.Context, path string) orchestrator.Result
}

// RunRecorder stores finished runs. Recording errors are logged, never fatal.
type RunRecorder interface {
	RecordRun(ctx context.Context, res orchestrator.Result, attempt int) error
}

// ExecutorConfig sizes the pool and the retry policy.
type ExecutorConfig struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	BaseDelay  time.Duration
}

// ExecutorConfigFrom reads the monitoring config section.
func ExecutorConfigFrom(cfg config.Monitoring) ExecutorConfig {
	return ExecutorConfig{
		Workers:    cfg.MaxConcurrentTasks,
		QueueSize:  cfg.QueueSize,
		MaxRetries: cfg.RetryAttempts,
		BaseDelay:  config.Duration(cfg.RetryBaseDelay, time.Minute),
	}
}

// Stats is a snapshot of executor bookkeeping.
type Stats struct {
	Active    int `json:"active_tasks"`
	Queued    int `json:"queue_size"`
	Failing   int `json:"failed_tasks"`
	Abandoned int `json:"abandoned"`
	Submitted int `json:"submitted"`
	Dropped   int `json:"dropped"`
	Succeeded int `json:"succeeded"`
}

// Executor runs submitted dataset paths on a fixed number of workers. A path
// is never queued or running twice at once; failed paths are retried with
// exponential backoff until MaxRetries, then abandoned. An abandoned path
// keeps its failure count, so a later submission gets a single attempt and
// no retries until Reset clears it or a run succeeds.
type Executor struct {
	runner Runner
	rec    RunRecorder
	cfg    ExecutorConfig
	queue  chan string
	log    *zap.Logger

	mu        sync.Mutex
	pending   map[string]bool // queued, running or waiting for a retry
	active    map[string]bool
	failures  map[string]int
	abandoned map[string]bool
	submitted int
	dropped   int
	succeeded int

	retries sync.WaitGroup
}

// NewExecutor returns an Executor. Zero config values fall back to 4 workers,
// a queue of 1000 and a one minute base delay.
func NewExecutor(runner Runner, rec RunRecorder, cfg ExecutorConfig, log *zap.Logger) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		runner:    runner,
		rec:       rec,
		cfg:       cfg,
		queue:     make(chan string, cfg.QueueSize),
		log:       log,
		pending:   map[string]bool{},
		active:    map[string]bool{},
		failures:  map[string]int{},
		abandoned: map[string]bool{},
	}
}

// Submit queues path without blocking. It returns false when the path is
// already pending or the queue is full.
func (e *Executor) Submit(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending[path] {
		e.log.Debug("dataset already pending", zap.String("dataset_path", path))
		return false
	}
	select {
	case e.queue <- path:
		e.pending[path] = true
		delete(e.abandoned, path)
		e.submitted++
		e.log.Info("dataset queued", zap.String("dataset_path", path), zap.Int("queue_size", len(e.queue)))
		return true
	default:
		e.dropped++
		e.log.Warn("queue full, dropping dataset", zap.String("dataset_path", path), zap.Int("capacity", cap(e.queue)))
		return false
	}
}

// Reset forgets the failure history of path, giving it a full retry budget
// on its next submission.
func (e *Executor) Reset(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.failures, path)
	delete(e.abandoned, path)
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight run and retry timer has finished. Cancelling ctx stops the
// workers from taking new paths; runs already started finish normally and
// paths still queued are dropped.
func (e *Executor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case path := <-e.queue:
					if gctx.Err() != nil {
						e.release(path)
						return nil
					}
					e.process(gctx, path)
				}
			}
		})
	}
	err := g.Wait()
	e.retries.Wait()
	for {
		select {
		case path := <-e.queue:
			e.release(path)
		default:
			return err
		}
	}
}

func (e *Executor) process(ctx context.Context, path string) {
	e.mu.Lock()
	e.active[path] = true
	attempt := e.failures[path] + 1
	e.mu.Unlock()

	log := e.log.With(zap.String("dataset_path", path), zap.Int("attempt", attempt), zap.Int("retry_count", attempt-1))
	log.Info("processing dataset")
	runCtx := context.WithoutCancel(ctx)
	res := e.runner.Run(runCtx, path)

	if e.rec != nil {
		if err := e.rec.RecordRun(runCtx, res, attempt); err != nil {
			log.Warn("failed to record run", zap.Error(err))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, path)

	switch {
	case res.Success:
		delete(e.failures, path)
		delete(e.pending, path)
		e.succeeded++
		log.Info("dataset processed", zap.Duration("duration", res.Duration))
	case ctx.Err() != nil:
		delete(e.pending, path)
		log.Info("shutting down, not retrying", zap.String("error", res.ErrorMessage))
	case e.failures[path] < e.cfg.MaxRetries:
		n := e.failures[path]
		e.failures[path] = n + 1
		delay := e.cfg.BaseDelay * time.Duration(1<<n)
		log.Warn("dataset failed, scheduling retry",
			zap.String("error", res.ErrorMessage),
			zap.Int("retry", n+1),
			zap.Duration("delay", delay),
		)
		e.scheduleRetry(ctx, path, delay)
	default:
		delete(e.pending, path)
		e.abandoned[path] = true
		log.Error("dataset abandoned after retries", zap.String("error", res.ErrorMessage), zap.Int("failures", e.failures[path]))
	}
}

// release drops a dequeued path that will not be run.
func (e *Executor) release(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, path)
}

// scheduleRetry re-queues path after delay. Called with e.mu held.
func (e *Executor) scheduleRetry(ctx context.Context, path string, delay time.Duration) {
	e.retries.Add(1)
	go func() {
		defer e.retries.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			e.mu.Lock()
			delete(e.pending, path)
			e.mu.Unlock()
			return
		case <-t.C:
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		select {
		case e.queue <- path:
		default:
			delete(e.pending, path)
			e.dropped++
			e.log.Warn("queue full, dropping retry", zap.String("dataset_path", path))
		}
	}()
}

// Stats returns current counters.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	failing := 0
	for _, n := range e.failures {
		if n > 0 {
			failing++
		}
	}
	return Stats{
		Active:    len(e.active),
		Queued:    len(e.queue),
		Failing:   failing,
		Abandoned: len(e.abandoned),
		Submitted: e.submitted,
		Dropped:   e.dropped,
		Succeeded: e.succeeded,
	}
}

// Abandoned lists paths that exhausted their retries.
func (e *Executor) Abandoned() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.abandoned))
	for p := range e.abandoned {
		out = append(out, p)
	}
	return out
}
