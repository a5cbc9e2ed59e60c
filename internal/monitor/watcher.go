package monitor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/lucasnoah/dsmeta/internal/config"
)

// Submitter accepts dataset paths for processing without blocking.
type Submitter interface {
	Submit(path string) bool
}

// GlobToRegexp converts a glob to an unanchored regexp: "*" matches any
// run of characters, "?" one character, everything else literally.
func GlobToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return regexp.Compile(b.String())
}

// Watcher turns directory creations under the configured roots into
// submissions. It never runs pipeline work itself.
type Watcher struct {
	fs        *fsnotify.Watcher
	roots     []string
	patterns  []*regexp.Regexp
	recursive bool
	cooldown  time.Duration
	sub       Submitter
	log       *zap.Logger

	mu      sync.Mutex
	now     func() time.Time
	last    map[string]time.Time
	watched map[string]bool
}

// NewWatcher builds a Watcher from the monitoring config section.
func NewWatcher(cfg config.Monitoring, sub Submitter, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Watcher{
		roots:     cfg.Directories,
		recursive: cfg.Recursive,
		cooldown:  time.Duration(cfg.CooldownSeconds) * time.Second,
		sub:       sub,
		log:       log,
		now:       time.Now,
		last:      map[string]time.Time{},
		watched:   map[string]bool{},
	}
	for _, p := range cfg.Patterns {
		re, err := GlobToRegexp(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		w.patterns = append(w.patterns, re)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	w.fs = fw
	return w, nil
}

// SetClock overrides the clock used for the cooldown (for testing).
func (w *Watcher) SetClock(now func() time.Time) {
	w.mu.Lock()
	w.now = now
	w.mu.Unlock()
}

// Start adds every root, and with recursion every existing subdirectory,
// to the watch set. Missing roots are skipped with a warning.
func (w *Watcher) Start() error {
	added := 0
	for _, root := range w.roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			w.log.Warn("monitored directory missing, skipping", zap.String("directory", root))
			continue
		}
		if err := w.addTree(root); err != nil {
			return err
		}
		added++
	}
	w.log.Info("watching directories", zap.Int("roots", added), zap.Int("watched", len(w.Directories())))
	return nil
}

func (w *Watcher) addTree(dir string) error {
	if !w.recursive {
		return w.add(dir)
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("cannot walk directory", zap.String("directory", p), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.add(p)
	})
}

func (w *Watcher) add(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watched[dir] {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.watched[dir] = true
	return nil
}

// Directories lists the directories currently watched.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.watched))
	for d := range w.watched {
		out = append(out, d)
	}
	return out
}

// Close releases the fs watcher. Run closes it on return.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run forwards events until ctx is cancelled, then closes the fs watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.Error("fs watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) {
		return
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.IsDir() {
		return
	}
	if w.recursive {
		if err := w.addTree(ev.Name); err != nil {
			w.log.Warn("cannot watch new directory", zap.String("directory", ev.Name), zap.Error(err))
		}
	}
	if !w.Accept(ev.Name) {
		return
	}
	if !w.sub.Submit(ev.Name) {
		w.log.Debug("submission rejected", zap.String("dataset_path", ev.Name))
	}
}

// Accept reports whether path matches a pattern and is outside its
// cooldown window. An accepted path starts a new cooldown.
func (w *Watcher) Accept(path string) bool {
	if !w.matches(path) {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	if t, ok := w.last[path]; ok && now.Sub(t) < w.cooldown {
		w.log.Debug("dataset in cooldown", zap.String("dataset_path", path))
		return false
	}
	for p, t := range w.last {
		if now.Sub(t) >= w.cooldown {
			delete(w.last, p)
		}
	}
	w.last[path] = now
	return true
}

func (w *Watcher) matches(path string) bool {
	if len(w.patterns) == 0 {
		return true
	}
	for _, re := range w.patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}
