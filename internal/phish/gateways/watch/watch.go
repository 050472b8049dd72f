// Package watch turns filesystem changes under the rule and config paths
// into reload triggers. Coalescing is the trigger's concern; this gateway
// only reports that something changed.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/log"
)

// Trigger receives change notifications. *debounce.Debouncer satisfies it.
type Trigger interface {
	Trigger()
}

// Options configure New. Paths and Trigger are required.
type Options struct {
	Paths   []string // files or directories; directories are not recursed
	Trigger Trigger
	Logger  log.Logger
}

// Watcher bridges fsnotify events to a Trigger. Watching a file actually
// watches its parent directory and filters by name, so editors that replace
// files by rename still register.
type Watcher struct {
	fsw     *fsnotify.Watcher
	trigger Trigger
	log     log.Logger

	files   map[string]bool // absolute file paths to react to
	dirs    map[string]bool // directories whose entries all count
	running atomic.Bool
}

// New validates the paths and registers them with fsnotify. Every path must
// exist.
func New(opts Options) (*Watcher, error) {
	if len(opts.Paths) == 0 {
		return nil, fmt.Errorf("watch: at least one path is required")
	}
	if opts.Trigger == nil {
		return nil, fmt.Errorf("watch: trigger is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}

	w := &Watcher{
		fsw:     fsw,
		trigger: opts.Trigger,
		log:     opts.Logger,
		files:   map[string]bool{},
		dirs:    map[string]bool{},
	}

	for _, p := range opts.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
		target := abs
		if info.IsDir() {
			w.dirs[abs] = true
		} else {
			w.files[abs] = true
			target = filepath.Dir(abs)
		}
		if err := fsw.Add(target); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watch %s: %w", target, err)
		}
	}
	return w, nil
}

// Start begins forwarding events until the context is canceled or Close is
// called.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return fmt.Errorf("watch: already running")
	}
	go w.loop(ctx)
	w.log.Info(map[string]any{
		"files": len(w.files),
		"dirs":  len(w.dirs),
	}, "config watcher started")
	return nil
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	w.running.Store(false)
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug(map[string]any{
				"path": ev.Name,
				"op":   ev.Op.String(),
			}, "change detected")
			w.trigger.Trigger()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error(map[string]any{"error": err.Error()}, "watch error")
		case <-ctx.Done():
			return
		}
	}
}

// relevant filters chmod noise and events outside the registered paths.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	if w.files[abs] {
		return true
	}
	return w.dirs[filepath.Dir(abs)]
}
