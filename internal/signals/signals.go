// Package signals implements the file-based control channel for a running
// taskpilot process. Another process (usually `taskpilot signal`) drops a
// file into the signals directory and the Watcher acts on it:
//
//	cancel-<taskID>  cancel that task
//	pause            stop starting new tasks
//	resume           continue starting tasks
//
// Handled files are removed.
package signals

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/taskpilot/internal/logging"
)

// Signal file names.
const (
	PauseFile    = "pause"
	ResumeFile   = "resume"
	CancelPrefix = "cancel-"
)

const defaultPollInterval = time.Second

// Target receives the actions requested through signal files.
// *orchestrator.Scheduler satisfies it.
type Target interface {
	Cancel(id string) error
	Pause()
	Resume()
}

// Watcher watches a signals directory with fsnotify and falls back to
// polling when notifications are unavailable or missed.
type Watcher struct {
	dir    string
	target Target
	logger *logging.Logger
	poll   time.Duration

	watcher *fsnotify.Watcher
	handled atomic.Int64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPollInterval sets how often the directory is rescanned.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.poll = d
		}
	}
}

// NewWatcher creates the signals directory and removes signal files left
// by an earlier run. Failure to start fsnotify is not an error; the
// Watcher then relies on polling.
func NewWatcher(dir string, target Target, logger *logging.Logger, opts ...Option) (*Watcher, error) {
	if target == nil {
		return nil, errors.New("signals: nil target")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create signals directory: %w", err)
	}

	w := &Watcher{
		dir:    dir,
		target: target,
		logger: logger.With("component", "signals"),
		poll:   defaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := Clear(dir); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable, polling signals", "error", err)
		return w, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		w.logger.Warn("cannot watch signals directory, polling", "dir", dir, "error", err)
		return w, nil
	}
	w.watcher = watcher
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Handled returns the number of signal files acted on.
func (w *Watcher) Handled() int64 {
	return w.handled.Load()
}

// Run processes signal files until ctx is done. It always returns nil
// once ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	var events <-chan fsnotify.Event
	var errs <-chan error
	if w.watcher != nil {
		defer w.watcher.Close()
		events = w.watcher.Events
		errs = w.watcher.Errors
	}

	w.scan()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.scan()
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("signal watcher error", "error", err)
		case <-ticker.C:
			w.scan()
		}
	}
}

// scan handles every signal file currently in the directory in name order.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("read signals directory", "dir", w.dir, "error", err)
		return
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if !w.dispatch(name) {
			continue
		}
		w.handled.Add(1)
		if err := os.Remove(filepath.Join(w.dir, name)); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("remove signal file", "file", name, "error", err)
		}
	}
}

// dispatch applies the signal named by a file. It reports false for files
// that are not signals.
func (w *Watcher) dispatch(name string) bool {
	switch {
	case name == PauseFile:
		w.logger.Info("pause signal received")
		w.target.Pause()
	case name == ResumeFile:
		w.logger.Info("resume signal received")
		w.target.Resume()
	case strings.HasPrefix(name, CancelPrefix) && len(name) > len(CancelPrefix):
		id := strings.TrimPrefix(name, CancelPrefix)
		if err := w.target.Cancel(id); err != nil {
			w.logger.WithTask(id).Warn("cancel signal ignored", "error", err)
		} else {
			w.logger.WithTask(id).Info("cancel signal received")
		}
	default:
		return false
	}
	return true
}

// Cancel asks the process watching dir to cancel task id.
func Cancel(dir, id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid task id %q", id)
	}
	return write(dir, CancelPrefix+id)
}

// Pause asks the process watching dir to stop starting tasks.
func Pause(dir string) error {
	return write(dir, PauseFile)
}

// Resume asks the process watching dir to continue starting tasks.
func Resume(dir string) error {
	return write(dir, ResumeFile)
}

// Clear removes every signal file in dir. A missing dir is not an error.
func Clear(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read signals directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isSignal(name) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale signal %s: %w", name, err)
		}
	}
	return nil
}

func isSignal(name string) bool {
	return name == PauseFile || name == ResumeFile ||
		(strings.HasPrefix(name, CancelPrefix) && len(name) > len(CancelPrefix))
}

func write(dir, name string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create signals directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(time.Now().Format(time.RFC3339)), 0644); err != nil {
		return fmt.Errorf("write signal %s: %w", name, err)
	}
	return nil
}
