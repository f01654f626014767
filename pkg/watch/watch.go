// Package watch segments audio files as they appear in a directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/realtime-ai/vadseg/pkg/logger"
	"github.com/realtime-ai/vadseg/pkg/runner"
)

// DefaultExtensions are the file types picked up when none are given.
var DefaultExtensions = []string{".wav", ".mp3", ".flac", ".ogg", ".opus", ".m4a", ".aac", ".webm"}

// Handler processes one settled file.
type Handler func(ctx context.Context, path string)

// Watcher calls a Handler for every matching file created or written in a
// directory, once the file has been quiet for the debounce period.
type Watcher struct {
	dir        string
	extensions []string
	debounce   time.Duration
	handle     Handler
	log        *logrus.Entry

	pending map[string]*time.Timer
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// New creates a Watcher for dir. Extensions are matched case-insensitively.
func New(dir string, extensions []string, debounce time.Duration, handle Handler) *Watcher {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make([]string, len(extensions))
	for i, e := range extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[i] = strings.ToLower(e)
	}
	return &Watcher{
		dir:        dir,
		extensions: exts,
		debounce:   debounce,
		handle:     handle,
		log:        logger.WithComponent("watch"),
		pending:    make(map[string]*time.Timer),
	}
}

// Run watches until ctx is done, then waits for running handlers.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("watch: create %s: %w", w.dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: create watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch: add %s: %w", w.dir, err)
	}
	w.log.Infof("watching %s", w.dir)

	defer w.wg.Wait()
	defer w.stopTimers()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Error("watch error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	path := event.Name
	if !w.isTarget(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok && timer.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.fire(ctx, path)
	})
	w.log.WithField("file", path).Debug("change detected")
}

func (w *Watcher) fire(ctx context.Context, path string) {
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	w.handle(ctx, path)
}

// stopTimers cancels debounce timers that have not fired.
func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		if timer.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

func (w *Watcher) isTarget(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return slices.Contains(w.extensions, strings.ToLower(filepath.Ext(path)))
}

// SidecarHandler segments each file with r and writes the JSON result
// next to it, or into outputDir when set.
func SidecarHandler(r *runner.Runner, outputDir string) Handler {
	log := logger.WithComponent("watch")
	return func(ctx context.Context, path string) {
		res, err := r.ProcessFile(ctx, path)
		if err != nil {
			log.WithError(err).WithField("file", path).Warn("segmentation failed")
			return
		}
		out := runner.SidecarPath(path, outputDir)
		if err := runner.WriteSidecar(out, res); err != nil {
			log.WithError(err).WithField("file", out).Error("write sidecar failed")
			return
		}
		log.WithFields(logrus.Fields{"file": path, "segments": len(res.Segments)}).Info("segmented")
	}
}
