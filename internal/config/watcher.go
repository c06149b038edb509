package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"binsleuth/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches .sleuth/config.yaml for changes and reloads the logging
// configuration at runtime. Engine-level settings are read once per session
// and are deliberately not hot-reloaded.
type Watcher struct {
	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	configDir string
	lastEvent time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
}

// NewWatcher creates a config watcher for the given workspace.
func NewWatcher(workspaceDir string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:   fw,
		configDir: filepath.Join(workspaceDir, ".sleuth"),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the watcher runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.configDir); err != nil {
		// Directory may not exist yet; reload simply never fires.
		logging.BootDebug("config watcher: initial watch failed: %v", err)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.BootError("config watcher: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, "config.yaml") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	// Editors fire bursts of writes on save; debounce them.
	w.mu.Lock()
	if time.Since(w.lastEvent) < 500*time.Millisecond {
		w.mu.Unlock()
		return
	}
	w.lastEvent = time.Now()
	w.mu.Unlock()

	if err := logging.ReloadConfig(); err != nil {
		logging.BootError("config watcher: reload failed: %v", err)
		return
	}
	logging.Boot("config watcher: logging config reloaded")
}
