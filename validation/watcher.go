package validation

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// schemaDebounce is how long the watcher waits for writes to settle before
// recompiling, matching the document watcher's default debounce window.
const schemaDebounce = 300 * time.Millisecond

// SchemaWatcher watches one intake's schema file and recompiles the engine
// in place whenever its content changes, so a long-running server picks up
// schema edits without a restart.
type SchemaWatcher struct {
	intakeID string
	path     string
	logger   *slog.Logger
	watcher  *fsnotify.Watcher

	mu     sync.RWMutex
	engine *Engine

	reloadFailures atomic.Int64
}

// NewSchemaWatcher compiles the schema at path once and begins watching it.
// Call Stop to release the underlying fsnotify watcher.
func NewSchemaWatcher(intakeID, path string, logger *slog.Logger) (*SchemaWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	engine, err := New(intakeID, data)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &SchemaWatcher{
		intakeID: intakeID,
		path:     path,
		logger:   logger,
		watcher:  fsw,
		engine:   engine,
	}
	return w, nil
}

// Start launches the debounced watch loop in a background goroutine and
// returns immediately; the loop exits once ctx is cancelled or Stop is
// called.
func (w *SchemaWatcher) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *SchemaWatcher) run(ctx context.Context) {
	var pending bool
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending = true
				timer.Reset(schemaDebounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("validation: schema watcher error", "intake_id", w.intakeID, "error", err)
		case <-timer.C:
			if pending {
				pending = false
				w.reload()
			}
		}
	}
}

func (w *SchemaWatcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		w.logger.Warn("validation: failed to read schema for reload", "intake_id", w.intakeID, "path", w.path, "error", err)
		w.reloadFailures.Add(1)
		return
	}

	engine, err := New(w.intakeID, data)
	if err != nil {
		w.logger.Error("validation: schema reload rejected, keeping prior engine", "intake_id", w.intakeID, "error", err)
		w.reloadFailures.Add(1)
		return
	}

	w.mu.Lock()
	w.engine = engine
	w.mu.Unlock()

	w.logger.Info("validation: schema reloaded", "intake_id", w.intakeID, "path", w.path)
}

// Engine returns the currently active, compiled engine.
func (w *SchemaWatcher) Engine() *Engine {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.engine
}

// Validate delegates to the currently active engine, so a SchemaWatcher
// satisfies runtime.Validator and reload takes effect on the very next call.
func (w *SchemaWatcher) Validate(data map[string]any) (*Result, error) {
	return w.Engine().Validate(data)
}

// ReloadFailures returns the count of reload attempts that failed, either
// because the schema file could not be read or because it did not compile.
func (w *SchemaWatcher) ReloadFailures() int64 {
	return w.reloadFailures.Load()
}

// Stop releases the underlying filesystem watch.
func (w *SchemaWatcher) Stop() error {
	return w.watcher.Close()
}
