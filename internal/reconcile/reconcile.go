// Package reconcile wires the watch queue, change detector, diff builder
// and conflict handler into the reconciliation pipeline exposed to the
// host editor.
//
// Per file-change cycle the pipeline moves Idle -> Batched -> Detected ->
// Diffed -> Conflicted -> Resolved -> Idle, short-circuiting back to Idle
// at Detected when the on-disk document did not materially change.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"pagewatch/internal/conflict"
	"pagewatch/internal/detect"
	"pagewatch/internal/diff"
	"pagewatch/internal/document"
	"pagewatch/internal/notify"
	"pagewatch/internal/store"
	"pagewatch/internal/watcher"
	"pagewatch/internal/watchqueue"
)

// Notifier receives reconciliation events for fan-out to the host UI.
// *notify.Server implements it; a nil Notifier disables notifications.
type Notifier interface {
	BroadcastEvent(typ notify.MessageType, path string, data any)
}

// UnsavedProvider supplies the editor's in-memory edit set for a document.
// The engine reads the edit set and returns a merged version; it never
// owns the edit set's lifecycle.
type UnsavedProvider interface {
	UnsavedChanges(path string) conflict.UnsavedChanges
}

// NoEdits is an UnsavedProvider for hosts with no in-memory edits (the CLI).
type NoEdits struct{}

// UnsavedChanges implements UnsavedProvider.
func (NoEdits) UnsavedChanges(string) conflict.UnsavedChanges { return conflict.UnsavedChanges{} }

// Config holds configuration for the Reconciler.
type Config struct {
	// Store persists pending changes, snapshots and settings. Required.
	Store *store.DB

	// WatchPaths are the document files to watch when Run is used.
	WatchPaths []string

	// ActivePath is the currently open document; an unlink for it is
	// delivered ahead of everything else in its batch.
	ActivePath string

	// Capture produces snapshots; defaults to document.Capture.
	Capture document.CaptureFunc

	// BatchDelay is the watch queue coalescing window.
	BatchDelay time.Duration

	// Notifier broadcasts pipeline events; nil disables broadcasting.
	Notifier Notifier

	// Logger for reconciler activity
	Logger *log.Logger
}

// Result is the outcome of one reconciliation pass for one event.
// Summary, Diff, Conflicts and Resolution are nil/empty for passes that
// short-circuited (error events, first sighting, no material change).
type Result struct {
	Change     store.ExternalChange  `json:"change"`
	Summary    *detect.ChangeSummary `json:"summary,omitempty"`
	Diff       *diff.DocumentDiff    `json:"diff,omitempty"`
	Conflicts  []conflict.Conflict   `json:"conflicts,omitempty"`
	Strategy   conflict.Strategy     `json:"strategy,omitempty"`
	Resolution *conflict.Resolution  `json:"resolution,omitempty"`
}

// Reconciler owns one watch queue instance and drives the pipeline.
// There is no process-wide singleton: lifecycle is bound to the
// coordinator via Run or explicit HandleFileChange calls.
type Reconciler struct {
	config *Config
	db     *store.DB
	queue  *watchqueue.Queue
	logger *log.Logger

	mu       sync.Mutex
	settings store.Settings
	provider UnsavedProvider
}

// New creates a Reconciler. Settings are loaded from the store; a store
// with no saved settings yields defaults.
func New(config *Config) (*Reconciler, error) {
	if config == nil || config.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if config.Capture == nil {
		config.Capture = document.Capture
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[reconcile] ", log.LstdFlags)
	}
	if config.BatchDelay <= 0 {
		config.BatchDelay = 100 * time.Millisecond
	}

	settings, err := config.Store.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	r := &Reconciler{
		config:   config,
		db:       config.Store,
		logger:   config.Logger,
		settings: settings,
		provider: NoEdits{},
	}

	r.queue = watchqueue.New(&watchqueue.Config{
		BatchDelay: config.BatchDelay,
		Logger:     log.New(config.Logger.Writer(), "[watchqueue] ", log.LstdFlags),
	})
	r.queue.Initialize(r.processBatch)

	return r, nil
}

// SetUnsavedProvider registers the host editor's edit set source.
func (r *Reconciler) SetUnsavedProvider(p UnsavedProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil {
		p = NoEdits{}
	}
	r.provider = p
}

// Queue exposes the underlying watch queue (stats, flush) to the host.
func (r *Reconciler) Queue() *watchqueue.Queue {
	return r.queue
}

// Enqueue feeds one raw watcher event into the queue, computing its
// priority: deletion of the active document jumps the batch.
func (r *Reconciler) Enqueue(ev watcher.Event) {
	critical := ev.Type == watchqueue.EventUnlink && ev.Path == r.config.ActivePath
	r.queue.Enqueue(ev.Path, ev.Type, ev.Stats, critical)
}

// Run starts an OS watcher over Config.WatchPaths and drives the pipeline
// until ctx is cancelled. It blocks.
func (r *Reconciler) Run(ctx context.Context) error {
	if len(r.config.WatchPaths) == 0 {
		return fmt.Errorf("no watch paths configured")
	}

	w, err := watcher.New()
	if err != nil {
		return err
	}
	if err := w.Start(r.config.WatchPaths); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	r.logger.Printf("Watching %d document(s)", len(r.config.WatchPaths))

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Shutdown signal received")
			if err := w.Stop(); err != nil {
				r.logger.Printf("Error stopping watcher: %v", err)
			}
			r.queue.Flush()
			r.queue.Shutdown()
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				r.queue.Flush()
				r.queue.Shutdown()
				return nil
			}
			r.Enqueue(ev)
		}
	}
}

// processBatch is the watch queue consumer: one reconciliation pass per
// delivered record. Per-event failures are logged and do not abort the
// rest of the batch.
func (r *Reconciler) processBatch(events []watchqueue.Event) error {
	var firstErr error
	for _, qe := range events {
		ev := watcher.Event{Path: qe.Path, Type: qe.Type, Stats: qe.Stats}
		if _, err := r.HandleFileChange(ev); err != nil {
			r.logger.Printf("Reconciliation failed for %s: %v", qe.Path, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// HandleFileChange records an external change and runs the reconciliation
// pipeline for one event.
func (r *Reconciler) HandleFileChange(ev watcher.Event) (*Result, error) {
	change := store.ExternalChange{
		ID:        uuid.New().String(),
		Path:      ev.Path,
		Type:      string(ev.Type),
		Timestamp: time.Now(),
	}
	if err := r.db.RecordChange(change); err != nil {
		return nil, err
	}
	result := &Result{Change: change}

	r.broadcast(notify.MessageExternalChange, ev.Path, change)

	// Watcher errors are surfaced, never acted on.
	if ev.Type == watchqueue.EventError {
		r.logger.Printf("Watcher error event: %s", ev.Path)
		return result, nil
	}

	oldSnap, err := r.db.LoadSnapshot(ev.Path)
	if errors.Is(err, store.ErrNotFound) {
		return result, r.captureBaseline(ev)
	}
	if err != nil {
		return nil, err
	}

	newSnap, summary, err := r.observe(ev, oldSnap)
	if err != nil {
		return nil, err
	}
	result.Summary = summary

	if !summary.HasChanges {
		// False touch: the file was re-saved with identical structure.
		r.logger.Printf("No material change in %s", ev.Path)
		if err := r.db.SaveSnapshot(ev.Path, newSnap); err != nil {
			return nil, err
		}
		return result, nil
	}

	r.logger.Printf("Detected %d change(s) in %s (major=%d moderate=%d minor=%d)",
		summary.TotalChanges, ev.Path, summary.MajorChanges, summary.ModerateChanges, summary.MinorChanges)
	r.broadcast(notify.MessageChangeSummary, ev.Path, summary)

	d, err := diff.Build(oldSnap, newSnap, summary)
	if err != nil {
		return nil, fmt.Errorf("failed to build diff: %w", err)
	}
	result.Diff = d

	r.mu.Lock()
	provider := r.provider
	settings := r.settings
	r.mu.Unlock()

	unsaved := provider.UnsavedChanges(ev.Path)
	conflicts := conflict.DetectConflicts(unsaved, summary, d)
	result.Conflicts = conflicts

	if len(conflicts) > 0 {
		r.logger.Printf("Detected %d conflict(s) with unsaved edits in %s", len(conflicts), ev.Path)
		r.broadcast(notify.MessageConflicts, ev.Path, conflicts)
	}

	if settings.AutoReload {
		strategy := conflict.Strategy(settings.DefaultStrategy)
		resolved := conflict.AutoResolveConflicts(conflicts, strategy)
		res, err := conflict.ApplyResolutions(unsaved, resolved, strategy)
		if err != nil {
			return nil, fmt.Errorf("auto-resolution failed: %w", err)
		}
		result.Conflicts = resolved
		result.Strategy = strategy
		result.Resolution = &res
	}

	if ev.Type == watchqueue.EventUnlink {
		if err := r.db.DeleteSnapshot(ev.Path); err != nil {
			return nil, err
		}
	} else if err := r.db.SaveSnapshot(ev.Path, newSnap); err != nil {
		return nil, err
	}

	r.broadcast(notify.MessageReconciled, ev.Path, result)
	return result, nil
}

// captureBaseline takes the first snapshot of a document we have never
// seen; there is nothing to diff against yet.
func (r *Reconciler) captureBaseline(ev watcher.Event) error {
	if ev.Type == watchqueue.EventUnlink {
		return nil
	}
	snap, err := r.config.Capture(ev.Path)
	if err != nil {
		r.logger.Printf("Could not capture baseline for %s: %v", ev.Path, err)
		return nil
	}
	r.logger.Printf("Captured baseline snapshot for %s (%d pages)", ev.Path, snap.PageCount)
	return r.db.SaveSnapshot(ev.Path, snap)
}

// observe produces the new snapshot and the change summary for an event.
// A deleted or unreadable document yields the maximal change: every known
// page reported removed, full reload forced.
func (r *Reconciler) observe(ev watcher.Event, oldSnap *document.Snapshot) (*document.Snapshot, *detect.ChangeSummary, error) {
	if ev.Type == watchqueue.EventUnlink {
		return emptySnapshot(), detect.MaximalChange(oldSnap), nil
	}

	newSnap, err := r.config.Capture(ev.Path)
	if err != nil {
		r.logger.Printf("Could not determine what changed in %s (%v); recommending full reload", ev.Path, err)
		return emptySnapshot(), detect.MaximalChange(oldSnap), nil
	}

	summary, err := detect.DetectChanges(oldSnap, newSnap)
	if err != nil {
		return nil, nil, err
	}
	return newSnap, summary, nil
}

func emptySnapshot() *document.Snapshot {
	return &document.Snapshot{
		PageHashes:       []string{},
		PageRotations:    []int{},
		PageSizes:        []document.PageSize{},
		AnnotationCounts: []int{},
		CreatedAt:        time.Now(),
	}
}

// GetPendingChanges returns non-dismissed changes, most recent per path.
func (r *Reconciler) GetPendingChanges() ([]store.ExternalChange, error) {
	return r.db.PendingChanges()
}

// DismissChange marks one pending change dismissed. Queued events are not
// affected.
func (r *Reconciler) DismissChange(id string) error {
	return r.db.DismissChange(id)
}

// Settings returns the current reconciliation settings.
func (r *Reconciler) Settings() store.Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.settings
}

// UpdateSettings persists and applies new settings.
func (r *Reconciler) UpdateSettings(s store.Settings) error {
	if s.AutoReload {
		switch conflict.Strategy(s.DefaultStrategy) {
		case conflict.StrategyKeepLocal, conflict.StrategyKeepExternal,
			conflict.StrategyMergePreferLocal, conflict.StrategyMergePreferExternal:
		default:
			return fmt.Errorf("%w: %q", conflict.ErrUnknownStrategy, s.DefaultStrategy)
		}
	}
	if err := r.db.SaveSettings(s); err != nil {
		return err
	}
	r.mu.Lock()
	r.settings = s
	r.mu.Unlock()
	return nil
}

// broadcast sends an event to the notifier when notifications are enabled.
func (r *Reconciler) broadcast(typ notify.MessageType, path string, data any) {
	r.mu.Lock()
	show := r.settings.ShowNotifications
	r.mu.Unlock()

	if r.config.Notifier == nil || !show {
		return
	}
	r.config.Notifier.BroadcastEvent(typ, path, data)
}
