// Package watchqueue coalesces raw filesystem notifications into ordered
// batches for a single consumer.
//
// The queue absorbs bursts of events, collapses rapid repeats for the same
// path into one delivery record, and hands batches to the registered
// consumer strictly one at a time: the consumer callback for batch N
// returns before batch N+1 begins.
package watchqueue

import (
	"log"
	"os"
	"sort"
	"sync"
	"time"
)

// EventType represents the kind of raw filesystem notification.
type EventType string

const (
	// EventChange indicates an existing file's content changed.
	EventChange EventType = "change"
	// EventAdd indicates a file appeared at the watched path.
	EventAdd EventType = "add"
	// EventUnlink indicates the file was deleted.
	EventUnlink EventType = "unlink"
	// EventError indicates the watcher reported an error for the path.
	EventError EventType = "error"
)

// FileStats carries optional filesystem metadata attached to an event.
type FileStats struct {
	Size        int64     `json:"size"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
	Accessed    time.Time `json:"accessed"`
	IsFile      bool      `json:"is_file"`
	IsDirectory bool      `json:"is_directory"`
}

// Event is a single queued (possibly coalesced) notification.
type Event struct {
	Path     string
	Type     EventType
	Stats    *FileStats
	Critical bool
	// Coalesced is the number of raw notifications this record represents.
	Coalesced  int
	EnqueuedAt time.Time

	seq uint64
}

// BatchFunc consumes one delivered batch. A non-nil error is logged; the
// batch is not retried (at-most-once delivery — reconciliation passes are
// idempotent, so a duplicate would be harmless and a retry is not worth
// the re-entrancy it invites).
type BatchFunc func(events []Event) error

// QueueStats describes what is queued and not yet delivered.
// Counts reflect raw enqueued events, including ones that were coalesced
// into a single delivery record.
type QueueStats struct {
	PendingEvents int
	EventsByType  map[EventType]int
}

// Config holds configuration for the queue.
type Config struct {
	// BatchDelay is how long the coalescing window stays open after the
	// first event of a batch. Rapid events inside the window are batched.
	BatchDelay time.Duration

	// Logger for queue activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchDelay: 100 * time.Millisecond,
		Logger:     log.New(os.Stderr, "[watchqueue] ", log.LstdFlags),
	}
}

// Queue coalesces and prioritizes filesystem events into serialized batches.
//
// The zero value is not usable; create with New and register a consumer
// with Initialize. All methods are safe for concurrent use.
type Queue struct {
	config *Config

	mu          sync.Mutex
	initialized bool
	onBatch     BatchFunc
	pending     map[string]*Event
	counts      map[EventType]int
	rawPending  int
	seq         uint64
	timer       *time.Timer

	// deliverMu serializes batch delivery: the consumer never observes
	// overlapping batches for the same queue instance.
	deliverMu sync.Mutex
}

// New creates a queue with the given configuration.
// A nil config uses DefaultConfig.
func New(config *Config) *Queue {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[watchqueue] ", log.LstdFlags)
	}
	if config.BatchDelay <= 0 {
		config.BatchDelay = 100 * time.Millisecond
	}
	return &Queue{config: config}
}

// Initialize registers the batch consumer and arms the queue.
// Calling Initialize on a shut-down queue makes it usable again.
func (q *Queue) Initialize(onBatch BatchFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.onBatch = onBatch
	q.pending = make(map[string]*Event)
	q.counts = make(map[EventType]int)
	q.rawPending = 0
	q.initialized = true
}

// Enqueue appends an event for path. Events for the same path arriving
// within one coalescing window are collapsed: the later event replaces the
// earlier one for delivery, keeping the earlier position in the batch and
// accumulating the raw count.
//
// Enqueue is a no-op before Initialize or after Shutdown.
func (q *Queue) Enqueue(path string, typ EventType, stats *FileStats, critical bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.initialized {
		return
	}

	q.counts[typ]++
	q.rawPending++

	if existing, ok := q.pending[path]; ok {
		existing.Type = typ
		existing.Stats = stats
		existing.Critical = existing.Critical || critical
		existing.Coalesced++
		return
	}

	q.seq++
	q.pending[path] = &Event{
		Path:       path,
		Type:       typ,
		Stats:      stats,
		Critical:   critical,
		Coalesced:  1,
		EnqueuedAt: time.Now(),
		seq:        q.seq,
	}

	// First event of a batch opens the window. Later events do not extend
	// it, so batches close in the order they were opened.
	if q.timer == nil {
		q.timer = time.AfterFunc(q.config.BatchDelay, q.windowClosed)
	}
}

// Stats returns counts of everything queued and not yet delivered.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	byType := make(map[EventType]int, len(q.counts))
	for typ, n := range q.counts {
		byType[typ] = n
	}
	return QueueStats{PendingEvents: q.rawPending, EventsByType: byType}
}

// Flush forces immediate delivery of everything queued, bypassing the
// delay timer. It blocks until the consumer has processed the batch.
// Used for deterministic tests and shutdown draining.
func (q *Queue) Flush() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.mu.Unlock()

	q.deliver()
}

// Shutdown cancels pending timers and clears all state. Queued events are
// dropped; callers wanting them delivered should Flush first. After
// Shutdown, Enqueue is a no-op until Initialize is called again.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.pending = nil
	q.counts = nil
	q.rawPending = 0
	q.initialized = false
}

// windowClosed runs when a coalescing window expires.
func (q *Queue) windowClosed() {
	q.mu.Lock()
	q.timer = nil
	q.mu.Unlock()

	q.deliver()
}

// deliver drains the pending table into one prioritized batch and hands it
// to the consumer. deliverMu guarantees batches never overlap.
func (q *Queue) deliver() {
	q.deliverMu.Lock()
	defer q.deliverMu.Unlock()

	q.mu.Lock()
	if !q.initialized || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}

	batch := make([]Event, 0, len(q.pending))
	for _, ev := range q.pending {
		batch = append(batch, *ev)
	}
	q.pending = make(map[string]*Event)
	q.counts = make(map[EventType]int)
	q.rawPending = 0
	onBatch := q.onBatch
	q.mu.Unlock()

	// Critical events first; ties preserve enqueue order.
	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].Critical != batch[j].Critical {
			return batch[i].Critical
		}
		return batch[i].seq < batch[j].seq
	})

	if err := onBatch(batch); err != nil {
		q.config.Logger.Printf("Batch consumer failed (%d events dropped): %v", len(batch), err)
	}
}
