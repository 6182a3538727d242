// Package editor provides builder-side state management: a bounded
// undo/redo log of full canvas snapshots with batching and debounced
// coalescing for high-frequency edits (typing, dragging).
package editor

import (
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// XY is a canvas coordinate.
type XY struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport is the visible canvas region.
type Viewport struct {
	XY
	Zoom float64 `json:"zoom"`
}

// Snapshot is one full builder state. Snapshots are compared by deep
// equality; pushing a snapshot equal to the current one is a no-op, so
// callers can snapshot unconditionally after every edit.
type Snapshot struct {
	Nodes     []interface{}          `json:"nodes"`
	Edges     []interface{}          `json:"edges"`
	Positions map[string]XY          `json:"positions,omitempty"`
	Viewport  Viewport               `json:"viewport"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

func (s Snapshot) equal(other Snapshot) bool {
	return reflect.DeepEqual(s, other)
}

// DefaultMaxSnapshots bounds the undo log; the oldest snapshots are
// evicted beyond it.
const DefaultMaxSnapshots = 100

// DefaultDebounce is the coalescing window for PushDebounced.
const DefaultDebounce = 300 * time.Millisecond

// UndoObserver receives undo telemetry.
type UndoObserver interface {
	UndoOperation(op string)
}

// UndoManager is a bounded snapshot log with a cursor. Entries above the
// cursor are the redo tail; any new push discards them. Safe for
// concurrent use; debounce timers fire on timer goroutines.
type UndoManager struct {
	mu      sync.Mutex
	log     []Snapshot
	cursor  int // index of the current snapshot in log
	max     int
	batch   *Snapshot // start state of an open batch, nil when closed
	nesting int

	debounce time.Duration
	pending  map[string]*pendingPush

	logger   *slog.Logger
	observer UndoObserver
}

type pendingPush struct {
	timer    *time.Timer
	snapshot Snapshot
}

// UndoOption configures an UndoManager.
type UndoOption func(*UndoManager)

// WithMaxSnapshots overrides the log bound.
func WithMaxSnapshots(n int) UndoOption {
	return func(m *UndoManager) {
		if n > 1 {
			m.max = n
		}
	}
}

// WithDebounce overrides the coalescing window.
func WithDebounce(d time.Duration) UndoOption {
	return func(m *UndoManager) {
		if d > 0 {
			m.debounce = d
		}
	}
}

// WithUndoLogger attaches a logger.
func WithUndoLogger(logger *slog.Logger) UndoOption {
	return func(m *UndoManager) { m.logger = logger }
}

// WithUndoObserver attaches an operation observer.
func WithUndoObserver(o UndoObserver) UndoOption {
	return func(m *UndoManager) { m.observer = o }
}

// NewUndoManager creates a manager seeded with the initial state.
func NewUndoManager(initial Snapshot, opts ...UndoOption) *UndoManager {
	m := &UndoManager{
		log:      []Snapshot{initial},
		max:      DefaultMaxSnapshots,
		debounce: DefaultDebounce,
		pending:  map[string]*pendingPush{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Push records a new state. The redo tail is discarded; a state equal to
// the current one is a no-op. During an open batch the push only updates
// the would-be batch result.
func (m *UndoManager) Push(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushLocked(s)
}

func (m *UndoManager) pushLocked(s Snapshot) {
	if m.batch != nil {
		// The batch commit decides whether anything gets recorded; until
		// then the log stays untouched and the latest state rides along.
		m.log[m.cursor] = s
		return
	}
	if s.equal(m.log[m.cursor]) {
		return
	}

	m.log = append(m.log[:m.cursor+1], s)
	m.cursor++

	if over := len(m.log) - m.max; over > 0 {
		m.log = append(m.log[:0:0], m.log[over:]...)
		m.cursor -= over
	}
	m.observe("push")
}

// Begin opens a batch: subsequent pushes coalesce into a single undo
// entry recorded at Commit. A Begin inside an open batch joins it.
func (m *UndoManager) Begin() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nesting++
	if m.batch != nil {
		return
	}
	start := m.log[m.cursor]
	m.batch = &start
}

// Commit closes the batch. One entry is recorded only when the end state
// differs from the state at Begin. Commit without Begin is a no-op.
func (m *UndoManager) Commit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.batch == nil {
		return
	}
	if m.nesting--; m.nesting > 0 {
		return
	}

	start := *m.batch
	end := m.log[m.cursor]
	m.batch = nil

	// Rewind to the start state, then push the end state through the
	// normal path so equality and redo truncation apply.
	m.log[m.cursor] = start
	m.pushLocked(end)
}

// Undo moves the cursor back one entry.
func (m *UndoManager) Undo() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == 0 || m.batch != nil {
		return Snapshot{}, false
	}
	m.cursor--
	m.observe("undo")
	return m.log[m.cursor], true
}

// Redo moves the cursor forward into the redo tail.
func (m *UndoManager) Redo() (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor >= len(m.log)-1 || m.batch != nil {
		return Snapshot{}, false
	}
	m.cursor++
	m.observe("redo")
	return m.log[m.cursor], true
}

// CanUndo reports whether Undo would succeed.
func (m *UndoManager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor > 0 && m.batch == nil
}

// CanRedo reports whether Redo would succeed.
func (m *UndoManager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor < len(m.log)-1 && m.batch == nil
}

// Current returns the snapshot at the cursor.
func (m *UndoManager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.log[m.cursor]
}

// Len returns the number of recorded snapshots.
func (m *UndoManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.log)
}

// PushDebounced schedules a push after the coalescing window, keyed by
// stream. Repeated calls within the window cancel and reschedule, so only
// the last snapshot of a burst commits. Distinct streams (one per edited
// node, say) debounce independently.
func (m *UndoManager) PushDebounced(streamKey string, s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pending[streamKey]; ok {
		p.timer.Stop()
		p.snapshot = s
		p.timer.Reset(m.debounce)
		return
	}

	p := &pendingPush{snapshot: s}
	p.timer = time.AfterFunc(m.debounce, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		cur, ok := m.pending[streamKey]
		if !ok || cur != p {
			return
		}
		delete(m.pending, streamKey)
		m.pushLocked(cur.snapshot)
	})
	m.pending[streamKey] = p
}

// Flush commits all pending debounced pushes immediately.
func (m *UndoManager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, p := range m.pending {
		p.timer.Stop()
		delete(m.pending, key)
		m.pushLocked(p.snapshot)
	}
}

func (m *UndoManager) observe(op string) {
	if m.observer != nil {
		m.observer.UndoOperation(op)
	}
	if m.logger != nil {
		m.logger.Debug("undo operation", "op", op)
	}
}
