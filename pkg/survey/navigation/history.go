package navigation

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/formwalk/formwalk/pkg/survey"
	"github.com/formwalk/formwalk/pkg/survey/condition"
	"github.com/formwalk/formwalk/pkg/survey/graph"
)

// Trigger records why a history entry was created.
type Trigger string

const (
	TriggerInitial Trigger = "initial"
	TriggerForward Trigger = "forward"
	TriggerBack    Trigger = "back"
	TriggerJump    Trigger = "jump"
)

// Entry is one visited (page, block) pair. Entries reference UUIDs, not
// indexes: the graph can be rebuilt with different index assignments
// between two visits to the same logical entry, and stale references are
// re-resolved against the current build, never trusted.
type Entry struct {
	PageUUID  string    `json:"page_uuid"`
	BlockUUID string    `json:"block_uuid,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Trigger   Trigger   `json:"trigger"`
}

// DefaultMaxEntries bounds the history log; the oldest entries are
// evicted beyond it.
const DefaultMaxEntries = 200

// defaultGuardReset is how long the external-back re-entrancy guard stays
// set after a transition, letting synchronously triggered secondary sink
// events settle.
const defaultGuardReset = 50 * time.Millisecond

// SkipFunc reports whether back-navigation should bypass a block. The
// host supplies block-type-specific predicates (an auth block that is
// already authenticated, for example); the default honors the authored
// skip_on_back flag only.
type SkipFunc func(*survey.Block) bool

// HistoryObserver receives transition telemetry.
type HistoryObserver interface {
	HistoryTransition(trigger string)
}

// History is the navigation history state machine: an append-only log of
// UUID-keyed entries, logically positioned at the tail. The only removal
// is a back transition trimming its own tail (plus entries it skips), and
// oldest-entry eviction at the size bound.
//
// Safe for concurrent reads; there is one logical writer at a time, and
// derived queries read a consistent snapshot.
type History struct {
	mu      sync.Mutex
	entries []Entry
	graph   *graph.Graph
	eval    *condition.Evaluator

	skip     SkipFunc
	sink     Sink
	max      int
	logger   *slog.Logger
	observer HistoryObserver

	// guard suppresses re-entrant external-back handling while an
	// internally issued sink mutation settles.
	guard      atomic.Bool
	guardReset time.Duration

	now func() time.Time
}

// HistoryOption configures a History.
type HistoryOption func(*History)

// WithSkipFunc installs the back-skip predicate.
func WithSkipFunc(fn SkipFunc) HistoryOption {
	return func(h *History) { h.skip = fn }
}

// WithSink attaches a host history sink (browser history, terminal shim).
func WithSink(s Sink) HistoryOption {
	return func(h *History) { h.sink = s }
}

// WithMaxEntries overrides the history bound.
func WithMaxEntries(n int) HistoryOption {
	return func(h *History) {
		if n > 0 {
			h.max = n
		}
	}
}

// WithHistoryLogger attaches a logger for transition debugging.
func WithHistoryLogger(logger *slog.Logger) HistoryOption {
	return func(h *History) { h.logger = logger }
}

// WithHistoryObserver attaches a transition observer.
func WithHistoryObserver(o HistoryObserver) HistoryOption {
	return func(h *History) { h.observer = o }
}

// WithEvaluator shares a condition evaluator for visibility queries.
func WithEvaluator(eval *condition.Evaluator) HistoryOption {
	return func(h *History) { h.eval = eval }
}

// WithGuardReset overrides the re-entrancy guard reset delay.
// Mainly useful in tests.
func WithGuardReset(d time.Duration) HistoryOption {
	return func(h *History) {
		if d > 0 {
			h.guardReset = d
		}
	}
}

// WithClock overrides the timestamp source. Mainly useful in tests.
func WithClock(now func() time.Time) HistoryOption {
	return func(h *History) { h.now = now }
}

// NewHistory creates a history seeded with a single initial entry at
// page 0 of the given graph.
func NewHistory(g *graph.Graph, opts ...HistoryOption) *History {
	h := newHistory(g, opts...)
	h.entries = append(h.entries, h.entryAt(graph.Position{Page: 0, Block: 0}, TriggerInitial))
	return h
}

// ResumeHistory restores a history from serialized entries for a session
// resuming at resumePage. A restored log that is empty, that references
// nothing in the current build, or that does not end on the resume page
// is not rejected: a straight-line history [page0, page1, ..., resumePage]
// is synthesized instead, so back-navigation has a full path to walk even
// though the respondent jumped straight to the resume page.
func ResumeHistory(g *graph.Graph, entries []Entry, resumePage int, opts ...HistoryOption) *History {
	h := newHistory(g, opts...)

	if resumePage < 0 {
		resumePage = 0
	}
	if resumePage >= len(h.graph.Pages) {
		resumePage = len(h.graph.Pages) - 1
	}

	if h.restorable(entries, resumePage) {
		h.entries = append(h.entries, entries...)
		h.trim()
		return h
	}

	for p := 0; p <= resumePage; p++ {
		trigger := TriggerForward
		if p == 0 {
			trigger = TriggerInitial
		}
		h.entries = append(h.entries, h.entryAt(graph.Position{Page: p, Block: 0}, trigger))
	}
	h.trim()
	return h
}

func newHistory(g *graph.Graph, opts ...HistoryOption) *History {
	if g == nil {
		g = graph.BuildMode(nil, survey.ModePaged)
	}
	h := &History{
		graph:      g,
		max:        DefaultMaxEntries,
		guardReset: defaultGuardReset,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.eval == nil {
		h.eval = condition.New()
	}
	if h.skip == nil {
		h.skip = func(b *survey.Block) bool { return b.SkipOnBack }
	}
	return h
}

// restorable reports whether serialized entries can be used as-is: the
// log must be non-empty and its tail must resolve to the resume page in
// the current build.
func (h *History) restorable(entries []Entry, resumePage int) bool {
	if len(entries) == 0 {
		return false
	}
	tail := entries[len(entries)-1]
	pos, ok := h.graph.Resolve(tail.PageUUID, tail.BlockUUID)
	return ok && pos.Page == resumePage
}

// SetGraph swaps in a freshly rebuilt graph. Entries are untouched; they
// re-resolve lazily against the new build.
func (h *History) SetGraph(g *graph.Graph) {
	if g == nil {
		return
	}
	h.mu.Lock()
	h.graph = g
	h.mu.Unlock()
}

// Forward records a forward transition to the given position.
func (h *History) Forward(pos graph.Position) {
	h.push(pos, TriggerForward)
}

// Jump records a non-sequential transition (rule-driven branch, editor
// preview jump) to the given position.
func (h *History) Jump(pos graph.Position) {
	h.push(pos, TriggerJump)
}

func (h *History) push(pos graph.Position, trigger Trigger) {
	h.mu.Lock()
	entry := h.entryAt(pos, trigger)

	// No-op dedup: don't stack repeat visits to the same (page, block).
	if n := len(h.entries); n > 0 {
		tail := h.entries[n-1]
		if tail.PageUUID == entry.PageUUID && tail.BlockUUID == entry.BlockUUID {
			h.mu.Unlock()
			return
		}
	}

	h.entries = append(h.entries, entry)
	h.trim()
	sink := h.sink
	h.mu.Unlock()

	h.observe(trigger)
	if sink != nil {
		sink.Push(entry)
	}
}

// Back pops the current tail and lands on the most recent earlier entry
// that still resolves in the current graph and is not skip-on-back. The
// bool result is false when internal history is exhausted (nothing left
// to land on); the sink is then asked to perform a native back instead,
// and the log is left untouched.
func (h *History) Back() (graph.Position, bool) {
	h.mu.Lock()

	if len(h.entries) <= 1 {
		sink := h.sink
		h.mu.Unlock()
		if sink != nil {
			sink.NativeBack()
		}
		return graph.Position{}, false
	}

	// Scan backward from just below the tail for a landable entry.
	// Stale entries (uuids gone from the current build) and skip-on-back
	// blocks are bypassed.
	landing := -1
	var landingPos graph.Position
	for i := len(h.entries) - 2; i >= 0; i-- {
		pos, ok := h.graph.Resolve(h.entries[i].PageUUID, h.entries[i].BlockUUID)
		if !ok {
			continue
		}
		if block := h.graph.BlockAt(pos); block != nil && h.skip(block) {
			continue
		}
		landing = i
		landingPos = pos
		break
	}

	if landing < 0 {
		// Everything below the tail is skippable or stale; defer to the
		// host's native back without mutating the log.
		sink := h.sink
		h.mu.Unlock()
		if sink != nil {
			sink.NativeBack()
		}
		return graph.Position{}, false
	}

	h.entries = h.entries[:landing+1]
	entry := h.entries[landing]
	sink := h.sink
	h.mu.Unlock()

	h.observe(TriggerBack)
	if sink != nil {
		// Replace, not push: the host record for the popped step is
		// rewritten to the landing step.
		sink.Replace(entry)
	}
	return landingPos, true
}

// HandleExternalBack translates a host "went back" signal into an
// internal Back transition. The re-entrancy guard is set for the duration
// of the transition plus a short deferred reset, so the sink mutation
// Back issues does not re-trigger this handler.
func (h *History) HandleExternalBack() (graph.Position, bool) {
	if !h.guard.CompareAndSwap(false, true) {
		return graph.Position{}, false
	}
	defer time.AfterFunc(h.guardReset, func() { h.guard.Store(false) })

	return h.Back()
}

// CanGoBack reports whether an internal back transition is possible.
func (h *History) CanGoBack() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries) > 1
}

// Len returns the current number of history entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Current resolves the tail entry against the current graph.
func (h *History) Current() (graph.Position, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentLocked()
}

func (h *History) currentLocked() (graph.Position, bool) {
	if len(h.entries) == 0 {
		return graph.Position{}, false
	}
	tail := h.entries[len(h.entries)-1]
	return h.graph.Resolve(tail.PageUUID, tail.BlockUUID)
}

// TotalVisibleSteps counts blocks across all pages whose visibility
// condition evaluates true against the value context.
func (h *History) TotalVisibleSteps(ctx map[string]interface{}) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.totalVisibleLocked(ctx)
}

func (h *History) totalVisibleLocked(ctx map[string]interface{}) int {
	total := 0
	for _, page := range h.graph.Pages {
		for _, b := range page.Blocks {
			if h.eval.Evaluate(b.VisibleIf, ctx) {
				total++
			}
		}
	}
	return total
}

// CurrentStepPosition returns the flattened 0-based index of the active
// block among all visible steps up to and including the current page.
func (h *History) CurrentStepPosition(ctx map[string]interface{}) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentStepLocked(ctx)
}

func (h *History) currentStepLocked(ctx map[string]interface{}) int {
	pos, ok := h.currentLocked()
	if !ok {
		return 0
	}
	step := 0
	for p := 0; p < pos.Page && p < len(h.graph.Pages); p++ {
		for _, b := range h.graph.Pages[p].Blocks {
			if h.eval.Evaluate(b.VisibleIf, ctx) {
				step++
			}
		}
	}
	if pos.Page < len(h.graph.Pages) {
		blocks := h.graph.Pages[pos.Page].Blocks
		for i := 0; i < pos.Block && i < len(blocks); i++ {
			if h.eval.Evaluate(blocks[i].VisibleIf, ctx) {
				step++
			}
		}
	}
	return step
}

// ProgressPercent derives completion progress from the current step and
// the visible step total, capped at 100.
func (h *History) ProgressPercent(ctx map[string]interface{}) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := h.totalVisibleLocked(ctx)
	if total == 0 {
		return 0
	}
	pct := 100 * float64(h.currentStepLocked(ctx)+1) / float64(total)
	if pct > 100 {
		return 100
	}
	return pct
}

// Serialize returns a copy of the history log for persistence.
func (h *History) Serialize() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// entryAt builds an entry for a position in the current graph. Positions
// outside the graph produce an entry with empty uuids, which later
// resolves to nothing and is skipped by Back.
func (h *History) entryAt(pos graph.Position, trigger Trigger) Entry {
	entry := Entry{Timestamp: h.now(), Trigger: trigger}
	if pos.Page >= 0 && pos.Page < len(h.graph.Pages) {
		page := h.graph.Pages[pos.Page]
		entry.PageUUID = page.UUID
		if pos.Block >= 0 && pos.Block < len(page.Blocks) {
			entry.BlockUUID = page.Blocks[pos.Block].UUID
		}
	}
	return entry
}

// trim evicts oldest entries beyond the bound. Caller holds the lock.
func (h *History) trim() {
	if over := len(h.entries) - h.max; over > 0 {
		h.entries = append(h.entries[:0:0], h.entries[over:]...)
	}
}

func (h *History) observe(trigger Trigger) {
	if h.observer != nil {
		h.observer.HistoryTransition(string(trigger))
	}
	if h.logger != nil {
		h.logger.Debug("history transition", "trigger", string(trigger))
	}
}
