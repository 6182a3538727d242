package navigation

// Sink mirrors history transitions into the host's own navigation stack
// (browser history, terminal screen stack). Implementations must not call
// back into the History from these methods; calls are made outside the
// history lock but re-entrant mutation would interleave transitions.
type Sink interface {
	// Push records a forward or jump transition.
	Push(Entry)

	// Replace rewrites the host's current record after a back transition
	// landed on an earlier entry.
	Replace(Entry)

	// NativeBack is invoked when internal history is exhausted and the
	// host should perform its own back action (leave the survey).
	NativeBack()
}

// NopSink discards all transitions. Useful when the host has no
// navigation stack of its own.
type NopSink struct{}

func (NopSink) Push(Entry)    {}
func (NopSink) Replace(Entry) {}
func (NopSink) NativeBack()   {}
