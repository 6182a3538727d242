package editor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(label string) Snapshot {
	return Snapshot{Meta: map[string]interface{}{"label": label}}
}

func label(s Snapshot) string {
	v, _ := s.Meta["label"].(string)
	return v
}

func TestUndoManager_PushUndoRedo(t *testing.T) {
	m := NewUndoManager(snap("v0"))
	m.Push(snap("v1"))
	m.Push(snap("v2"))

	require.True(t, m.CanUndo())
	assert.False(t, m.CanRedo())

	s, ok := m.Undo()
	require.True(t, ok)
	assert.Equal(t, "v1", label(s))
	assert.True(t, m.CanRedo())

	s, ok = m.Undo()
	require.True(t, ok)
	assert.Equal(t, "v0", label(s))
	assert.False(t, m.CanUndo())

	_, ok = m.Undo()
	assert.False(t, ok)

	s, ok = m.Redo()
	require.True(t, ok)
	assert.Equal(t, "v1", label(s))
}

func TestUndoManager_PushTruncatesRedoTail(t *testing.T) {
	m := NewUndoManager(snap("v0"))
	m.Push(snap("v1"))
	m.Push(snap("v2"))

	_, ok := m.Undo()
	require.True(t, ok)
	m.Push(snap("v1b"))

	assert.False(t, m.CanRedo(), "a push after undo discards the redo tail")

	s, ok := m.Undo()
	require.True(t, ok)
	assert.Equal(t, "v1", label(s))
	s, ok = m.Redo()
	require.True(t, ok)
	assert.Equal(t, "v1b", label(s))
}

func TestUndoManager_EqualPushIsNoOp(t *testing.T) {
	m := NewUndoManager(snap("v0"))
	m.Push(snap("v0"))
	m.Push(snap("v0"))

	assert.Equal(t, 1, m.Len())
	assert.False(t, m.CanUndo())
}

func TestUndoManager_EvictsOldestBeyondBound(t *testing.T) {
	m := NewUndoManager(snap("v0"), WithMaxSnapshots(3))
	for i := 1; i <= 10; i++ {
		m.Push(snap(fmt.Sprintf("v%d", i)))
	}

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, "v10", label(m.Current()))

	// Walking back bottoms out at the oldest retained snapshot.
	s, ok := m.Undo()
	require.True(t, ok)
	assert.Equal(t, "v9", label(s))
	s, ok = m.Undo()
	require.True(t, ok)
	assert.Equal(t, "v8", label(s))
	_, ok = m.Undo()
	assert.False(t, ok)
}

func TestUndoManager_BatchRecordsOneEntry(t *testing.T) {
	m := NewUndoManager(snap("v0"))

	m.Begin()
	m.Push(snap("step1"))
	m.Push(snap("step2"))
	m.Push(snap("step3"))
	m.Commit()

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "step3", label(m.Current()))

	s, ok := m.Undo()
	require.True(t, ok)
	assert.Equal(t, "v0", label(s), "undo jumps over the whole batch")
}

func TestUndoManager_BatchWithNoNetChangeRecordsNothing(t *testing.T) {
	m := NewUndoManager(snap("v0"))

	m.Begin()
	m.Push(snap("transient"))
	m.Push(snap("v0"))
	m.Commit()

	assert.Equal(t, 1, m.Len())
	assert.False(t, m.CanUndo())
}

func TestUndoManager_NestedBeginJoins(t *testing.T) {
	m := NewUndoManager(snap("v0"))

	m.Begin()
	m.Push(snap("outer"))
	m.Begin()
	m.Push(snap("inner"))
	m.Commit()

	// Still inside the outer batch; nothing recorded yet.
	assert.Equal(t, 1, m.Len())
	assert.False(t, m.CanUndo())

	m.Commit()
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "inner", label(m.Current()))
}

func TestUndoManager_CommitWithoutBeginIsNoOp(t *testing.T) {
	m := NewUndoManager(snap("v0"))
	m.Commit()
	assert.Equal(t, 1, m.Len())
}

func TestUndoManager_UndoBlockedDuringBatch(t *testing.T) {
	m := NewUndoManager(snap("v0"))
	m.Push(snap("v1"))

	m.Begin()
	_, ok := m.Undo()
	assert.False(t, ok)
	assert.False(t, m.CanUndo())
	m.Commit()

	_, ok = m.Undo()
	assert.True(t, ok)
}

func TestUndoManager_DebouncedCoalescesBurst(t *testing.T) {
	m := NewUndoManager(snap("v0"), WithDebounce(30*time.Millisecond))

	// A typing burst: only the last keystroke's state should commit.
	for i := 1; i <= 5; i++ {
		m.PushDebounced("title", snap(fmt.Sprintf("t%d", i)))
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "t5", label(m.Current()))
}

func TestUndoManager_DebouncedStreamsAreIndependent(t *testing.T) {
	m := NewUndoManager(snap("v0"), WithDebounce(20*time.Millisecond))

	m.PushDebounced("title", snap("title-edit"))
	m.PushDebounced("position", snap("drag-end"))
	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, 3, m.Len())
}

func TestUndoManager_FlushCommitsPendingImmediately(t *testing.T) {
	m := NewUndoManager(snap("v0"), WithDebounce(10*time.Second))

	m.PushDebounced("title", snap("pending"))
	assert.Equal(t, 1, m.Len())

	m.Flush()
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "pending", label(m.Current()))

	// Flush with nothing pending is a no-op.
	m.Flush()
	assert.Equal(t, 2, m.Len())
}

func TestUndoManager_ConcurrentPushes(t *testing.T) {
	m := NewUndoManager(snap("v0"), WithMaxSnapshots(50))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				m.Push(snap(fmt.Sprintf("g%d-%d", id, j)))
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, m.Len(), 50)
	assert.True(t, m.CanUndo())
}

type recordingUndoObserver struct {
	mu  sync.Mutex
	ops []string
}

func (o *recordingUndoObserver) UndoOperation(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
}

func TestUndoManager_ObserverSeesOperations(t *testing.T) {
	obs := &recordingUndoObserver{}
	m := NewUndoManager(snap("v0"), WithUndoObserver(obs))

	m.Push(snap("v1"))
	m.Undo()
	m.Redo()

	assert.Equal(t, []string{"push", "undo", "redo"}, obs.ops)
}
