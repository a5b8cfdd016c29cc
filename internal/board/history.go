package board

const DefaultHistoryLimit = 100

// History holds bounded undo and redo stacks of board snapshots. It is a
// value: every operation returns a new History and never mutates the
// receiver's stacks.
type History struct {
	undo  []Snapshot
	redo  []Snapshot
	limit int
}

func NewHistory(limit int) History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return History{limit: limit}
}

func (h History) CanUndo() bool { return len(h.undo) > 0 }
func (h History) CanRedo() bool { return len(h.redo) > 0 }

// Depth returns the sizes of the undo and redo stacks.
func (h History) Depth() (undo, redo int) { return len(h.undo), len(h.redo) }

// Push records current ahead of a new mutation and clears redo.
func (h History) Push(current Snapshot) History {
	return History{
		undo:  pushBounded(h.undo, current.Clone(), h.bound()),
		limit: h.limit,
	}
}

// Undo pops the latest snapshot and files current under redo. ok is false
// when there is nothing to undo.
func (h History) Undo(current Snapshot) (next History, restored Snapshot, ok bool) {
	if len(h.undo) == 0 {
		return h, nil, false
	}
	top := h.undo[len(h.undo)-1]
	next = History{
		undo:  h.undo[:len(h.undo)-1:len(h.undo)-1],
		redo:  pushBounded(h.redo, current.Clone(), h.bound()),
		limit: h.limit,
	}
	return next, top.Clone(), true
}

// Redo is the mirror of Undo.
func (h History) Redo(current Snapshot) (next History, restored Snapshot, ok bool) {
	if len(h.redo) == 0 {
		return h, nil, false
	}
	top := h.redo[len(h.redo)-1]
	next = History{
		undo:  pushBounded(h.undo, current.Clone(), h.bound()),
		redo:  h.redo[:len(h.redo)-1 : len(h.redo)-1],
		limit: h.limit,
	}
	return next, top.Clone(), true
}

func (h History) bound() int {
	if h.limit <= 0 {
		return DefaultHistoryLimit
	}
	return h.limit
}

// pushBounded appends onto a fresh slice, dropping the oldest entries past limit.
func pushBounded(stack []Snapshot, s Snapshot, limit int) []Snapshot {
	start := 0
	if len(stack)+1 > limit {
		start = len(stack) + 1 - limit
	}
	out := make([]Snapshot, 0, len(stack)-start+1)
	out = append(out, stack[start:]...)
	return append(out, s)
}
