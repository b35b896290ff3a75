package session

// DefaultHistoryLimit caps each history stack.
const DefaultHistoryLimit = 50

// History is a bounded undo/redo pair of snapshot stacks. When a stack is
// full the oldest snapshot is dropped.
type History struct {
	past   []Snapshot
	future []Snapshot
	limit  int
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Push records current as the latest past session and clears the future.
func (h *History) Push(current Snapshot) {
	h.past = pushBounded(h.past, current.Clone(), h.limit)
	h.future = nil
}

// Back swaps current for the most recent past session.
func (h *History) Back(current Snapshot) (Snapshot, bool) {
	if len(h.past) == 0 {
		return Snapshot{}, false
	}
	prev := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	h.future = pushBounded(h.future, current.Clone(), h.limit)
	return prev.Clone(), true
}

// Forward swaps current for the most recently left future session.
func (h *History) Forward(current Snapshot) (Snapshot, bool) {
	if len(h.future) == 0 {
		return Snapshot{}, false
	}
	next := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = pushBounded(h.past, current.Clone(), h.limit)
	return next.Clone(), true
}

func (h *History) Depths() (past, future int) {
	return len(h.past), len(h.future)
}

func pushBounded(stack []Snapshot, s Snapshot, limit int) []Snapshot {
	stack = append(stack, s)
	if over := len(stack) - limit; over > 0 {
		stack = append([]Snapshot(nil), stack[over:]...)
	}
	return stack
}
