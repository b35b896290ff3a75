package session

// epoch tracks the live session generation and its in-flight bookkeeping.
// A reply is applied only if it carries the current generation.
type epoch struct {
	generation uint64
	pending    int
	successes  int
}

// advance starts a new generation; every outstanding dispatch becomes inert.
func (e *epoch) advance() uint64 {
	e.generation++
	e.pending = 0
	e.successes = 0
	return e.generation
}

func (e *epoch) isCurrent(gen uint64) bool {
	return gen == e.generation
}

func (e *epoch) settle() {
	if e.pending > 0 {
		e.pending--
	}
}
