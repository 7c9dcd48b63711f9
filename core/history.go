package orchestration

import (
	"sync"

	"github.com/levial/levial/core/llms"
)

// History is the ordered conversation so far, capped to the most recent
// turns. Older turns are dropped, never summarized.
type History struct {
	turns    []llms.Turn
	maxTurns int

	mu sync.Mutex
}

// NewHistory keeps at most maxTurns turns. A cap below one keeps nothing.
func NewHistory(maxTurns int) *History {
	return &History{maxTurns: maxTurns}
}

func (h *History) Append(turns ...llms.Turn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.maxTurns <= 0 {
		return
	}
	h.turns = append(h.turns, turns...)
	if overflow := len(h.turns) - h.maxTurns; overflow > 0 {
		h.turns = append(h.turns[:0:0], h.turns[overflow:]...)
	}
}

// Turns returns a copy of the retained turns, oldest first.
func (h *History) Turns() []llms.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]llms.Turn(nil), h.turns...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
