package conversation

import (
	"sync"

	"github.com/BaSui01/careerflow/types"
)

// History is the append-only message log of one session.
type History struct {
	mu   sync.RWMutex
	msgs []types.Message
}

// NewHistory creates a history seeded with prior messages.
func NewHistory(seed ...types.Message) *History {
	h := &History{msgs: make([]types.Message, 0, len(seed)+16)}
	h.Append(seed...)
	return h
}

// Append adds messages in order.
func (h *History) Append(msgs ...types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range msgs {
		h.msgs = append(h.msgs, m.Clone())
	}
}

// Snapshot returns a deep copy of the log.
func (h *History) Snapshot() []types.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Message, len(h.msgs))
	for i, m := range h.msgs {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}

// Last returns the most recent message.
func (h *History) Last() (types.Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.msgs) == 0 {
		return types.Message{}, false
	}
	return h.msgs[len(h.msgs)-1].Clone(), true
}
