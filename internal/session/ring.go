package session

import (
	"sync"

	"github.com/adashihq/adashi-bot/internal/domain"
)

// TurnRing is a fixed-size circular buffer of conversation turns.
// When full, the oldest turn is evicted. Prevents unbounded memory growth
// for long-lived conversations.
type TurnRing struct {
	buf  []domain.ConversationTurn
	size int
	head int // write position
	tail int // read position
	full bool
	mu   sync.RWMutex
}

// NewTurnRing creates a ring holding at most size turns.
// Default size is 20 which covers the prompt history window with slack.
func NewTurnRing(size int) *TurnRing {
	if size <= 0 {
		size = 20
	}
	return &TurnRing{
		buf:  make([]domain.ConversationTurn, size),
		size: size,
	}
}

// Append adds a turn, overwriting the oldest when full.
func (r *TurnRing) Append(turn domain.ConversationTurn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.full {
		// Overwrite: advance tail to skip the oldest turn
		r.tail = (r.tail + 1) % r.size
	}
	r.buf[r.head] = turn
	r.head = (r.head + 1) % r.size
	if r.head == r.tail {
		r.full = true
	}
}

// Turns returns the buffered turns in order, oldest first.
func (r *TurnRing) Turns() []domain.ConversationTurn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full && r.head == r.tail {
		return nil
	}

	if r.full && r.head == r.tail {
		result := make([]domain.ConversationTurn, r.size)
		copy(result, r.buf[r.tail:])
		copy(result[r.size-r.tail:], r.buf[:r.head])
		return result
	}

	if r.head > r.tail {
		result := make([]domain.ConversationTurn, r.head-r.tail)
		copy(result, r.buf[r.tail:r.head])
		return result
	}

	// Wrap-around: tail -> end + start -> head
	size := (r.size - r.tail) + r.head
	result := make([]domain.ConversationTurn, size)
	copy(result, r.buf[r.tail:])
	copy(result[r.size-r.tail:], r.buf[:r.head])
	return result
}

// Recent returns up to n most recent turns, oldest first.
func (r *TurnRing) Recent(n int) []domain.ConversationTurn {
	turns := r.Turns()
	if n >= len(turns) {
		return turns
	}
	return turns[len(turns)-n:]
}

// Len returns the number of buffered turns.
func (r *TurnRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full && r.head == r.tail {
		return 0
	}
	if r.full && r.head == r.tail {
		return r.size
	}
	if r.head > r.tail {
		return r.head - r.tail
	}
	return (r.size - r.tail) + r.head
}

// Reset clears the buffer.
func (r *TurnRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.head = 0
	r.tail = 0
	r.full = false
}

// Capacity returns the maximum number of turns the ring holds.
func (r *TurnRing) Capacity() int {
	return r.size
}
