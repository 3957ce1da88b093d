package worker

import (
	"sync"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/protocol"
)

// pendingTable - correlation id to waiter. Whoever removes an entry first owns its completion,
// so a response and a timeout can never both complete the same request.
type pendingTable struct {
	mu      sync.Mutex
	waiters map[string]chan *protocol.Envelope
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		waiters: make(map[string]chan *protocol.Envelope),
	}
}

func (that *pendingTable) register(requestID string) <-chan *protocol.Envelope {
	waiter := make(chan *protocol.Envelope, 1)

	that.mu.Lock()
	that.waiters[requestID] = waiter
	that.mu.Unlock()

	return waiter
}

// resolve - completes the waiter for envelope.RequestID. False for unknown or already completed ids.
func (that *pendingTable) resolve(envelope *protocol.Envelope) bool {
	that.mu.Lock()
	waiter, ok := that.waiters[envelope.RequestID]
	delete(that.waiters, envelope.RequestID)
	that.mu.Unlock()

	if !ok {
		return false
	}

	waiter <- envelope

	return true
}

// cancel - drops the waiter. False when a response already claimed it.
func (that *pendingTable) cancel(requestID string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	_, ok := that.waiters[requestID]
	delete(that.waiters, requestID)

	return ok
}

func (that *pendingTable) len() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.waiters)
}
