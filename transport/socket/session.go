package socket

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Session - one connected client, seated in rooms as a human player.
type Session struct {
	logger *slog.Logger
	id     string

	writeMu sync.Mutex
	send    func(line string) error

	connected atomic.Bool

	mu     sync.RWMutex
	symbol string
}

// NewSession - send writes a single message; calls to it are serialized by the session.
func NewSession(logger *slog.Logger, id string, send func(line string) error) *Session {
	session := &Session{
		logger: logger.With("component", "session", "playerID", id),
		id:     id,
		send:   send,
	}

	session.connected.Store(true)

	return session
}

func (that *Session) ID() string {
	return that.id
}

func (that *Session) Symbol() string {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.symbol
}

func (that *Session) AssignSymbol(symbol string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.symbol = symbol
}

// Deliver - a failed write marks the session disconnected, later messages are dropped.
func (that *Session) Deliver(message string) {
	log := that.logger.With("method", "Deliver")

	if !that.connected.Load() {
		log.Debug("session closed, message dropped", "message", message)
		return
	}

	that.writeMu.Lock()
	err := that.send(message)
	that.writeMu.Unlock()

	if err != nil {
		log.Warn("failed to deliver message", "error", err)
		that.Close()
	}
}

func (that *Session) IsAI() bool {
	return false
}

func (that *Session) IsConnected() bool {
	return that.connected.Load()
}

func (that *Session) Close() {
	that.connected.Store(false)
}
