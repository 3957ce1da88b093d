package entity

import (
	"log/slog"
	"sync"
)

// Player - anything that can sit in a room slot and receive text notifications.
type Player interface {
	ID() string
	Symbol() string
	AssignSymbol(symbol string)
	Deliver(message string)
	IsAI() bool
	IsConnected() bool
}

// AIPlayer - stand-in occupying the AI slot of a room. Deliveries are only logged.
type AIPlayer struct {
	logger *slog.Logger
	id     string

	mu     sync.RWMutex
	symbol string
}

func NewAIPlayer(logger *slog.Logger, id, symbol string) *AIPlayer {
	return &AIPlayer{
		logger: logger.With("component", "ai_player", "playerID", id),
		id:     id,
		symbol: symbol,
	}
}

func (that *AIPlayer) ID() string {
	return that.id
}

func (that *AIPlayer) Symbol() string {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.symbol
}

func (that *AIPlayer) AssignSymbol(symbol string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.symbol = symbol
}

func (that *AIPlayer) Deliver(message string) {
	that.logger.Debug("message to AI player dropped", "message", message)
}

func (that *AIPlayer) IsAI() bool {
	return true
}

func (that *AIPlayer) IsConnected() bool {
	return true
}
