package entity

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/apperror"
)

const (
	StatusWaiting = "waiting"
	StatusActive  = "active"
	StatusEnded   = "ended"
)

const (
	ReasonWin          = "WIN"
	ReasonDraw         = "DRAW"
	ReasonOpponentLeft = "OPPONENT_LEFT"

	WinnerNone = "NONE"
)

// slotSymbols - slot 1 always plays X and moves first, slot 2 plays O.
var slotSymbols = [2]string{PlayerX, PlayerO}

// Outcome - room state right after a transition.
type Outcome struct {
	Status string
	Turn   string
	Reason string
	Winner string
	AITurn bool
}

func (that Outcome) Ended() bool {
	return that.Status == StatusEnded
}

type RoomOption func(*Room)

// WithClock - overrides the time source used for activity tracking.
func WithClock(now func() time.Time) RoomOption {
	return func(room *Room) {
		room.now = now
	}
}

// Room - one match: two slots, a board and the turn/lifecycle state machine.
//
// Every exported method is safe for concurrent use. WithTurnLock additionally serializes whole
// validate-and-apply sequences so that concurrent submissions for one room never interleave.
type Room struct {
	ID string

	turnMu sync.Mutex

	mu           sync.RWMutex
	slots        [2]Player
	ready        [2]bool
	board        Board
	turn         string
	status       string
	isAI         bool
	aiSymbol     string
	reason       string
	winner       string
	moveCount    int
	roster       []ResultPlayer
	createdAt    time.Time
	lastActivity time.Time

	released atomic.Bool
	now      func() time.Time
}

func NewRoom(id string, opts ...RoomOption) *Room {
	room := &Room{
		ID:     id,
		turn:   PlayerX,
		status: StatusWaiting,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(room)
	}

	room.createdAt = room.now()
	room.lastActivity = room.createdAt

	return room
}

// NewAIRoom - creates a room whose AI stand-in already occupies the slot matching its symbol.
func NewAIRoom(id string, ai Player, opts ...RoomOption) *Room {
	room := NewRoom(id, opts...)
	room.isAI = true
	room.aiSymbol = ai.Symbol()

	idx := slotIndex(room.aiSymbol)
	room.slots[idx] = ai
	room.ready[idx] = true

	return room
}

func slotIndex(symbol string) int {
	if symbol == PlayerO {
		return 1
	}

	return 0
}

// WithTurnLock - runs fn while holding the room's move serialization lock.
func (that *Room) WithTurnLock(fn func() error) error {
	that.turnMu.Lock()
	defer that.turnMu.Unlock()

	return fn()
}

// AddPlayer - places player into the first empty slot and assigns its symbol.
// Returns false when the room is full, not waiting, or already holds the player.
func (that *Room) AddPlayer(player Player) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.status != StatusWaiting || that.slotOfLocked(player.ID()) >= 0 {
		return false
	}

	for idx := range that.slots {
		if that.slots[idx] == nil {
			that.slots[idx] = player
			that.ready[idx] = false
			player.AssignSymbol(slotSymbols[idx])
			that.touchLocked()

			return true
		}
	}

	return false
}

// SetReady - marks the player ready. Returns true once every slot is filled and ready.
func (that *Room) SetReady(playerID string) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	idx := that.slotOfLocked(playerID)
	if idx < 0 {
		return false, apperror.ErrNotInRoom
	}

	that.ready[idx] = true
	that.touchLocked()

	return that.isFullLocked() && that.ready[0] && that.ready[1], nil
}

// Start - moves a full waiting room to active with X to move.
func (that *Room) Start() (Outcome, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	switch that.status {
	case StatusActive:
		return that.outcomeLocked(), apperror.ErrGameStarted
	case StatusEnded:
		return that.outcomeLocked(), apperror.ErrGameFinished
	}

	if !that.isFullLocked() {
		return that.outcomeLocked(), apperror.ErrRoomNotReady
	}

	that.status = StatusActive
	that.turn = PlayerX
	that.touchLocked()

	that.roster = that.roster[:0]
	for idx, player := range that.slots {
		that.roster = append(that.roster, ResultPlayer{ID: player.ID(), Symbol: slotSymbols[idx], IsAI: player.IsAI()})
	}

	return that.outcomeLocked(), nil
}

// ApplyMove - applies an already validated move for the player whose turn it is.
// Bounds and occupancy are checked again so that a wrong verdict can never overwrite a stone.
func (that *Room) ApplyMove(playerID string, move Move, verdict Verdict) (Outcome, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.confirmActiveLocked(); err != nil {
		return that.outcomeLocked(), err
	}

	idx := that.slotOfLocked(playerID)
	if idx < 0 {
		return that.outcomeLocked(), apperror.ErrNotInRoom
	}

	symbol := slotSymbols[idx]
	if symbol != that.turn {
		return that.outcomeLocked(), apperror.ErrNotYourTurn
	}

	if !verdict.Valid {
		return that.outcomeLocked(), apperror.ErrInvalidMove
	}

	if err := that.board.Place(move, symbol); err != nil {
		return that.outcomeLocked(), err
	}

	that.moveCount++
	that.touchLocked()

	switch {
	case verdict.Winning:
		that.endLocked(ReasonWin, symbol)
	case verdict.Draw || that.board.IsFull():
		that.endLocked(ReasonDraw, WinnerNone)
	default:
		that.turn = Opponent(that.turn)
	}

	return that.outcomeLocked(), nil
}

// RemovePlayer - vacates the player's slot. Leaving an active room forfeits it to the remaining symbol;
// the second return value reports that forfeit.
func (that *Room) RemovePlayer(playerID string) (Outcome, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	idx := that.slotOfLocked(playerID)
	if idx < 0 {
		return that.outcomeLocked(), false
	}

	that.slots[idx] = nil
	that.ready[idx] = false
	that.touchLocked()

	if that.status != StatusActive {
		return that.outcomeLocked(), false
	}

	that.endLocked(ReasonOpponentLeft, Opponent(slotSymbols[idx]))

	return that.outcomeLocked(), true
}

// Close - ends the room without a winner, used when it is swept. Returns false if it had already ended.
func (that *Room) Close() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.status == StatusEnded {
		return false
	}

	that.status = StatusEnded
	that.turn = ""

	return true
}

// Release - returns true exactly once over the room's lifetime.
func (that *Room) Release() bool {
	return that.released.CompareAndSwap(false, true)
}

func (that *Room) Status() string {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.status
}

func (that *Room) Turn() string {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.turn
}

// Board - copy of the current grid.
func (that *Room) Board() Board {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.board
}

func (that *Room) IsAI() bool {
	return that.isAI
}

func (that *Room) AISymbol() string {
	return that.aiSymbol
}

// IsAITurn - true while the game is active and the AI stand-in is to move.
func (that *Room) IsAITurn() bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.isAITurnLocked()
}

// AIPlayer - the AI stand-in, nil for rooms between two humans.
func (that *Room) AIPlayer() Player {
	if !that.isAI {
		return nil
	}

	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.slots[slotIndex(that.aiSymbol)]
}

func (that *Room) IsFull() bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.isFullLocked()
}

// IsEmpty - true when no human player remains.
func (that *Room) IsEmpty() bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	for _, player := range that.slots {
		if player != nil && !player.IsAI() {
			return false
		}
	}

	return true
}

// HasOpenSlot - true while the room is waiting for a second human.
func (that *Room) HasOpenSlot() bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.status == StatusWaiting && !that.isFullLocked()
}

func (that *Room) HasPlayer(playerID string) bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.slotOfLocked(playerID) >= 0
}

// Players - occupied slots in slot order.
func (that *Room) Players() []Player {
	that.mu.RLock()
	defer that.mu.RUnlock()

	players := make([]Player, 0, len(that.slots))
	for _, player := range that.slots {
		if player != nil {
			players = append(players, player)
		}
	}

	return players
}

// Opponent - the player in the other slot, nil if that slot is empty.
func (that *Room) Opponent(playerID string) Player {
	that.mu.RLock()
	defer that.mu.RUnlock()

	idx := that.slotOfLocked(playerID)
	if idx < 0 {
		return nil
	}

	return that.slots[1-idx]
}

// Broadcast - delivers message to every occupant.
func (that *Room) Broadcast(message string) {
	for _, player := range that.Players() {
		player.Deliver(message)
	}
}

func (that *Room) LastActivity() time.Time {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.lastActivity
}

// IsIdle - true when nothing happened in the room for longer than timeout.
func (that *Room) IsIdle(timeout time.Duration) bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.now().Sub(that.lastActivity) > timeout
}

func (that *Room) Outcome() Outcome {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return that.outcomeLocked()
}

// Result - summary of an ended room for the results store. Players are the ones seated when the game started.
func (that *Room) Result() *GameResult {
	that.mu.RLock()
	defer that.mu.RUnlock()

	result := &GameResult{
		RoomID:    that.ID,
		Reason:    that.reason,
		Winner:    that.winner,
		Moves:     that.moveCount,
		IsAI:      that.isAI,
		StartedAt: that.createdAt,
		EndedAt:   that.now(),
		Players:   append([]ResultPlayer(nil), that.roster...),
	}

	return result
}

func (that *Room) confirmActiveLocked() error {
	switch that.status {
	case StatusWaiting:
		return apperror.ErrGameIsNotStarted
	case StatusEnded:
		return apperror.ErrGameFinished
	}

	return nil
}

func (that *Room) endLocked(reason, winner string) {
	that.status = StatusEnded
	that.reason = reason
	that.winner = winner
	that.turn = ""
}

func (that *Room) isFullLocked() bool {
	return that.slots[0] != nil && that.slots[1] != nil
}

func (that *Room) isAITurnLocked() bool {
	return that.isAI && that.status == StatusActive && that.turn == that.aiSymbol
}

func (that *Room) slotOfLocked(playerID string) int {
	for idx, player := range that.slots {
		if player != nil && player.ID() == playerID {
			return idx
		}
	}

	return -1
}

func (that *Room) touchLocked() {
	that.lastActivity = that.now()
}

func (that *Room) outcomeLocked() Outcome {
	return Outcome{
		Status: that.status,
		Turn:   that.turn,
		Reason: that.reason,
		Winner: that.winner,
		AITurn: that.isAITurnLocked(),
	}
}
