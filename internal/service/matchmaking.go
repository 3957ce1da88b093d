package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/apperror"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/pkg"
)

const (
	defaultIdleTimeout = 10 * time.Minute
	aiPlayerPrefix     = "ai-"
)

// Departure - what happened to a room when a player left it.
type Departure struct {
	Room      *entity.Room
	Outcome   entity.Outcome
	Forfeited bool
	Destroyed bool

	// Requeued - the human left alone in a room that never started, back in the queue.
	Requeued entity.Player
}

// MatchmakingStats - room index counters for the ops surface.
type MatchmakingStats struct {
	Rooms          int `json:"rooms"`
	WaitingRooms   int `json:"waiting_rooms"`
	ActiveRooms    int `json:"active_rooms"`
	EndedRooms     int `json:"ended_rooms"`
	AIRooms        int `json:"ai_rooms"`
	WaitingPlayers int `json:"waiting_players"`
}

type MatchmakingOption func(*Matchmaker)

func WithIdleTimeout(timeout time.Duration) MatchmakingOption {
	return func(matchmaker *Matchmaker) {
		if timeout > 0 {
			matchmaker.idleTimeout = timeout
		}
	}
}

// WithAISymbol - symbol the AI stand-in plays in new AI rooms.
func WithAISymbol(symbol string) MatchmakingOption {
	return func(matchmaker *Matchmaker) {
		if symbol == entity.PlayerX || symbol == entity.PlayerO {
			matchmaker.aiSymbol = symbol
		}
	}
}

func WithMatchmakingClock(now func() time.Time) MatchmakingOption {
	return func(matchmaker *Matchmaker) {
		matchmaker.now = now
	}
}

// Matchmaker - owns the waiting queue and the room index.
//
// Lock order: the matchmaker lock is taken before any room lock, never after.
type Matchmaker struct {
	logger *slog.Logger

	idleTimeout time.Duration
	aiSymbol    string
	now         func() time.Time

	mu         sync.Mutex
	rooms      map[string]*entity.Room
	playerRoom map[string]*entity.Room
	waiting    []entity.Player
}

func NewMatchmaker(logger *slog.Logger, opts ...MatchmakingOption) *Matchmaker {
	matchmaker := &Matchmaker{
		logger:      logger.With("component", "matchmaker"),
		idleTimeout: defaultIdleTimeout,
		aiSymbol:    entity.PlayerO,
		now:         time.Now,
		rooms:       make(map[string]*entity.Room),
		playerRoom:  make(map[string]*entity.Room),
	}

	for _, opt := range opts {
		opt(matchmaker)
	}

	return matchmaker
}

// FindOrCreateRoom - pairs the player with the longest waiting one, or opens a new room and queues the player.
// created reports whether a new room was opened.
func (that *Matchmaker) FindOrCreateRoom(player entity.Player) (*entity.Room, bool, error) {
	log := that.logger.With("method", "FindOrCreateRoom", "playerID", player.ID())

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.seatedLocked(player.ID()) {
		return nil, false, apperror.ErrAlreadyInRoom
	}

	for len(that.waiting) > 0 {
		candidate := that.waiting[0]
		that.waiting = that.waiting[1:]

		room, ok := that.playerRoom[candidate.ID()]
		if !ok || !candidate.IsConnected() {
			log.Debug("skipping stale waiting player", "waitingID", candidate.ID())
			continue
		}

		if room.AddPlayer(player) {
			that.playerRoom[player.ID()] = room
			log.Info("player joined waiting room", "roomID", room.ID, "symbol", player.Symbol())

			return room, false, nil
		}
	}

	room := entity.NewRoom(pkg.GenerateRoomID(), entity.WithClock(that.now))
	if !room.AddPlayer(player) {
		return nil, false, apperror.ErrRoomIsFull
	}

	that.rooms[room.ID] = room
	that.playerRoom[player.ID()] = room
	that.waiting = append(that.waiting, player)

	log.Info("room created, waiting for opponent", "roomID", room.ID, "symbol", player.Symbol())

	return room, true, nil
}

// CreateAIRoom - opens a room against the AI stand-in. The human takes the remaining slot.
func (that *Matchmaker) CreateAIRoom(player entity.Player) (*entity.Room, error) {
	log := that.logger.With("method", "CreateAIRoom", "playerID", player.ID())

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.seatedLocked(player.ID()) {
		return nil, apperror.ErrAlreadyInRoom
	}

	roomID := pkg.GenerateRoomID()
	ai := entity.NewAIPlayer(that.logger, aiPlayerPrefix+roomID, that.aiSymbol)

	room := entity.NewAIRoom(roomID, ai, entity.WithClock(that.now))
	if !room.AddPlayer(player) {
		return nil, apperror.ErrRoomIsFull
	}

	that.rooms[room.ID] = room
	that.playerRoom[player.ID()] = room

	log.Info("AI room created", "roomID", room.ID, "symbol", player.Symbol(), "aiSymbol", that.aiSymbol)

	return room, nil
}

// LeaveRoom - vacates the player's slot and drops it from the queue. The room is destroyed once no human remains.
// Returns nil when the player is in no room.
func (that *Matchmaker) LeaveRoom(playerID string) *Departure {
	log := that.logger.With("method", "LeaveRoom", "playerID", playerID)

	that.mu.Lock()
	defer that.mu.Unlock()

	that.dequeueLocked(playerID)

	room, ok := that.playerRoom[playerID]
	if !ok {
		return nil
	}

	delete(that.playerRoom, playerID)

	outcome, forfeited := room.RemovePlayer(playerID)
	departure := &Departure{Room: room, Outcome: outcome, Forfeited: forfeited}

	switch {
	case room.IsEmpty():
		that.destroyLocked(room)
		departure.Destroyed = true
	case room.HasOpenSlot() && !room.IsAI():
		departure.Requeued = that.requeueLocked(room)
	}

	log.Info("player left room", "roomID", room.ID, "forfeited", forfeited, "destroyed", departure.Destroyed)

	return departure
}

// Cleanup - removes rooms idle for longer than the idle timeout as of now, and rooms without humans.
func (that *Matchmaker) Cleanup(now time.Time) []*entity.Room {
	log := that.logger.With("method", "Cleanup")

	that.mu.Lock()
	defer that.mu.Unlock()

	var removed []*entity.Room
	for _, room := range that.rooms {
		if now.Sub(room.LastActivity()) > that.idleTimeout || room.IsEmpty() {
			that.destroyLocked(room)
			removed = append(removed, room)
		}
	}

	if len(removed) > 0 {
		log.Info("rooms cleaned up", "count", len(removed), "remaining", len(that.rooms))
	}

	return removed
}

// RoomOf - the room the player currently sits in.
func (that *Matchmaker) RoomOf(playerID string) (*entity.Room, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.playerRoom[playerID]

	return room, ok
}

func (that *Matchmaker) Room(id string) (*entity.Room, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.rooms[id]

	return room, ok
}

func (that *Matchmaker) Stats() MatchmakingStats {
	that.mu.Lock()
	defer that.mu.Unlock()

	stats := MatchmakingStats{
		Rooms:          len(that.rooms),
		WaitingPlayers: len(that.waiting),
	}

	for _, room := range that.rooms {
		switch room.Status() {
		case entity.StatusWaiting:
			stats.WaitingRooms++
		case entity.StatusActive:
			stats.ActiveRooms++
		case entity.StatusEnded:
			stats.EndedRooms++
		}

		if room.IsAI() {
			stats.AIRooms++
		}
	}

	return stats
}

// destroyLocked - drops the room from the index along with every seat and queue entry pointing at it.
func (that *Matchmaker) destroyLocked(room *entity.Room) {
	delete(that.rooms, room.ID)

	for playerID, seated := range that.playerRoom {
		if seated == room {
			delete(that.playerRoom, playerID)
			that.dequeueLocked(playerID)
		}
	}
}

// seatedLocked - whether the player holds a seat in a room that has not ended.
// A seat in an ended room is given up here, so finished players can look for a new match.
func (that *Matchmaker) seatedLocked(playerID string) bool {
	room, ok := that.playerRoom[playerID]
	if !ok {
		return false
	}

	if room.Status() != entity.StatusEnded {
		return true
	}

	delete(that.playerRoom, playerID)
	room.RemovePlayer(playerID)

	if room.IsEmpty() {
		that.destroyLocked(room)
	}

	that.logger.Debug("seat in ended room released", "playerID", playerID, "roomID", room.ID)

	return false
}

// requeueLocked - puts the humans still seated in room back at the end of the queue.
func (that *Matchmaker) requeueLocked(room *entity.Room) entity.Player {
	var requeued entity.Player

	for _, player := range room.Players() {
		if player.IsAI() {
			continue
		}

		that.dequeueLocked(player.ID())
		that.waiting = append(that.waiting, player)
		requeued = player
	}

	return requeued
}

func (that *Matchmaker) dequeueLocked(playerID string) {
	for idx, player := range that.waiting {
		if player.ID() == playerID {
			that.waiting = append(that.waiting[:idx], that.waiting[idx+1:]...)
			return
		}
	}
}
