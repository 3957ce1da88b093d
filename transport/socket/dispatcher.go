package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/usecase"
)

// Client commands. A command line is "<COMMAND>" or "<COMMAND>:<payload>".
const (
	CommandGameMove   = "GAME_MOVE"
	CommandFindMatch  = "FIND_MATCH"
	CommandPlayWithAI = "PLAY_WITH_AI"
	CommandStartGame  = "START_GAME"
	CommandLeaveMatch = "LEAVE_MATCH"
)

const (
	ReasonInvalidMoveFormat = "Invalid move format"
	ReasonUnknownCommand    = "Unknown command"
)

type gameCoordinator interface {
	FindMatch(ctx context.Context, player entity.Player) error
	PlayWithAI(ctx context.Context, player entity.Player) error
	StartGame(ctx context.Context, player entity.Player) error
	SubmitMove(ctx context.Context, player entity.Player, move entity.Move) error
	LeaveRoom(ctx context.Context, player entity.Player) error
}

type movePayload struct {
	Row *int `json:"row"`
	Col *int `json:"col"`
}

// Dispatcher - turns command lines into coordinator calls. Shared by every client transport.
type Dispatcher struct {
	logger      *slog.Logger
	coordinator gameCoordinator

	handlers map[string]func(ctx context.Context, player entity.Player, payload string) error
}

func NewDispatcher(logger *slog.Logger, coordinator gameCoordinator) *Dispatcher {
	dispatcher := &Dispatcher{
		logger:      logger.With("component", "dispatcher"),
		coordinator: coordinator,

		handlers: make(map[string]func(context.Context, entity.Player, string) error),
	}

	dispatcher.handlers[CommandGameMove] = dispatcher.handleGameMove
	dispatcher.handlers[CommandFindMatch] = withoutPayload(coordinator.FindMatch)
	dispatcher.handlers[CommandPlayWithAI] = withoutPayload(coordinator.PlayWithAI)
	dispatcher.handlers[CommandStartGame] = withoutPayload(coordinator.StartGame)
	dispatcher.handlers[CommandLeaveMatch] = withoutPayload(coordinator.LeaveRoom)

	return dispatcher
}

// Dispatch - runs one command line for player. Replies reach the player through Deliver.
func (that *Dispatcher) Dispatch(ctx context.Context, player entity.Player, line string) {
	log := that.logger.With("method", "Dispatch", "playerID", player.ID())

	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	command, payload, _ := strings.Cut(line, ":")

	handler, ok := that.handlers[command]
	if !ok {
		log.Debug("unknown command", "command", command)
		player.Deliver(usecase.ErrorMessage(ReasonUnknownCommand))

		return
	}

	if err := handler(ctx, player, payload); err != nil {
		log.Debug("command rejected", "command", command, "error", err)
	}
}

// Disconnect - the player's connection is gone; frees its seat.
func (that *Dispatcher) Disconnect(ctx context.Context, player entity.Player) {
	log := that.logger.With("method", "Disconnect", "playerID", player.ID())

	if err := that.coordinator.LeaveRoom(ctx, player); err != nil {
		log.Warn("failed to leave room on disconnect", "error", err)
	}

	log.Info("player disconnected")
}

func (that *Dispatcher) handleGameMove(ctx context.Context, player entity.Player, payload string) error {
	var move movePayload
	if err := json.Unmarshal([]byte(payload), &move); err != nil {
		player.Deliver(usecase.ErrorMessage(ReasonInvalidMoveFormat))
		return fmt.Errorf("failed to unmarshal move: %w", err)
	}

	if move.Row == nil || move.Col == nil {
		player.Deliver(usecase.ErrorMessage(ReasonInvalidMoveFormat))
		return fmt.Errorf("move is missing coordinates: %q", payload)
	}

	return that.coordinator.SubmitMove(ctx, player, entity.Move{Row: *move.Row, Col: *move.Col})
}

func withoutPayload(
	call func(ctx context.Context, player entity.Player) error,
) func(context.Context, entity.Player, string) error {
	return func(ctx context.Context, player entity.Player, _ string) error {
		return call(ctx, player)
	}
}
