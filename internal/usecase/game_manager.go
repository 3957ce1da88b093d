package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/apperror"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/loadbalancer"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/metrics"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/protocol"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/service"
	"golang.org/x/sync/errgroup"
)

const recordTimeout = 5 * time.Second

type loadBalancer interface {
	IncrementLoad()
	DecrementLoad()
	ShouldUseWorker(ctx context.Context, operation loadbalancer.Operation) bool
	Monitor(ctx context.Context, interval time.Duration) error
}

type workerPool interface {
	HasAvailableWorkers() bool
	RequestAIMove(ctx context.Context, request protocol.AIRequest) (protocol.AIResponse, error)
	ValidateMove(ctx context.Context, request protocol.MoveValidationRequest) (protocol.MoveValidationResponse, error)
	RunHealthChecks(ctx context.Context) error
}

type roomIndex interface {
	FindOrCreateRoom(player entity.Player) (*entity.Room, bool, error)
	CreateAIRoom(player entity.Player) (*entity.Room, error)
	LeaveRoom(playerID string) *service.Departure
	Cleanup(now time.Time) []*entity.Room
	RoomOf(playerID string) (*entity.Room, bool)
}

type resultRecorder interface {
	Save(ctx context.Context, result *entity.GameResult) error
}

// Config - timings of the coordinator's own loops.
type Config struct {
	AIMoveDelay     time.Duration
	CleanupInterval time.Duration
	MonitorInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		AIMoveDelay:     time.Second,
		CleanupInterval: time.Minute,
		MonitorInterval: 30 * time.Second,
	}
}

type Option func(*GameManager)

// WithResultRecorder - stores results of finished rooms.
func WithResultRecorder(recorder resultRecorder) Option {
	return func(manager *GameManager) {
		manager.recorder = recorder
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(manager *GameManager) {
		manager.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(manager *GameManager) {
		manager.now = now
	}
}

// GameManager - coordinates rooms: matchmaking, the ready handshake, move validation and AI turns,
// picking local or worker execution for every step.
type GameManager struct {
	logger *slog.Logger
	conf   Config

	rooms    roomIndex
	balancer loadBalancer
	workers  workerPool
	bot      service.BotService
	recorder resultRecorder
	metrics  *metrics.Metrics
	now      func() time.Time

	// background AI turns and result writes
	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func NewGameManager(
	logger *slog.Logger,
	conf Config,
	rooms roomIndex,
	balancer loadBalancer,
	workers workerPool,
	bot service.BotService,
	opts ...Option,
) *GameManager {
	ctx, cancel := context.WithCancel(context.Background())

	manager := &GameManager{
		logger: logger.With("component", "game_manager"),
		conf:   conf,

		rooms:    rooms,
		balancer: balancer,
		workers:  workers,
		bot:      bot,
		now:      time.Now,

		ctx:    ctx,
		cancel: cancel,
	}

	for _, opt := range opts {
		opt(manager)
	}

	return manager
}

// FindMatch - seats the player in a waiting room or opens a new one.
func (that *GameManager) FindMatch(_ context.Context, player entity.Player) error {
	log := that.logger.With("method", "FindMatch", "playerID", player.ID())

	room, created, err := that.rooms.FindOrCreateRoom(player)
	if err != nil {
		return that.reject(player, fmt.Errorf("failed to find match: %w", err))
	}

	if created {
		that.balancer.IncrementLoad()
	}

	player.Deliver(Message(MessagePlayerSymbol, player.Symbol()))
	player.Deliver(Message(MessageJoinRoom, room.ID))

	opponent := room.Opponent(player.ID())
	if opponent == nil {
		player.Deliver(Message(MessageWaitingForOpponent, "Waiting for another player"))
		return nil
	}

	player.Deliver(Message(MessageMatchFound, "Match found, ready to start"))
	opponent.Deliver(Message(MessageMatchFound, "Match found, ready to start"))

	log.Info("match found", "roomID", room.ID, "opponentID", opponent.ID())

	return nil
}

// PlayWithAI - opens a room against the AI stand-in.
func (that *GameManager) PlayWithAI(_ context.Context, player entity.Player) error {
	log := that.logger.With("method", "PlayWithAI", "playerID", player.ID())

	room, err := that.rooms.CreateAIRoom(player)
	if err != nil {
		return that.reject(player, fmt.Errorf("failed to create AI room: %w", err))
	}

	that.balancer.IncrementLoad()

	player.Deliver(Message(MessagePlayerSymbol, player.Symbol()))
	player.Deliver(Message(MessageAIMatchFound, room.ID))

	log.Info("AI match created", "roomID", room.ID)

	return nil
}

// StartGame - marks the player ready and starts the room once every seat is ready.
func (that *GameManager) StartGame(_ context.Context, player entity.Player) error {
	log := that.logger.With("method", "StartGame", "playerID", player.ID())

	room, ok := that.rooms.RoomOf(player.ID())
	if !ok {
		return that.reject(player, apperror.ErrNotInRoom)
	}

	if !room.IsFull() {
		return that.reject(player, apperror.ErrRoomNotReady)
	}

	allReady, err := room.SetReady(player.ID())
	if err != nil {
		return that.reject(player, fmt.Errorf("failed to mark player ready: %w", err))
	}

	player.Deliver(Message(MessageReadyAck, "You are ready to start"))

	if !allReady {
		player.Deliver(Message(MessageWaitingForOpponentReady, "Waiting for opponent to be ready"))

		if opponent := room.Opponent(player.ID()); opponent != nil {
			opponent.Deliver(Message(MessageOpponentReady, "Your opponent is ready to start"))
		}

		return nil
	}

	var outcome entity.Outcome
	err = room.WithTurnLock(func() error {
		var startErr error
		outcome, startErr = room.Start()

		return startErr
	})

	switch {
	case errors.Is(err, apperror.ErrGameStarted):
		// the other player's START_GAME got there first
		return nil
	case err != nil:
		return that.reject(player, fmt.Errorf("failed to start room: %w", err))
	}

	room.Broadcast(gameStartMessage(room.ID, outcome.Turn))

	log.Info("game started", "roomID", room.ID, "isAI", room.IsAI())

	if outcome.AITurn {
		that.scheduleAITurn(room)
	}

	return nil
}

// SubmitMove - moves on behalf of the player in its current room.
func (that *GameManager) SubmitMove(ctx context.Context, player entity.Player, move entity.Move) error {
	room, ok := that.rooms.RoomOf(player.ID())
	if !ok {
		return that.reject(player, apperror.ErrGameIsNotStarted)
	}

	return that.ProcessMove(ctx, room, player, move)
}

// ProcessMove - validates and applies one move, then notifies the room. The whole sequence
// holds the room's turn lock, so moves and forfeits of one room never interleave.
func (that *GameManager) ProcessMove(ctx context.Context, room *entity.Room, player entity.Player, move entity.Move) error {
	return room.WithTurnLock(func() error {
		return that.processMove(ctx, room, player, move)
	})
}

func (that *GameManager) processMove(ctx context.Context, room *entity.Room, player entity.Player, move entity.Move) error {
	log := that.logger.With("method", "processMove", "roomID", room.ID, "playerID", player.ID(), "move", move.String())

	outcome := room.Outcome()
	switch {
	case outcome.Status == entity.StatusWaiting:
		return that.reject(player, apperror.ErrGameIsNotStarted)
	case outcome.Ended():
		return that.reject(player, apperror.ErrGameFinished)
	case outcome.Turn != player.Symbol():
		return that.reject(player, apperror.ErrNotYourTurn)
	}

	board := room.Board()

	verdict := that.validate(ctx, board, move, player.Symbol())
	if !verdict.Valid {
		return that.reject(player, apperror.ErrInvalidMove)
	}

	outcome, err := room.ApplyMove(player.ID(), move, verdict)
	if err != nil {
		return that.reject(player, fmt.Errorf("failed to apply move: %w", err))
	}

	log.Debug("move applied", "symbol", player.Symbol(), "status", outcome.Status)

	room.Broadcast(gameMoveMessage(move, player.Symbol()))

	if player.IsAI() {
		for _, human := range room.Players() {
			if !human.IsAI() {
				human.Deliver(aiMoveMessage(move))
			}
		}
	}

	if outcome.Ended() {
		that.finish(room, outcome)
		return nil
	}

	room.Broadcast(turnChangeMessage(outcome.Turn))

	if outcome.AITurn {
		that.scheduleAITurn(room)
	}

	return nil
}

// validate - asks a worker when the load calls for it; any worker failure falls back to the local board check.
func (that *GameManager) validate(ctx context.Context, board entity.Board, move entity.Move, symbol string) entity.Verdict {
	log := that.logger.With("method", "validate", "move", move.String())

	if that.balancer.ShouldUseWorker(ctx, loadbalancer.OperationMoveValidation) && that.workers.HasAvailableWorkers() {
		response, err := that.workers.ValidateMove(ctx, protocol.MoveValidationRequest{
			Board:        protocol.EncodeBoard(board),
			Row:          move.Row,
			Col:          move.Col,
			PlayerSymbol: symbol,
		})
		if err == nil {
			that.metrics.ObserveDispatch(string(loadbalancer.OperationMoveValidation), metrics.TargetWorker)
			return response.Verdict()
		}

		log.Warn("worker validation failed, validating locally", "error", err)
	}

	that.metrics.ObserveDispatch(string(loadbalancer.OperationMoveValidation), metrics.TargetLocal)

	return entity.Evaluate(board, move, symbol)
}

// LeaveRoom - explicit leave and disconnect both end here. Leaving an active room forfeits it.
// Calling it for a player without a room does nothing.
func (that *GameManager) LeaveRoom(_ context.Context, player entity.Player) error {
	log := that.logger.With("method", "LeaveRoom", "playerID", player.ID())

	room, ok := that.rooms.RoomOf(player.ID())
	if !ok {
		return nil
	}

	var departure *service.Departure
	_ = room.WithTurnLock(func() error {
		departure = that.rooms.LeaveRoom(player.ID())
		return nil
	})

	if departure == nil {
		return nil
	}

	player.Deliver(Message(MessageMatchLeft, "You left the match"))

	if departure.Forfeited {
		that.finish(room, departure.Outcome)
	}

	room.Broadcast(Message(MessageOpponentLeft, "Your opponent left the game"))

	if departure.Requeued != nil {
		departure.Requeued.Deliver(Message(MessageWaitingForOpponent, "Waiting for another player"))
	}

	if departure.Destroyed && room.Release() {
		that.balancer.DecrementLoad()
	}

	log.Info("player left", "roomID", room.ID, "forfeited", departure.Forfeited, "destroyed", departure.Destroyed)

	return nil
}

// finish - runs once per ended room: releases its load slot, announces the end and records the result.
func (that *GameManager) finish(room *entity.Room, outcome entity.Outcome) {
	log := that.logger.With("method", "finish", "roomID", room.ID)

	if room.Release() {
		that.balancer.DecrementLoad()
	}

	room.Broadcast(gameEndMessage(outcome))
	that.metrics.ObserveGameEnded(outcome.Reason)

	log.Info("game ended", "reason", outcome.Reason, "winner", outcome.Winner)

	if that.recorder == nil {
		return
	}

	result := room.Result()
	that.spawn(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, recordTimeout)
		defer cancel()

		if err := that.recorder.Save(ctx, result); err != nil {
			log.Error("failed to record game result", "error", err)
		}
	})
}

func (that *GameManager) scheduleAITurn(room *entity.Room) {
	that.spawn(func(ctx context.Context) {
		that.playAITurn(ctx, room)
	})
}

// playAITurn - waits the think delay, computes a move remotely or locally and plays it as the AI stand-in.
func (that *GameManager) playAITurn(ctx context.Context, room *entity.Room) {
	log := that.logger.With("method", "playAITurn", "roomID", room.ID)

	if that.conf.AIMoveDelay > 0 {
		timer := time.NewTimer(that.conf.AIMoveDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	if !room.IsAITurn() {
		return
	}

	ai := room.AIPlayer()
	if ai == nil {
		return
	}

	move := that.aiMove(ctx, room, ai.Symbol())
	if move.IsInvalid() {
		log.Error("AI found no move")
		return
	}

	if err := that.ProcessMove(ctx, room, ai, move); err != nil {
		log.Warn("AI move rejected", "move", move.String(), "error", err)
	}
}

// aiMove - remote search when the load calls for it; an unusable worker answer falls back to the local bot.
func (that *GameManager) aiMove(ctx context.Context, room *entity.Room, symbol string) entity.Move {
	log := that.logger.With("method", "aiMove", "roomID", room.ID)

	board := room.Board()

	if that.balancer.ShouldUseWorker(ctx, loadbalancer.OperationAIMove) && that.workers.HasAvailableWorkers() {
		response, err := that.workers.RequestAIMove(ctx, protocol.AIRequest{
			Board:    protocol.EncodeBoard(board),
			AISymbol: symbol,
			RoomID:   room.ID,
		})

		switch {
		case err != nil:
			log.Warn("worker AI failed, searching locally", "error", err)
		case !response.IsValid:
			log.Warn("worker AI returned no move, searching locally", "reason", response.ErrorMessage)
		case !board.IsLegal(response.Row, response.Col):
			log.Warn("worker AI returned an illegal move, searching locally", "move", response.Move().String())
		default:
			that.metrics.ObserveDispatch(string(loadbalancer.OperationAIMove), metrics.TargetWorker)
			return response.Move()
		}
	}

	that.metrics.ObserveDispatch(string(loadbalancer.OperationAIMove), metrics.TargetLocal)

	move, err := that.bot.NextMove(ctx, board, symbol)
	if err != nil {
		log.Warn("local AI found no move", "error", err)
		return entity.InvalidMove
	}

	return move
}

// Run - runs the room sweep, the load monitor and the worker health checks until ctx is done.
func (that *GameManager) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return that.cleanupLoop(ctx)
	})

	group.Go(func() error {
		return that.balancer.Monitor(ctx, that.conf.MonitorInterval)
	})

	group.Go(func() error {
		return that.workers.RunHealthChecks(ctx)
	})

	if err := group.Wait(); err != nil {
		return fmt.Errorf("background loop failed: %w", err)
	}

	return nil
}

func (that *GameManager) cleanupLoop(ctx context.Context) error {
	ticker := time.NewTicker(that.conf.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			that.Cleanup()
		}
	}
}

// Cleanup - sweeps idle and empty rooms; each swept room gives its load slot back once.
func (that *GameManager) Cleanup() int {
	log := that.logger.With("method", "Cleanup")

	removed := that.rooms.Cleanup(that.now())
	for _, room := range removed {
		_ = room.WithTurnLock(func() error {
			room.Close()
			return nil
		})

		if room.Release() {
			that.balancer.DecrementLoad()
		}

		log.Info("room swept", "roomID", room.ID)
	}

	return len(removed)
}

// Shutdown - cancels pending AI turns and waits for background tasks.
func (that *GameManager) Shutdown() {
	that.mu.Lock()
	that.closed = true
	that.mu.Unlock()

	that.cancel()
	that.tasks.Wait()
}

func (that *GameManager) spawn(task func(ctx context.Context)) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return
	}

	that.tasks.Add(1)
	go func() {
		defer that.tasks.Done()
		task(that.ctx)
	}()
}

// reject - sends the error reason to the player and returns err to the caller.
func (that *GameManager) reject(player entity.Player, err error) error {
	player.Deliver(ErrorMessage(errorReason(err)))

	return err
}
