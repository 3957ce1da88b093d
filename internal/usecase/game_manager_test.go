package usecase

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/apperror"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/engine"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/protocol"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/service"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errWorkerDown = errors.New("worker down")

func TestGameManager_FindMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("A then B share a room as X and O", func(t *testing.T) {
		// Given: a coordinator without rooms
		f := newFixture(t, nil)
		a, b := newTestPlayer("a"), newTestPlayer("b")

		// When: both look for a match
		require.NoError(t, f.manager.FindMatch(ctx, a))
		require.NoError(t, f.manager.FindMatch(ctx, b))

		// Then: both are seated in one room and notified
		room, ok := f.matchmaker.RoomOf("a")
		require.True(t, ok)

		assert.Equal(t, []string{
			"PLAYER_SYMBOL:X",
			"JOIN_ROOM:" + room.ID,
			"WAITING_FOR_OPPONENT:Waiting for another player",
			"MATCH_FOUND:Match found, ready to start",
		}, a.Messages())

		assert.Equal(t, []string{
			"PLAYER_SYMBOL:O",
			"JOIN_ROOM:" + room.ID,
			"MATCH_FOUND:Match found, ready to start",
		}, b.Messages())

		assert.Equal(t, int32(1), f.balancer.live())
	})

	t.Run("Players of a finished game can play again", func(t *testing.T) {
		// Given: X won a started game
		f := newFixture(t, nil)
		ended, x, o := f.startedPair(t)

		for col := 0; col < 4; col++ {
			require.NoError(t, f.manager.SubmitMove(ctx, x, entity.Move{Row: 0, Col: col}))
			require.NoError(t, f.manager.SubmitMove(ctx, o, entity.Move{Row: 1, Col: col}))
		}
		require.NoError(t, f.manager.SubmitMove(ctx, x, entity.Move{Row: 0, Col: 4}))
		require.Equal(t, entity.StatusEnded, ended.Status())

		x.reset()
		o.reset()

		// When: X looks for a match and O asks for the AI
		require.NoError(t, f.manager.FindMatch(ctx, x))
		require.NoError(t, f.manager.PlayWithAI(ctx, o))

		// Then: both get new rooms and the ended room is gone
		assert.Zero(t, x.count("ERROR:"))
		assert.Zero(t, o.count("ERROR:"))

		room, ok := f.matchmaker.RoomOf("x")
		require.True(t, ok)
		assert.Contains(t, x.Messages(), "JOIN_ROOM:"+room.ID)

		aiRoom, ok := f.matchmaker.RoomOf("o")
		require.True(t, ok)
		assert.Contains(t, o.Messages(), "AI_MATCH_FOUND:"+aiRoom.ID)

		_, ok = f.matchmaker.Room(ended.ID)
		assert.False(t, ok)
		assert.Equal(t, int32(2), f.balancer.live())
	})

	t.Run("Seated player gets an error", func(t *testing.T) {
		f := newFixture(t, nil)
		a := newTestPlayer("a")

		require.NoError(t, f.manager.FindMatch(ctx, a))

		err := f.manager.FindMatch(ctx, a)
		require.ErrorIs(t, err, apperror.ErrAlreadyInRoom)
		assert.Equal(t, "ERROR:Already in a room", a.last())
	})
}

func TestGameManager_StartGame(t *testing.T) {
	ctx := context.Background()

	t.Run("Room starts once both players are ready", func(t *testing.T) {
		f := newFixture(t, nil)
		a, b := newTestPlayer("a"), newTestPlayer("b")

		require.NoError(t, f.manager.FindMatch(ctx, a))
		require.NoError(t, f.manager.FindMatch(ctx, b))
		a.reset()
		b.reset()

		// When: only A is ready
		require.NoError(t, f.manager.StartGame(ctx, a))

		// Then: A waits and B learns A is ready
		assert.Equal(t, []string{
			"READY_ACK:You are ready to start",
			"WAITING_FOR_OPPONENT_READY:Waiting for opponent to be ready",
		}, a.Messages())
		assert.Equal(t, []string{"OPPONENT_READY:Your opponent is ready to start"}, b.Messages())

		// When: B is ready too
		require.NoError(t, f.manager.StartGame(ctx, b))

		// Then: both get GAME_START with X to move
		room, _ := f.matchmaker.RoomOf("a")
		start := `GAME_START:{"roomId":"` + room.ID + `","currentPlayer":"X"}`

		assert.Equal(t, start, a.last())
		assert.Equal(t, start, b.last())
		assert.Equal(t, entity.StatusActive, room.Status())
	})

	t.Run("Start without an opponent is rejected", func(t *testing.T) {
		f := newFixture(t, nil)
		a := newTestPlayer("a")

		require.NoError(t, f.manager.FindMatch(ctx, a))

		err := f.manager.StartGame(ctx, a)
		require.ErrorIs(t, err, apperror.ErrRoomNotReady)
		assert.Equal(t, "ERROR:Waiting for opponent", a.last())
	})

	t.Run("Start outside a room is rejected", func(t *testing.T) {
		f := newFixture(t, nil)
		a := newTestPlayer("a")

		err := f.manager.StartGame(ctx, a)
		require.ErrorIs(t, err, apperror.ErrNotInRoom)
		assert.Equal(t, "ERROR:Not in a room", a.last())
	})

	t.Run("Repeated start after the game began is ignored", func(t *testing.T) {
		f := newFixture(t, nil)
		_, x, _ := f.startedPair(t)

		require.NoError(t, f.manager.StartGame(ctx, x))
		assert.Equal(t, 0, x.count("GAME_START:"))
	})
}

func TestGameManager_ProcessMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Turns alternate strictly", func(t *testing.T) {
		f := newFixture(t, nil)
		room, x, o := f.startedPair(t)

		// When: O moves first
		err := f.manager.SubmitMove(ctx, o, entity.Move{Row: 7, Col: 7})

		// Then: it is rejected without touching the board
		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Equal(t, "ERROR:Not your turn", o.last())
		board := room.Board()
		assert.True(t, board.IsEmpty())

		// When: X moves
		require.NoError(t, f.manager.SubmitMove(ctx, x, entity.Move{Row: 7, Col: 7}))

		// Then: both see the move and the turn passes to O
		for _, player := range []*testPlayer{x, o} {
			messages := player.Messages()
			require.GreaterOrEqual(t, len(messages), 2)
			assert.Equal(t, `GAME_MOVE:{"row":7,"col":7,"symbol":"X"}`, messages[len(messages)-2])
			assert.Equal(t, `TURN_CHANGE:{"currentPlayer":"O"}`, messages[len(messages)-1])
		}

		// When: X tries again
		require.ErrorIs(t, f.manager.SubmitMove(ctx, x, entity.Move{Row: 0, Col: 0}), apperror.ErrNotYourTurn)

		// When: O plays the occupied cell
		err = f.manager.SubmitMove(ctx, o, entity.Move{Row: 7, Col: 7})
		require.ErrorIs(t, err, apperror.ErrInvalidMove)
		assert.Equal(t, "ERROR:Invalid move", o.last())
		assert.Equal(t, entity.PlayerO, room.Turn())
	})

	t.Run("Out of bounds move is invalid", func(t *testing.T) {
		f := newFixture(t, nil)
		_, x, _ := f.startedPair(t)

		err := f.manager.SubmitMove(ctx, x, entity.Move{Row: 15, Col: 0})
		require.ErrorIs(t, err, apperror.ErrInvalidMove)
	})

	t.Run("Five in a row ends the game and records it", func(t *testing.T) {
		// Given: a recorder expecting one win for X
		recorder := &mockRecorder{}
		recorder.On("Save", mock.Anything, mock.MatchedBy(func(result *entity.GameResult) bool {
			return result.Reason == entity.ReasonWin && result.Winner == entity.PlayerX && result.Moves == 9 && len(result.Players) == 2
		})).Return(nil).Once()

		f := newFixture(t, nil, WithResultRecorder(recorder))
		room, x, o := f.startedPair(t)

		// When: X completes row 0 while O fills row 1
		for col := 0; col < 4; col++ {
			require.NoError(t, f.manager.SubmitMove(ctx, x, entity.Move{Row: 0, Col: col}))
			require.NoError(t, f.manager.SubmitMove(ctx, o, entity.Move{Row: 1, Col: col}))
		}
		require.NoError(t, f.manager.SubmitMove(ctx, x, entity.Move{Row: 0, Col: 4}))

		// Then: both get GAME_END, the load slot is released and the result stored
		end := `GAME_END:{"reason":"WIN","winner":"X"}`
		assert.Equal(t, end, x.last())
		assert.Equal(t, end, o.last())
		assert.Equal(t, entity.StatusEnded, room.Status())
		assert.Equal(t, int32(0), f.balancer.live())

		f.manager.Shutdown()
		recorder.AssertExpectations(t)

		// When: O moves after the end
		err := f.manager.SubmitMove(ctx, o, entity.Move{Row: 5, Col: 5})
		require.ErrorIs(t, err, apperror.ErrGameFinished)
		assert.Equal(t, "ERROR:Not in an active game", o.last())
	})

	t.Run("Worker verdict is used under load", func(t *testing.T) {
		f := newFixture(t, nil)
		f.balancer.useWorker.Store(true)
		_, x, o := f.startedPair(t)

		f.workers.On("HasAvailableWorkers").Return(true)
		f.workers.On("ValidateMove", mock.Anything, mock.MatchedBy(func(request protocol.MoveValidationRequest) bool {
			return request.Row == 7 && request.Col == 7 && request.PlayerSymbol == entity.PlayerX && len(request.Board) == entity.BoardSize
		})).Return(protocol.MoveValidationResponse{IsValid: true, IsWinning: true}, nil).Once()

		require.NoError(t, f.manager.SubmitMove(ctx, x, entity.Move{Row: 7, Col: 7}))

		assert.Equal(t, `GAME_END:{"reason":"WIN","winner":"X"}`, o.last())
		f.workers.AssertExpectations(t)
	})

	t.Run("Worker failure falls back to local validation", func(t *testing.T) {
		f := newFixture(t, nil)
		f.balancer.useWorker.Store(true)
		_, x, o := f.startedPair(t)

		f.workers.On("HasAvailableWorkers").Return(true)
		f.workers.On("ValidateMove", mock.Anything, mock.Anything).Return(protocol.MoveValidationResponse{}, errWorkerDown)

		require.NoError(t, f.manager.SubmitMove(ctx, x, entity.Move{Row: 7, Col: 7}))
		assert.Equal(t, `TURN_CHANGE:{"currentPlayer":"O"}`, o.last())
	})

	t.Run("Wrong worker verdict cannot overwrite a stone", func(t *testing.T) {
		f := newFixture(t, nil)
		room, x, o := f.startedPair(t)

		require.NoError(t, f.manager.SubmitMove(ctx, x, entity.Move{Row: 7, Col: 7}))

		f.balancer.useWorker.Store(true)
		f.workers.On("HasAvailableWorkers").Return(true)
		f.workers.On("ValidateMove", mock.Anything, mock.Anything).Return(protocol.MoveValidationResponse{IsValid: true}, nil)

		err := f.manager.SubmitMove(ctx, o, entity.Move{Row: 7, Col: 7})
		require.ErrorIs(t, err, apperror.ErrCellOccupied)
		assert.Equal(t, "ERROR:Invalid move", o.last())

		board := room.Board()
		assert.Equal(t, entity.PlayerX, board[7][7])
		assert.Equal(t, entity.PlayerO, room.Turn())
	})

	t.Run("Concurrent submissions apply one move", func(t *testing.T) {
		f := newFixture(t, nil)
		room, x, o := f.startedPair(t)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = f.manager.SubmitMove(ctx, x, entity.Move{Row: 7, Col: i % entity.BoardSize})
			}()
		}
		wg.Wait()

		board := room.Board()
		assert.Equal(t, 1, board.StoneCount())
		assert.Equal(t, 1, o.count("GAME_MOVE:"))
		assert.Equal(t, 19, x.count("ERROR:"))
	})
}

func TestGameManager_LeaveRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("Leaving an active game forfeits it once", func(t *testing.T) {
		// Given: a started pair
		f := newFixture(t, nil)
		room, x, o := f.startedPair(t)

		// When: X leaves
		require.NoError(t, f.manager.LeaveRoom(ctx, x))

		// Then: O wins by OPPONENT_LEFT and the load drops by one
		assert.Equal(t, []string{"MATCH_LEFT:You left the match"}, x.Messages())
		assert.Equal(t, []string{
			`GAME_END:{"reason":"OPPONENT_LEFT","winner":"O"}`,
			"OPPONENT_LEFT:Your opponent left the game",
		}, o.Messages())
		assert.Equal(t, entity.StatusEnded, room.Status())
		assert.Equal(t, int32(1), f.balancer.decrements.Load())

		// When: X leaves again and O leaves too
		require.NoError(t, f.manager.LeaveRoom(ctx, x))
		require.NoError(t, f.manager.LeaveRoom(ctx, o))

		// Then: the room is gone and the load was released exactly once
		_, ok := f.matchmaker.Room(room.ID)
		assert.False(t, ok)
		assert.Equal(t, int32(1), f.balancer.decrements.Load())
		assert.Len(t, x.Messages(), 1)
	})

	t.Run("Leaving a waiting room releases its slot", func(t *testing.T) {
		f := newFixture(t, nil)
		a := newTestPlayer("a")

		require.NoError(t, f.manager.FindMatch(ctx, a))
		require.NoError(t, f.manager.LeaveRoom(ctx, a))

		assert.Equal(t, int32(0), f.balancer.live())
		assert.Equal(t, "MATCH_LEFT:You left the match", a.last())
	})

	t.Run("Partner of an unstarted pair waits again", func(t *testing.T) {
		// Given: A and B paired but not started
		f := newFixture(t, nil)
		a, b, c := newTestPlayer("a"), newTestPlayer("b"), newTestPlayer("c")

		require.NoError(t, f.manager.FindMatch(ctx, a))
		require.NoError(t, f.manager.FindMatch(ctx, b))
		room, _ := f.matchmaker.RoomOf("a")
		a.reset()

		// When: B leaves
		require.NoError(t, f.manager.LeaveRoom(ctx, b))

		// Then: A is told and queued again, so C joins A's room
		assert.Equal(t, []string{
			"OPPONENT_LEFT:Your opponent left the game",
			"WAITING_FOR_OPPONENT:Waiting for another player",
		}, a.Messages())

		require.NoError(t, f.manager.FindMatch(ctx, c))

		joined, ok := f.matchmaker.RoomOf("c")
		require.True(t, ok)
		assert.Same(t, room, joined)
		assert.Equal(t, "MATCH_FOUND:Match found, ready to start", a.last())
		assert.Equal(t, int32(1), f.balancer.live())
	})

	t.Run("Leaving a finished game keeps the count", func(t *testing.T) {
		f := newFixture(t, nil)
		_, x, o := f.startedPair(t)

		f.balancer.useWorker.Store(true)
		f.workers.On("HasAvailableWorkers").Return(true)
		f.workers.On("ValidateMove", mock.Anything, mock.Anything).Return(protocol.MoveValidationResponse{IsValid: true, IsDraw: true}, nil)

		require.NoError(t, f.manager.SubmitMove(ctx, x, entity.Move{Row: 0, Col: 0}))
		assert.Equal(t, `GAME_END:{"reason":"DRAW","winner":"NONE"}`, o.last())

		require.NoError(t, f.manager.LeaveRoom(ctx, x))
		require.NoError(t, f.manager.LeaveRoom(ctx, o))

		assert.Equal(t, int32(1), f.balancer.decrements.Load())
		assert.Equal(t, 0, o.count("GAME_END:{\"reason\":\"OPPONENT_LEFT\""))
	})
}

func TestGameManager_AI(t *testing.T) {
	ctx := context.Background()

	t.Run("AI answers a human move", func(t *testing.T) {
		// Given: an AI game where the human plays X
		f := newFixture(t, nil)
		human := newTestPlayer("h")

		require.NoError(t, f.manager.PlayWithAI(ctx, human))
		room, _ := f.matchmaker.RoomOf("h")
		assert.Equal(t, []string{"PLAYER_SYMBOL:X", "AI_MATCH_FOUND:" + room.ID}, human.Messages())

		require.NoError(t, f.manager.StartGame(ctx, human))
		assert.Equal(t, `GAME_START:{"roomId":"`+room.ID+`","currentPlayer":"X"}`, human.last())

		// When: the human plays the center
		require.NoError(t, f.manager.SubmitMove(ctx, human, entity.Move{Row: 7, Col: 7}))

		// Then: the AI replies and the turn returns to the human
		require.Eventually(t, func() bool {
			return human.count("AI_MOVE:") == 1 && human.last() == `TURN_CHANGE:{"currentPlayer":"X"}`
		}, 5*time.Second, 10*time.Millisecond)

		board := room.Board()
		assert.Equal(t, 2, board.StoneCount())
		assert.Equal(t, int32(1), f.balancer.live())
	})

	t.Run("AI playing X opens the game", func(t *testing.T) {
		f := newFixture(t, []service.MatchmakingOption{service.WithAISymbol(entity.PlayerX)})
		human := newTestPlayer("h")

		require.NoError(t, f.manager.PlayWithAI(ctx, human))
		assert.Equal(t, entity.PlayerO, human.Symbol())

		require.NoError(t, f.manager.StartGame(ctx, human))

		require.Eventually(t, func() bool {
			return human.count(`AI_MOVE:{"row":7,"col":7}`) == 1
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("Illegal worker move falls back to the local search", func(t *testing.T) {
		f := newFixture(t, nil)
		f.balancer.useWorker.Store(true)
		human := newTestPlayer("h")

		f.workers.On("HasAvailableWorkers").Return(true)
		f.workers.On("ValidateMove", mock.Anything, mock.Anything).Return(protocol.MoveValidationResponse{}, errWorkerDown)
		f.workers.On("RequestAIMove", mock.Anything, mock.MatchedBy(func(request protocol.AIRequest) bool {
			return request.AISymbol == entity.PlayerO && request.RoomID != ""
		})).Return(protocol.AIResponse{Row: 7, Col: 7, IsValid: true}, nil)

		require.NoError(t, f.manager.PlayWithAI(ctx, human))
		require.NoError(t, f.manager.StartGame(ctx, human))
		require.NoError(t, f.manager.SubmitMove(ctx, human, entity.Move{Row: 7, Col: 7}))

		require.Eventually(t, func() bool {
			return human.count("AI_MOVE:") == 1
		}, 5*time.Second, 10*time.Millisecond)

		room, _ := f.matchmaker.RoomOf("h")
		board := room.Board()
		assert.Equal(t, entity.PlayerX, board[7][7])
		assert.Equal(t, 2, board.StoneCount())
	})

	t.Run("Shutdown cancels a pending AI turn", func(t *testing.T) {
		conf := DefaultConfig()
		conf.AIMoveDelay = time.Hour

		matchmaker := service.NewMatchmaker(testLogger(), service.WithAISymbol(entity.PlayerX))
		bot := service.NewBotService(engine.New(engine.WithDepth(2)))
		manager := NewGameManager(testLogger(), conf, matchmaker, &fakeBalancer{}, &mockWorkerPool{}, bot)

		human := newTestPlayer("h")
		require.NoError(t, manager.PlayWithAI(ctx, human))
		require.NoError(t, manager.StartGame(ctx, human))

		done := make(chan struct{})
		go func() {
			manager.Shutdown()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("shutdown did not return")
		}

		assert.Equal(t, 0, human.count("AI_MOVE:"))
	})
}

func TestGameManager_Cleanup(t *testing.T) {
	t.Run("Idle rooms are swept and release their slot", func(t *testing.T) {
		later := func() time.Time { return time.Now().Add(time.Hour) }
		f := newFixture(t, nil, WithClock(later))

		_, x, _ := f.startedPair(t)

		assert.Equal(t, 1, f.manager.Cleanup())
		assert.Equal(t, int32(0), f.balancer.live())

		err := f.manager.SubmitMove(context.Background(), x, entity.Move{Row: 7, Col: 7})
		require.ErrorIs(t, err, apperror.ErrGameIsNotStarted)
	})
}

func TestGameManager_Run(t *testing.T) {
	t.Run("Loops stop with the context", func(t *testing.T) {
		f := newFixture(t, nil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- f.manager.Run(ctx) }()

		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("run did not stop")
		}
	})
}

func TestGameManager_SilentWorker(t *testing.T) {
	t.Run("Validation falls back locally after the worker timeout", func(t *testing.T) {
		// Given: a registry whose only worker reads requests and never answers
		ctx := context.Background()
		timeout := 100 * time.Millisecond

		conf := worker.DefaultConfig()
		conf.ValidationTimeout = timeout

		registry := worker.NewRegistry(testLogger(), conf, worker.WithDialer(func(context.Context, string) (net.Conn, error) {
			client, server := net.Pipe()
			go func() {
				_, _ = io.Copy(io.Discard, server)
			}()

			return client, nil
		}))
		t.Cleanup(registry.Close)

		_, err := registry.AddWorker(ctx, "silent:9000")
		require.NoError(t, err)

		balancer := &fakeBalancer{}
		balancer.useWorker.Store(true)

		managerConf := DefaultConfig()
		managerConf.AIMoveDelay = 0

		bot := service.NewBotService(engine.New(engine.WithDepth(2), engine.WithBudget(time.Second)))
		manager := NewGameManager(testLogger(), managerConf, service.NewMatchmaker(testLogger()), balancer, registry, bot)
		t.Cleanup(manager.Shutdown)

		x, o := newTestPlayer("x"), newTestPlayer("o")
		require.NoError(t, manager.FindMatch(ctx, x))
		require.NoError(t, manager.FindMatch(ctx, o))
		require.NoError(t, manager.StartGame(ctx, x))
		require.NoError(t, manager.StartGame(ctx, o))

		// When: X moves
		started := time.Now()
		err = manager.SubmitMove(ctx, x, entity.Move{Row: 7, Col: 7})
		elapsed := time.Since(started)

		// Then: the move is judged locally once the timeout passes
		require.NoError(t, err)
		assert.GreaterOrEqual(t, elapsed, timeout)
		assert.Less(t, elapsed, 4*timeout)
		assert.Equal(t, 1, o.count("GAME_MOVE:"))
		assert.Equal(t, `TURN_CHANGE:{"currentPlayer":"O"}`, o.last())
	})
}
