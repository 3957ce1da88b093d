package websocket

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
	"github.com/rocketscienceinc/gomoku-coordinator/transport/socket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

type mockCoordinator struct {
	mock.Mock
}

func (that *mockCoordinator) FindMatch(ctx context.Context, player entity.Player) error {
	return that.Called(ctx, player).Error(0)
}

func (that *mockCoordinator) PlayWithAI(ctx context.Context, player entity.Player) error {
	return that.Called(ctx, player).Error(0)
}

func (that *mockCoordinator) StartGame(ctx context.Context, player entity.Player) error {
	return that.Called(ctx, player).Error(0)
}

func (that *mockCoordinator) SubmitMove(ctx context.Context, player entity.Player, move entity.Move) error {
	return that.Called(ctx, player, move).Error(0)
}

func (that *mockCoordinator) LeaveRoom(ctx context.Context, player entity.Player) error {
	return that.Called(ctx, player).Error(0)
}

func dial(t *testing.T, coordinator *mockCoordinator) *websocket.Conn {
	t.Helper()

	server := New(testLogger(), socket.NewDispatcher(testLogger(), coordinator))

	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	messageType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)

	return string(data)
}

func TestServer_ServeWS(t *testing.T) {
	t.Run("Frames are dispatched and replies come back as frames", func(t *testing.T) {
		coordinator := &mockCoordinator{}
		left := make(chan struct{})

		// Given: a coordinator that answers PLAY_WITH_AI and a move
		coordinator.On("PlayWithAI", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
			args.Get(1).(entity.Player).Deliver("AI_MATCH_FOUND:room-1")
		}).Return(nil).Once()
		coordinator.On("SubmitMove", mock.Anything, mock.Anything, entity.Move{Row: 7, Col: 7}).Run(func(args mock.Arguments) {
			args.Get(1).(entity.Player).Deliver(`GAME_MOVE:{"row":7,"col":7,"symbol":"X"}`)
		}).Return(nil).Once()
		coordinator.On("LeaveRoom", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			close(left)
		}).Return(nil).Once()

		conn := dial(t, coordinator)

		// When: the client sends both commands
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("PLAY_WITH_AI")))
		assert.Equal(t, "AI_MATCH_FOUND:room-1", readText(t, conn))

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`GAME_MOVE:{"row":7,"col":7}`)))
		assert.Equal(t, `GAME_MOVE:{"row":7,"col":7,"symbol":"X"}`, readText(t, conn))

		// Then: closing the socket releases the seat
		require.NoError(t, conn.Close())

		select {
		case <-left:
		case <-time.After(5 * time.Second):
			t.Fatal("LeaveRoom was not called after close")
		}

		coordinator.AssertExpectations(t)
	})

	t.Run("Bad input is answered with an error frame", func(t *testing.T) {
		coordinator := &mockCoordinator{}
		coordinator.On("LeaveRoom", mock.Anything, mock.Anything).Return(nil).Maybe()

		conn := dial(t, coordinator)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("GAME_MOVE:not-json")))
		assert.Equal(t, "ERROR:Invalid move format", readText(t, conn))

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("SURRENDER")))
		assert.Equal(t, "ERROR:Unknown command", readText(t, conn))
	})
}
