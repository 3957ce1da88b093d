package usecase

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/engine"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/loadbalancer"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/protocol"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/service"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

type testPlayer struct {
	id string

	mu       sync.Mutex
	symbol   string
	messages []string
}

func newTestPlayer(id string) *testPlayer {
	return &testPlayer{id: id}
}

func (that *testPlayer) ID() string { return that.id }

func (that *testPlayer) Symbol() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.symbol
}

func (that *testPlayer) AssignSymbol(symbol string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.symbol = symbol
}

func (that *testPlayer) Deliver(message string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.messages = append(that.messages, message)
}

func (that *testPlayer) IsAI() bool { return false }

func (that *testPlayer) IsConnected() bool { return true }

func (that *testPlayer) Messages() []string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]string(nil), that.messages...)
}

// count - number of received messages starting with prefix.
func (that *testPlayer) count(prefix string) int {
	count := 0
	for _, message := range that.Messages() {
		if strings.HasPrefix(message, prefix) {
			count++
		}
	}

	return count
}

func (that *testPlayer) last() string {
	messages := that.Messages()
	if len(messages) == 0 {
		return ""
	}

	return messages[len(messages)-1]
}

func (that *testPlayer) reset() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.messages = nil
}

type fakeBalancer struct {
	useWorker  atomic.Bool
	increments atomic.Int32
	decrements atomic.Int32
}

func (that *fakeBalancer) IncrementLoad() { that.increments.Add(1) }

func (that *fakeBalancer) DecrementLoad() { that.decrements.Add(1) }

func (that *fakeBalancer) ShouldUseWorker(context.Context, loadbalancer.Operation) bool {
	return that.useWorker.Load()
}

func (that *fakeBalancer) Monitor(ctx context.Context, _ time.Duration) error {
	<-ctx.Done()
	return nil
}

func (that *fakeBalancer) live() int32 {
	return that.increments.Load() - that.decrements.Load()
}

type mockWorkerPool struct {
	mock.Mock
}

func (that *mockWorkerPool) HasAvailableWorkers() bool {
	return that.Called().Bool(0)
}

func (that *mockWorkerPool) RequestAIMove(ctx context.Context, request protocol.AIRequest) (protocol.AIResponse, error) {
	args := that.Called(ctx, request)

	return args.Get(0).(protocol.AIResponse), args.Error(1)
}

func (that *mockWorkerPool) ValidateMove(
	ctx context.Context,
	request protocol.MoveValidationRequest,
) (protocol.MoveValidationResponse, error) {
	args := that.Called(ctx, request)

	return args.Get(0).(protocol.MoveValidationResponse), args.Error(1)
}

func (that *mockWorkerPool) RunHealthChecks(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

type mockRecorder struct {
	mock.Mock
}

func (that *mockRecorder) Save(ctx context.Context, result *entity.GameResult) error {
	return that.Called(ctx, result).Error(0)
}

type fixture struct {
	manager    *GameManager
	matchmaker *service.Matchmaker
	balancer   *fakeBalancer
	workers    *mockWorkerPool
}

func newFixture(t *testing.T, matchmakingOpts []service.MatchmakingOption, opts ...Option) *fixture {
	t.Helper()

	conf := DefaultConfig()
	conf.AIMoveDelay = 0

	f := &fixture{
		matchmaker: service.NewMatchmaker(testLogger(), matchmakingOpts...),
		balancer:   &fakeBalancer{},
		workers:    &mockWorkerPool{},
	}

	bot := service.NewBotService(engine.New(engine.WithDepth(2), engine.WithBudget(time.Second)))
	f.manager = NewGameManager(testLogger(), conf, f.matchmaker, f.balancer, f.workers, bot, opts...)

	t.Cleanup(f.manager.Shutdown)

	return f
}

// startedPair - two humans seated and started, X to move.
func (that *fixture) startedPair(t *testing.T) (*entity.Room, *testPlayer, *testPlayer) {
	t.Helper()

	ctx := context.Background()
	x, o := newTestPlayer("x"), newTestPlayer("o")

	require.NoError(t, that.manager.FindMatch(ctx, x))
	require.NoError(t, that.manager.FindMatch(ctx, o))
	require.NoError(t, that.manager.StartGame(ctx, x))
	require.NoError(t, that.manager.StartGame(ctx, o))

	room, ok := that.matchmaker.RoomOf("x")
	require.True(t, ok)

	x.reset()
	o.reset()

	return room, x, o
}
