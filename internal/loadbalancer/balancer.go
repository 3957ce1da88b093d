package loadbalancer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/metrics"
)

const (
	DefaultMaxConcurrentGames = 100
	DefaultMediumThreshold    = 50
	DefaultHighThreshold      = 80
)

type Level int

const (
	LevelLow Level = iota
	LevelMedium
	LevelHigh
)

func (that Level) String() string {
	switch that {
	case LevelMedium:
		return "MEDIUM"
	case LevelHigh:
		return "HIGH"
	default:
		return "LOW"
	}
}

func (that Level) MarshalText() ([]byte, error) {
	return []byte(that.String()), nil
}

func (that *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "LOW":
		*that = LevelLow
	case "MEDIUM":
		*that = LevelMedium
	case "HIGH":
		*that = LevelHigh
	default:
		return fmt.Errorf("unknown load level %q", text)
	}

	return nil
}

type Operation string

const (
	OperationAIMove         Operation = "ai_move"
	OperationMoveValidation Operation = "move_validation"
	OperationGameLogic      Operation = "game_logic"
	OperationMatchmaking    Operation = "matchmaking"
)

// Snapshot - load figures at one instant.
type Snapshot struct {
	SystemLoad   int       `json:"system_load"`
	GameLoad     int       `json:"game_load"`
	CurrentGames int       `json:"current_games"`
	Level        Level     `json:"level"`
	Timestamp    time.Time `json:"timestamp"`
}

type Option func(*Balancer)

func WithMaxConcurrentGames(limit int) Option {
	return func(b *Balancer) {
		if limit > 0 {
			b.maxConcurrentGames = limit
		}
	}
}

func WithThresholds(medium, high int) Option {
	return func(b *Balancer) {
		if medium > 0 && high >= medium {
			b.mediumThreshold = medium
			b.highThreshold = high
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Balancer) {
		b.metrics = m
	}
}

// Balancer - decides per operation whether offloading to a worker is worth it.
type Balancer struct {
	logger  *slog.Logger
	sampler Sampler
	metrics *metrics.Metrics

	maxConcurrentGames int
	mediumThreshold    int
	highThreshold      int

	mu           sync.Mutex
	currentGames int
}

func New(logger *slog.Logger, sampler Sampler, opts ...Option) *Balancer {
	balancer := &Balancer{
		logger:  logger.With("component", "load_balancer"),
		sampler: sampler,

		maxConcurrentGames: DefaultMaxConcurrentGames,
		mediumThreshold:    DefaultMediumThreshold,
		highThreshold:      DefaultHighThreshold,
	}

	for _, opt := range opts {
		opt(balancer)
	}

	return balancer
}

func (that *Balancer) IncrementLoad() {
	that.mu.Lock()
	that.currentGames++
	games := that.currentGames
	that.mu.Unlock()

	that.metrics.SetLiveRooms(games)
}

// DecrementLoad - never goes below zero.
func (that *Balancer) DecrementLoad() {
	that.mu.Lock()
	if that.currentGames > 0 {
		that.currentGames--
	}
	games := that.currentGames
	that.mu.Unlock()

	that.metrics.SetLiveRooms(games)
}

func (that *Balancer) CurrentGames() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.currentGames
}

func (that *Balancer) Snapshot(ctx context.Context) Snapshot {
	log := that.logger.With("method", "Snapshot")

	system, err := that.sampler.SystemLoad(ctx)
	if err != nil {
		log.Debug("system load unavailable", "error", err)
		system = 0
	}

	system = min(max(system, 0), 100)

	games := that.CurrentGames()
	gameLoad := games * 100 / that.maxConcurrentGames

	return Snapshot{
		SystemLoad:   system,
		GameLoad:     gameLoad,
		CurrentGames: games,
		Level:        that.levelOf(max(system, gameLoad)),
		Timestamp:    time.Now().UTC(),
	}
}

func (that *Balancer) Level(ctx context.Context) Level {
	return that.Snapshot(ctx).Level
}

// ShouldUseWorker - AI search is offloaded from medium load, validation and game logic only under high load.
func (that *Balancer) ShouldUseWorker(ctx context.Context, operation Operation) bool {
	level := that.Level(ctx)

	switch operation {
	case OperationAIMove:
		return level >= LevelMedium
	case OperationMoveValidation, OperationGameLogic:
		return level >= LevelHigh
	default:
		return false
	}
}

// Monitor - logs and publishes the load snapshot every interval until ctx is done.
func (that *Balancer) Monitor(ctx context.Context, interval time.Duration) error {
	log := that.logger.With("method", "Monitor")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snapshot := that.Snapshot(ctx)
			that.metrics.SetLoad(snapshot.SystemLoad, max(snapshot.SystemLoad, snapshot.GameLoad))

			log.Info("load stats",
				"systemLoad", snapshot.SystemLoad,
				"gameLoad", snapshot.GameLoad,
				"currentGames", snapshot.CurrentGames,
				"level", snapshot.Level.String(),
			)
		}
	}
}

func (that *Balancer) levelOf(load int) Level {
	switch {
	case load >= that.highThreshold:
		return LevelHigh
	case load >= that.mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}
