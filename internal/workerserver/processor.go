package workerserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/protocol"
)

const healthStatusOK = "OK"

type moveSearcher interface {
	BestMove(ctx context.Context, board entity.Board, own string) entity.Move
}

// Processor - answers coordinator requests. Safe for concurrent use.
type Processor struct {
	logger   *slog.Logger
	workerID string
	searcher moveSearcher

	handlers map[string]func(ctx context.Context, request *protocol.Envelope) (*protocol.Envelope, error)

	mu        sync.Mutex
	processed int64
	failed    int64
	totalTime time.Duration
}

func NewProcessor(logger *slog.Logger, workerID string, searcher moveSearcher) *Processor {
	processor := &Processor{
		logger:   logger.With("component", "worker_processor", "workerID", workerID),
		workerID: workerID,
		searcher: searcher,
	}

	processor.handlers = map[string]func(context.Context, *protocol.Envelope) (*protocol.Envelope, error){
		protocol.TypeAIMoveRequest:       processor.handleAIMove,
		protocol.TypeValidateMoveRequest: processor.handleValidateMove,
		protocol.TypeHealthCheck:         processor.handleHealthCheck,
		protocol.TypePing:                processor.handlePing,
	}

	return processor
}

// Handle - builds the reply for request. Failures become ERROR_RESPONSE envelopes.
func (that *Processor) Handle(ctx context.Context, request *protocol.Envelope) *protocol.Envelope {
	log := that.logger.With("method", "Handle", "type", request.Type, "requestID", request.RequestID)

	handler, ok := that.handlers[request.Type]
	if !ok {
		log.Warn("unknown request type")
		return protocol.NewErrorResponse(request.RequestID, "Unknown request type: "+request.Type)
	}

	started := time.Now()
	response, err := handler(ctx, request)
	that.record(time.Since(started), err)

	if err != nil {
		log.Error("failed to process request", "error", err)
		return protocol.NewErrorResponse(request.RequestID, err.Error())
	}

	log.Debug("request processed", "elapsed", time.Since(started))

	return response
}

func (that *Processor) handleAIMove(ctx context.Context, request *protocol.Envelope) (*protocol.Envelope, error) {
	var payload protocol.AIRequest
	if err := request.Decode(&payload); err != nil {
		return nil, err
	}

	board, err := protocol.DecodeBoard(payload.Board)
	if err != nil {
		return nil, fmt.Errorf("failed to decode board: %w", err)
	}

	if payload.AISymbol != entity.PlayerX && payload.AISymbol != entity.PlayerO {
		return nil, fmt.Errorf("unknown AI symbol %q", payload.AISymbol)
	}

	move := that.searcher.BestMove(ctx, board, payload.AISymbol)

	response := protocol.AIResponse{
		Row:     move.Row,
		Col:     move.Col,
		IsValid: !move.IsInvalid(),
	}
	if move.IsInvalid() {
		response.ErrorMessage = "no available moves"
	}

	return protocol.NewResponse(request, protocol.TypeAIMoveResponse, response)
}

func (that *Processor) handleValidateMove(_ context.Context, request *protocol.Envelope) (*protocol.Envelope, error) {
	var payload protocol.MoveValidationRequest
	if err := request.Decode(&payload); err != nil {
		return nil, err
	}

	board, err := protocol.DecodeBoard(payload.Board)
	if err != nil {
		return nil, fmt.Errorf("failed to decode board: %w", err)
	}

	verdict := entity.Evaluate(board, entity.Move{Row: payload.Row, Col: payload.Col}, payload.PlayerSymbol)

	response := protocol.MoveValidationResponse{
		IsValid:   verdict.Valid,
		IsWinning: verdict.Winning,
		IsDraw:    verdict.Draw,
	}
	if !verdict.Valid {
		response.ErrorMessage = "Invalid move"
	}

	return protocol.NewResponse(request, protocol.TypeValidateMoveResponse, response)
}

func (that *Processor) handleHealthCheck(_ context.Context, request *protocol.Envelope) (*protocol.Envelope, error) {
	return protocol.NewResponse(request, protocol.TypeHealthCheckResponse, that.Health())
}

func (that *Processor) handlePing(_ context.Context, request *protocol.Envelope) (*protocol.Envelope, error) {
	return protocol.NewResponse(request, protocol.TypePong, nil)
}

// Health - counters reported in health check responses.
func (that *Processor) Health() protocol.HealthStatus {
	that.mu.Lock()
	defer that.mu.Unlock()

	var average float64
	if that.processed > 0 {
		average = float64(that.totalTime.Milliseconds()) / float64(that.processed)
	}

	return protocol.HealthStatus{
		WorkerID:      that.workerID,
		Status:        healthStatusOK,
		Processed:     that.processed,
		Failed:        that.failed,
		AverageMillis: average,
		Timestamp:     time.Now().UTC(),
	}
}

func (that *Processor) record(elapsed time.Duration, err error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.processed++
	that.totalTime += elapsed
	if err != nil {
		that.failed++
	}
}
