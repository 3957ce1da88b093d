package service

import (
	"context"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/apperror"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
)

// BotService - local move provider used when no worker computes the AI turn.
type BotService interface {
	NextMove(ctx context.Context, board entity.Board, symbol string) (entity.Move, error)
}

type moveSearcher interface {
	BestMove(ctx context.Context, board entity.Board, own string) entity.Move
}

type botService struct {
	searcher moveSearcher
}

func NewBotService(searcher moveSearcher) BotService {
	return &botService{
		searcher: searcher,
	}
}

func (that *botService) NextMove(ctx context.Context, board entity.Board, symbol string) (entity.Move, error) {
	move := that.searcher.BestMove(ctx, board, symbol)
	if move.IsInvalid() || !board.IsLegal(move.Row, move.Col) {
		return entity.InvalidMove, apperror.ErrNoAvailableMoves
	}

	return move, nil
}
