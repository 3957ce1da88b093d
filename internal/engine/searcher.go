// Package engine picks moves for the computer player: forced tactical replies first,
// then a depth-limited alpha-beta search over nearby cells within a wall-clock budget.
package engine

import (
	"context"
	"sort"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
)

const (
	DefaultDepth         = 3
	DefaultBudget        = 5 * time.Second
	DefaultMaxCandidates = 20

	infinity = 1 << 30
)

var center = entity.Move{Row: entity.BoardSize / 2, Col: entity.BoardSize / 2}

type Option func(*Searcher)

func WithDepth(depth int) Option {
	return func(s *Searcher) {
		if depth > 0 {
			s.depth = depth
		}
	}
}

func WithBudget(budget time.Duration) Option {
	return func(s *Searcher) {
		if budget > 0 {
			s.budget = budget
		}
	}
}

func WithMaxCandidates(limit int) Option {
	return func(s *Searcher) {
		if limit > 0 {
			s.maxCandidates = limit
		}
	}
}

// Searcher - stateless move selector, safe for concurrent use.
type Searcher struct {
	depth         int
	budget        time.Duration
	maxCandidates int
	now           func() time.Time
}

func New(opts ...Option) *Searcher {
	searcher := &Searcher{
		depth:         DefaultDepth,
		budget:        DefaultBudget,
		maxCandidates: DefaultMaxCandidates,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(searcher)
	}

	return searcher
}

// BestMove - returns the move own should play on board, or entity.InvalidMove when the board is full.
func (that *Searcher) BestMove(ctx context.Context, board entity.Board, own string) entity.Move {
	if board.IsEmpty() {
		return center
	}

	candidates := candidateMoves(&board)
	if len(candidates) == 0 {
		return firstLegal(&board)
	}

	if move, ok := criticalMove(&board, candidates, own); ok {
		return move
	}

	deadline := that.now().Add(that.budget)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	run := &search{
		ctx:           ctx,
		board:         board,
		own:           own,
		opponent:      entity.Opponent(own),
		deadline:      deadline,
		now:           that.now,
		maxCandidates: that.maxCandidates,
	}

	return run.root(candidates, that.depth)
}

// criticalMove - forced replies in priority order: win now, block a win, create a double threat,
// block the opponent's strongest shape.
func criticalMove(board *entity.Board, candidates []entity.Move, own string) (entity.Move, bool) {
	opponent := entity.Opponent(own)

	for _, move := range candidates {
		if board.CheckWin(move.Row, move.Col, own) {
			return move, true
		}
	}

	for _, move := range candidates {
		if board.CheckWin(move.Row, move.Col, opponent) {
			return move, true
		}
	}

	for _, move := range candidates {
		board[move.Row][move.Col] = own
		threats := winningReplies(board, move, own)
		board[move.Row][move.Col] = entity.EmptyCell

		if threats >= 2 {
			return move, true
		}
	}

	best, bestThreat := entity.InvalidMove, 0
	for _, move := range candidates {
		if threat := threatLevel(board, move, opponent); threat > bestThreat {
			best, bestThreat = move, threat
		}
	}

	if bestThreat >= threatThreshold {
		return best, true
	}

	return entity.InvalidMove, false
}

// winningReplies - number of empty cells on the lines through placed that would now win for symbol.
// Only those lines can gain a winning cell when symbol had none before placing.
func winningReplies(board *entity.Board, placed entity.Move, symbol string) int {
	count := 0

	for _, axis := range axes {
		for step := -(entity.WinLength - 1); step <= entity.WinLength-1; step++ {
			if step == 0 {
				continue
			}

			row, col := placed.Row+step*axis[0], placed.Col+step*axis[1]
			if board.IsLegal(row, col) && board.CheckWin(row, col, symbol) {
				count++
			}
		}
	}

	return count
}

type search struct {
	ctx           context.Context
	board         entity.Board
	own           string
	opponent      string
	deadline      time.Time
	now           func() time.Time
	maxCandidates int
}

func (that *search) root(candidates []entity.Move, depth int) entity.Move {
	ordered := that.order(candidates, that.own)

	best, bestScore := entity.InvalidMove, -infinity
	alpha := -infinity

	for i, move := range ordered {
		if i > 0 && that.expired() {
			break
		}

		that.board[move.Row][move.Col] = that.own
		score := that.minimax(depth-1, alpha, infinity, false)
		that.board[move.Row][move.Col] = entity.EmptyCell

		if score > bestScore {
			best, bestScore = move, score
		}

		alpha = max(alpha, bestScore)
	}

	if best.IsInvalid() {
		return ordered[0]
	}

	return best
}

func (that *search) minimax(depth, alpha, beta int, maximizing bool) int {
	score := evaluate(&that.board, that.own)
	if depth <= 0 || score >= winScore || score <= -winScore || that.board.IsFull() || that.expired() {
		return score
	}

	symbol := that.opponent
	if maximizing {
		symbol = that.own
	}

	moves := that.order(candidateMoves(&that.board), symbol)

	if maximizing {
		value := -infinity
		for _, move := range moves {
			that.board[move.Row][move.Col] = symbol
			value = max(value, that.minimax(depth-1, alpha, beta, false))
			that.board[move.Row][move.Col] = entity.EmptyCell

			alpha = max(alpha, value)
			if beta <= alpha {
				break
			}
		}

		return value
	}

	value := infinity
	for _, move := range moves {
		that.board[move.Row][move.Col] = symbol
		value = min(value, that.minimax(depth-1, alpha, beta, true))
		that.board[move.Row][move.Col] = entity.EmptyCell

		beta = min(beta, value)
		if beta <= alpha {
			break
		}
	}

	return value
}

// order - sorts moves by how much they build for mover plus how much they block,
// keeping row-major order among equals, and keeps the strongest maxCandidates.
func (that *search) order(moves []entity.Move, mover string) []entity.Move {
	other := entity.Opponent(mover)

	weights := make(map[entity.Move]int, len(moves))
	for _, move := range moves {
		weights[move] = threatLevel(&that.board, move, mover) + threatLevel(&that.board, move, other)
	}

	ordered := append([]entity.Move(nil), moves...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return weights[ordered[i]] > weights[ordered[j]]
	})

	if len(ordered) > that.maxCandidates {
		ordered = ordered[:that.maxCandidates]
	}

	return ordered
}

func (that *search) expired() bool {
	return that.ctx.Err() != nil || that.now().After(that.deadline)
}
