package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stones(board *entity.Board, symbol string, cells ...[2]int) {
	for _, cell := range cells {
		board[cell[0]][cell[1]] = symbol
	}
}

func TestSearcher_BestMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty board plays the center", func(t *testing.T) {
		var board entity.Board

		move := New().BestMove(ctx, board, entity.PlayerX)

		assert.Equal(t, entity.Move{Row: 7, Col: 7}, move)
	})

	t.Run("Blocks an open four", func(t *testing.T) {
		// Given: X at (7,7)..(7,10) and O to move
		var board entity.Board
		stones(&board, entity.PlayerX, [2]int{7, 7}, [2]int{7, 8}, [2]int{7, 9}, [2]int{7, 10})
		stones(&board, entity.PlayerO, [2]int{8, 8}, [2]int{6, 6})

		// When: the engine picks a move for O
		move := New().BestMove(ctx, board, entity.PlayerO)

		// Then: it blocks one end, the first one in row-major order
		assert.Equal(t, entity.Move{Row: 7, Col: 6}, move)
	})

	t.Run("Own win beats blocking", func(t *testing.T) {
		// Given: both sides have four, O to move
		var board entity.Board
		stones(&board, entity.PlayerO, [2]int{3, 3}, [2]int{3, 4}, [2]int{3, 5}, [2]int{3, 6})
		stones(&board, entity.PlayerX, [2]int{10, 3}, [2]int{10, 4}, [2]int{10, 5}, [2]int{10, 6})

		// When: O moves
		move := New().BestMove(ctx, board, entity.PlayerO)

		// Then: O completes five
		assert.Equal(t, 3, move.Row)
		assert.Contains(t, []int{2, 7}, move.Col)
		assert.True(t, board.CheckWin(move.Row, move.Col, entity.PlayerO))
	})

	t.Run("Creates a double threat", func(t *testing.T) {
		// Given: X has an open three on row 5, O is scattered far away
		var board entity.Board
		stones(&board, entity.PlayerX, [2]int{5, 5}, [2]int{5, 6}, [2]int{5, 7})
		stones(&board, entity.PlayerO, [2]int{12, 1}, [2]int{12, 13})

		// When: X moves
		move := New().BestMove(ctx, board, entity.PlayerX)

		// Then: X makes an open four with two winning cells
		assert.Contains(t, []entity.Move{{Row: 5, Col: 4}, {Row: 5, Col: 8}}, move)

		board[move.Row][move.Col] = entity.PlayerX
		assert.GreaterOrEqual(t, winningReplies(&board, move, entity.PlayerX), 2)
	})

	t.Run("Blocks an open three", func(t *testing.T) {
		// Given: O has an open three, X has a lone stone in the corner
		var board entity.Board
		stones(&board, entity.PlayerO, [2]int{7, 6}, [2]int{7, 7}, [2]int{7, 8})
		stones(&board, entity.PlayerX, [2]int{0, 0})

		// When: X moves
		move := New().BestMove(ctx, board, entity.PlayerX)

		// Then: X closes one end of the three
		assert.Contains(t, []entity.Move{{Row: 7, Col: 5}, {Row: 7, Col: 9}}, move)
	})

	t.Run("Quiet position goes through the search", func(t *testing.T) {
		var board entity.Board
		stones(&board, entity.PlayerX, [2]int{7, 7})

		move := New(WithDepth(2)).BestMove(ctx, board, entity.PlayerO)

		require.True(t, board.IsLegal(move.Row, move.Col))
		assert.LessOrEqual(t, abs(move.Row-7), candidateRadius)
		assert.LessOrEqual(t, abs(move.Col-7), candidateRadius)
	})

	t.Run("Same position gives the same move", func(t *testing.T) {
		var board entity.Board
		stones(&board, entity.PlayerX, [2]int{7, 7}, [2]int{8, 9})
		stones(&board, entity.PlayerO, [2]int{6, 8})

		searcher := New(WithDepth(2))

		assert.Equal(t, searcher.BestMove(ctx, board, entity.PlayerO), searcher.BestMove(ctx, board, entity.PlayerO))
	})

	t.Run("Expired budget still returns a legal move", func(t *testing.T) {
		// Given: a clock that jumps an hour after the search starts
		var board entity.Board
		stones(&board, entity.PlayerX, [2]int{7, 7})
		stones(&board, entity.PlayerO, [2]int{7, 8})

		start := time.Now()
		calls := 0
		searcher := New(WithBudget(time.Second))
		searcher.now = func() time.Time {
			calls++
			if calls > 1 {
				return start.Add(time.Hour)
			}
			return start
		}

		// When: the engine searches
		move := searcher.BestMove(ctx, board, entity.PlayerX)

		// Then: the first ordered candidate is returned
		assert.True(t, board.IsLegal(move.Row, move.Col))
	})

	t.Run("Cancelled context still returns a legal move", func(t *testing.T) {
		var board entity.Board
		stones(&board, entity.PlayerX, [2]int{4, 4})

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		move := New().BestMove(cancelled, board, entity.PlayerO)

		assert.True(t, board.IsLegal(move.Row, move.Col))
	})

	t.Run("Full board has no move", func(t *testing.T) {
		var board entity.Board
		for row := range board {
			for col := range board[row] {
				board[row][col] = entity.PlayerX
			}
		}

		move := New().BestMove(ctx, board, entity.PlayerO)

		assert.Equal(t, entity.InvalidMove, move)
	})
}

func TestCandidateMoves(t *testing.T) {
	// Given: a single stone in the corner
	var board entity.Board
	board[0][0] = entity.PlayerX

	// When: candidates are generated
	moves := candidateMoves(&board)

	// Then: every empty cell within distance two, row-major
	require.Len(t, moves, 8)
	assert.Equal(t, entity.Move{Row: 0, Col: 1}, moves[0])
	assert.Equal(t, entity.Move{Row: 2, Col: 2}, moves[len(moves)-1])
	for _, move := range moves {
		assert.True(t, board.IsLegal(move.Row, move.Col))
	}
}

func TestPatternScore(t *testing.T) {
	cases := []struct {
		count, open, want int
	}{
		{count: 5, open: 0, want: winScore},
		{count: 6, open: 2, want: winScore},
		{count: 4, open: 2, want: 4000},
		{count: 4, open: 1, want: 1000},
		{count: 3, open: 2, want: 300},
		{count: 3, open: 1, want: 100},
		{count: 2, open: 2, want: 30},
		{count: 2, open: 1, want: 10},
		{count: 4, open: 0, want: 4},
		{count: 1, open: 2, want: 1},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, patternScore(tc.count, tc.open), "count=%d open=%d", tc.count, tc.open)
	}
}

func TestEvaluate_IsAntisymmetric(t *testing.T) {
	var board entity.Board
	stones(&board, entity.PlayerX, [2]int{7, 7}, [2]int{7, 8}, [2]int{8, 8})
	stones(&board, entity.PlayerO, [2]int{6, 6}, [2]int{9, 9})

	assert.Equal(t, evaluate(&board, entity.PlayerX), -evaluate(&board, entity.PlayerO))
	assert.Positive(t, evaluate(&board, entity.PlayerX))
}

func abs(value int) int {
	if value < 0 {
		return -value
	}

	return value
}
