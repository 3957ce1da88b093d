package engine

import "github.com/rocketscienceinc/gomoku-coordinator/internal/entity"

const (
	winScore        = 50000
	threatThreshold = 100
	candidateRadius = 2
)

var axes = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// patternScore - value of a run of count stones with open free ends.
func patternScore(count, open int) int {
	switch {
	case count >= entity.WinLength:
		return winScore
	case count == 4 && open == 2:
		return 4000
	case count == 4 && open == 1:
		return 1000
	case count == 3 && open == 2:
		return 300
	case count == 3 && open == 1:
		return 100
	case count == 2 && open == 2:
		return 30
	case count == 2 && open == 1:
		return 10
	default:
		return count
	}
}

// lineShape - length of the symbol run through (row, col) along one axis and how many of its ends are free.
// The cell itself always counts, so it can be used to score a hypothetical stone.
func lineShape(board *entity.Board, row, col, dRow, dCol int, symbol string) (int, int) {
	count, open := 1, 0

	for _, sign := range [2]int{1, -1} {
		r, c := row+sign*dRow, col+sign*dCol
		for inBounds(r, c) && board[r][c] == symbol {
			count++
			r, c = r+sign*dRow, c+sign*dCol
		}

		if inBounds(r, c) && board[r][c] == entity.EmptyCell {
			open++
		}
	}

	return count, open
}

// threatLevel - best pattern symbol would get by playing at move.
func threatLevel(board *entity.Board, move entity.Move, symbol string) int {
	best := 0

	for _, axis := range axes {
		count, open := lineShape(board, move.Row, move.Col, axis[0], axis[1], symbol)
		if score := patternScore(count, open); score > best {
			best = score
		}
	}

	return best
}

// evaluate - static score of the position from own's point of view.
func evaluate(board *entity.Board, own string) int {
	score := 0

	for row := range board {
		for col := range board[row] {
			symbol := board[row][col]
			if symbol == entity.EmptyCell {
				continue
			}

			stone := 0
			for _, axis := range axes {
				stone += patternScore(lineShape(board, row, col, axis[0], axis[1], symbol))
			}

			if symbol == own {
				score += stone
			} else {
				score -= stone
			}
		}
	}

	return score
}

// candidateMoves - empty cells within candidateRadius of any stone, row-major.
func candidateMoves(board *entity.Board) []entity.Move {
	var near [entity.BoardSize][entity.BoardSize]bool

	for row := range board {
		for col := range board[row] {
			if board[row][col] == entity.EmptyCell {
				continue
			}

			for r := row - candidateRadius; r <= row+candidateRadius; r++ {
				for c := col - candidateRadius; c <= col+candidateRadius; c++ {
					if inBounds(r, c) {
						near[r][c] = true
					}
				}
			}
		}
	}

	moves := make([]entity.Move, 0, 64)
	for row := range board {
		for col := range board[row] {
			if near[row][col] && board[row][col] == entity.EmptyCell {
				moves = append(moves, entity.Move{Row: row, Col: col})
			}
		}
	}

	return moves
}

func firstLegal(board *entity.Board) entity.Move {
	for row := range board {
		for col := range board[row] {
			if board[row][col] == entity.EmptyCell {
				return entity.Move{Row: row, Col: col}
			}
		}
	}

	return entity.InvalidMove
}

func inBounds(row, col int) bool {
	return row >= 0 && row < entity.BoardSize && col >= 0 && col < entity.BoardSize
}
