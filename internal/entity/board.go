package entity

import (
	"fmt"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/apperror"
)

const (
	BoardSize = 15
	WinLength = 5

	PlayerX = "X"
	PlayerO = "O"

	EmptyCell = ""
)

// directions - the four axes a line of stones can run along: horizontal, vertical and both diagonals.
var directions = [4][2]int{{0, 1}, {1, 0}, {1, 1}, {1, -1}}

// Board - a 15x15 grid, cells hold EmptyCell, PlayerX or PlayerO.
type Board [BoardSize][BoardSize]string

// Move - zero-indexed board coordinates.
type Move struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// InvalidMove - returned when no move can be produced.
var InvalidMove = Move{Row: -1, Col: -1}

func (that Move) IsInvalid() bool {
	return that == InvalidMove
}

func (that Move) InBounds() bool {
	return that.Row >= 0 && that.Row < BoardSize && that.Col >= 0 && that.Col < BoardSize
}

func (that Move) String() string {
	return fmt.Sprintf("(%d,%d)", that.Row, that.Col)
}

// Verdict - result of evaluating a move against a board.
type Verdict struct {
	Valid   bool
	Winning bool
	Draw    bool
}

// Opponent - returns the other symbol.
func Opponent(symbol string) string {
	if symbol == PlayerX {
		return PlayerO
	}

	return PlayerX
}

// IsLegal - a cell is legal when it is inside the board and empty.
func (that *Board) IsLegal(row, col int) bool {
	return Move{Row: row, Col: col}.InBounds() && that[row][col] == EmptyCell
}

// Place - puts symbol on an empty cell. It never overwrites an occupied cell.
func (that *Board) Place(move Move, symbol string) error {
	if !move.InBounds() {
		return fmt.Errorf("%w: %s", apperror.ErrInvalidCell, move)
	}

	if that[move.Row][move.Col] != EmptyCell {
		return fmt.Errorf("%w: %s", apperror.ErrCellOccupied, move)
	}

	that[move.Row][move.Col] = symbol

	return nil
}

// CheckWin - reports whether a stone of symbol at (row, col) completes five or more in a row.
// The cell itself is counted once whether or not it has been placed yet.
func (that *Board) CheckWin(row, col int, symbol string) bool {
	for _, dir := range directions {
		count := 1 + that.countDirection(row, col, dir[0], dir[1], symbol) +
			that.countDirection(row, col, -dir[0], -dir[1], symbol)

		if count >= WinLength {
			return true
		}
	}

	return false
}

func (that *Board) countDirection(row, col, dRow, dCol int, symbol string) int {
	count := 0

	for r, c := row+dRow, col+dCol; r >= 0 && r < BoardSize && c >= 0 && c < BoardSize; r, c = r+dRow, c+dCol {
		if that[r][c] != symbol {
			break
		}

		count++
	}

	return count
}

func (that *Board) IsFull() bool {
	for row := range that {
		for col := range that[row] {
			if that[row][col] == EmptyCell {
				return false
			}
		}
	}

	return true
}

func (that *Board) IsEmpty() bool {
	for row := range that {
		for col := range that[row] {
			if that[row][col] != EmptyCell {
				return false
			}
		}
	}

	return true
}

// StoneCount - number of occupied cells.
func (that *Board) StoneCount() int {
	count := 0

	for row := range that {
		for col := range that[row] {
			if that[row][col] != EmptyCell {
				count++
			}
		}
	}

	return count
}

// Evaluate - validates move for symbol and reports whether it wins or draws. The board is not modified.
func Evaluate(board Board, move Move, symbol string) Verdict {
	if symbol != PlayerX && symbol != PlayerO {
		return Verdict{}
	}

	if !board.IsLegal(move.Row, move.Col) {
		return Verdict{}
	}

	board[move.Row][move.Col] = symbol

	winning := board.CheckWin(move.Row, move.Col, symbol)

	return Verdict{
		Valid:   true,
		Winning: winning,
		Draw:    !winning && board.IsFull(),
	}
}
