package protocol

import (
	"errors"
	"fmt"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
)

const (
	CapabilityAIMove       = "AI_MOVE"
	CapabilityValidateMove = "VALIDATE_MOVE"
)

var ErrInvalidBoard = errors.New("invalid board")

// WireBoard - the board as 15 rows of 15 cells.
type WireBoard [][]string

type AIRequest struct {
	Board    WireBoard `json:"board"`
	AISymbol string    `json:"aiSymbol"`
	RoomID   string    `json:"roomId"`
}

type AIResponse struct {
	Row          int    `json:"row"`
	Col          int    `json:"col"`
	IsValid      bool   `json:"isValid"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func (that AIResponse) Move() entity.Move {
	return entity.Move{Row: that.Row, Col: that.Col}
}

type MoveValidationRequest struct {
	Board        WireBoard `json:"board"`
	Row          int       `json:"row"`
	Col          int       `json:"col"`
	PlayerSymbol string    `json:"playerSymbol"`
}

type MoveValidationResponse struct {
	IsValid      bool   `json:"isValid"`
	IsWinning    bool   `json:"isWinning"`
	IsDraw       bool   `json:"isDraw"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func (that MoveValidationResponse) Verdict() entity.Verdict {
	return entity.Verdict{Valid: that.IsValid, Winning: that.IsWinning, Draw: that.IsDraw}
}

type Registration struct {
	WorkerID     string   `json:"workerId"`
	Capabilities []string `json:"capabilities"`
}

type HealthStatus struct {
	WorkerID      string    `json:"workerId"`
	Status        string    `json:"status"`
	Processed     int64     `json:"processed"`
	Failed        int64     `json:"failed"`
	AverageMillis float64   `json:"averageMillis"`
	Timestamp     time.Time `json:"timestamp"`
}

// EncodeBoard - converts a board to its wire form.
func EncodeBoard(board entity.Board) WireBoard {
	wire := make(WireBoard, entity.BoardSize)
	for row := range board {
		wire[row] = make([]string, entity.BoardSize)
		copy(wire[row], board[row][:])
	}

	return wire
}

// DecodeBoard - converts the wire form back, rejecting wrong dimensions and unknown symbols.
func DecodeBoard(wire WireBoard) (entity.Board, error) {
	var board entity.Board

	if len(wire) != entity.BoardSize {
		return board, fmt.Errorf("%w: %d rows", ErrInvalidBoard, len(wire))
	}

	for row := range wire {
		if len(wire[row]) != entity.BoardSize {
			return board, fmt.Errorf("%w: row %d has %d cells", ErrInvalidBoard, row, len(wire[row]))
		}

		for col, cell := range wire[row] {
			switch cell {
			case entity.EmptyCell, entity.PlayerX, entity.PlayerO:
				board[row][col] = cell
			default:
				return board, fmt.Errorf("%w: cell (%d,%d) holds %q", ErrInvalidBoard, row, col, cell)
			}
		}
	}

	return board, nil
}
