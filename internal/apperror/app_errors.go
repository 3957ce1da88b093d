package apperror

import "errors"

var (
	ErrGameFinished     = errors.New("game is already finished")
	ErrGameIsNotStarted = errors.New("game is not started")
	ErrGameStarted      = errors.New("game is already started")
	ErrNotYourTurn      = errors.New("it's not your turn")
	ErrCellOccupied     = errors.New("cell is already occupied")
	ErrInvalidCell      = errors.New("invalid cell")
	ErrInvalidMove      = errors.New("invalid move")
	ErrRoomIsFull       = errors.New("room is full")
	ErrRoomNotReady     = errors.New("room is not ready to start")
	ErrNotInRoom        = errors.New("player is not in a room")
	ErrAlreadyInRoom    = errors.New("player is already in a room")
	ErrNoAvailableMoves = errors.New("no available moves")
)
