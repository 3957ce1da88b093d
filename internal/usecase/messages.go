package usecase

import (
	"encoding/json"
	"errors"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/apperror"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
)

// Client message prefixes. Every message is "<PREFIX>:<body>" on one line.
const (
	MessagePlayerSymbol            = "PLAYER_SYMBOL"
	MessageJoinRoom                = "JOIN_ROOM"
	MessageWaitingForOpponent      = "WAITING_FOR_OPPONENT"
	MessageMatchFound              = "MATCH_FOUND"
	MessageAIMatchFound            = "AI_MATCH_FOUND"
	MessageReadyAck                = "READY_ACK"
	MessageWaitingForOpponentReady = "WAITING_FOR_OPPONENT_READY"
	MessageOpponentReady           = "OPPONENT_READY"
	MessageGameStart               = "GAME_START"
	MessageGameMove                = "GAME_MOVE"
	MessageAIMove                  = "AI_MOVE"
	MessageTurnChange              = "TURN_CHANGE"
	MessageGameEnd                 = "GAME_END"
	MessageOpponentLeft            = "OPPONENT_LEFT"
	MessageMatchLeft               = "MATCH_LEFT"
	MessageError                   = "ERROR"
)

const (
	ReasonNotYourTurn     = "Not your turn"
	ReasonNotInActiveGame = "Not in an active game"
	ReasonInvalidMove     = "Invalid move"
	ReasonNotInRoom       = "Not in a room"
	ReasonWaitingOpponent = "Waiting for opponent"
	ReasonAlreadyInRoom   = "Already in a room"
	ReasonGameStarted     = "Game already started"
	ReasonInternal        = "Internal error"
)

type gameStartBody struct {
	RoomID        string `json:"roomId"`
	CurrentPlayer string `json:"currentPlayer"`
}

type turnChangeBody struct {
	CurrentPlayer string `json:"currentPlayer"`
}

type gameEndBody struct {
	Reason string `json:"reason"`
	Winner string `json:"winner"`
}

type gameMoveBody struct {
	Row    int    `json:"row"`
	Col    int    `json:"col"`
	Symbol string `json:"symbol"`
}

// Message - joins a prefix and a plain text body.
func Message(prefix, body string) string {
	return prefix + ":" + body
}

// ErrorMessage - ERROR line with a reason readable by the client.
func ErrorMessage(reason string) string {
	return Message(MessageError, reason)
}

func jsonMessage(prefix string, body any) string {
	// bodies are fixed structs of strings and ints, they always marshal
	data, _ := json.Marshal(body)

	return prefix + ":" + string(data)
}

func gameStartMessage(roomID, currentPlayer string) string {
	return jsonMessage(MessageGameStart, gameStartBody{RoomID: roomID, CurrentPlayer: currentPlayer})
}

func turnChangeMessage(currentPlayer string) string {
	return jsonMessage(MessageTurnChange, turnChangeBody{CurrentPlayer: currentPlayer})
}

func gameEndMessage(outcome entity.Outcome) string {
	winner := outcome.Winner
	if winner == "" {
		winner = entity.WinnerNone
	}

	return jsonMessage(MessageGameEnd, gameEndBody{Reason: outcome.Reason, Winner: winner})
}

func gameMoveMessage(move entity.Move, symbol string) string {
	return jsonMessage(MessageGameMove, gameMoveBody{Row: move.Row, Col: move.Col, Symbol: symbol})
}

func aiMoveMessage(move entity.Move) string {
	return jsonMessage(MessageAIMove, move)
}

// errorReason - maps domain errors to the reason sent back to the client.
func errorReason(err error) string {
	switch {
	case errors.Is(err, apperror.ErrNotYourTurn):
		return ReasonNotYourTurn
	case errors.Is(err, apperror.ErrInvalidMove),
		errors.Is(err, apperror.ErrCellOccupied),
		errors.Is(err, apperror.ErrInvalidCell):
		return ReasonInvalidMove
	case errors.Is(err, apperror.ErrGameIsNotStarted),
		errors.Is(err, apperror.ErrGameFinished):
		return ReasonNotInActiveGame
	case errors.Is(err, apperror.ErrNotInRoom):
		return ReasonNotInRoom
	case errors.Is(err, apperror.ErrRoomNotReady):
		return ReasonWaitingOpponent
	case errors.Is(err, apperror.ErrAlreadyInRoom):
		return ReasonAlreadyInRoom
	case errors.Is(err, apperror.ErrGameStarted):
		return ReasonGameStarted
	default:
		return ReasonInternal
	}
}
