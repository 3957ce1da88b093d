package entity

import "time"

type ResultPlayer struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	IsAI   bool   `json:"is_ai,omitempty"`
}

// GameResult - outcome of a finished room.
type GameResult struct {
	RoomID    string         `json:"room_id"`
	Reason    string         `json:"reason"`
	Winner    string         `json:"winner"`
	Players   []ResultPlayer `json:"players"`
	Moves     int            `json:"moves"`
	IsAI      bool           `json:"is_ai"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

// WinnerID - id of the winning player, empty for draws.
func (that *GameResult) WinnerID() string {
	for _, player := range that.Players {
		if player.Symbol == that.Winner {
			return player.ID
		}
	}

	return ""
}
