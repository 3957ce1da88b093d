package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/entity"
)

var ErrResultNotFound = errors.New("game result not found")

const (
	resultKeyPrefix = "result:"
	historyKeyFmt   = "player:%s:results"
	totalsKey       = "results:totals"

	historyLimit = 100
	resultTTL    = 30 * 24 * time.Hour
)

type ResultRepository interface {
	Save(ctx context.Context, result *entity.GameResult) error
	GetByRoomID(ctx context.Context, roomID string) (*entity.GameResult, error)
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]*entity.GameResult, error)
	Totals(ctx context.Context) (map[string]int64, error)
}

type dbResult struct {
	client *redis.Client
}

func NewResultRepository(client *redis.Client) ResultRepository {
	return &dbResult{
		client: client,
	}
}

// Save - stores the result, prepends it to every human player's history and bumps the per-reason totals.
func (that *dbResult) Save(ctx context.Context, result *entity.GameResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("could not marshal result: %w", err)
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, resultKeyPrefix+result.RoomID, resultJSON, resultTTL)

		for _, player := range result.Players {
			if player.IsAI {
				continue
			}

			historyKey := fmt.Sprintf(historyKeyFmt, player.ID)
			pipe.LPush(ctx, historyKey, result.RoomID)
			pipe.LTrim(ctx, historyKey, 0, historyLimit-1)
		}

		pipe.HIncrBy(ctx, totalsKey, result.Reason, 1)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	return nil
}

func (that *dbResult) GetByRoomID(ctx context.Context, roomID string) (*entity.GameResult, error) {
	response, err := that.client.Get(ctx, resultKeyPrefix+roomID).Result()
	if errors.Is(err, redis.Nil) {
		return &entity.GameResult{}, ErrResultNotFound
	}

	if err != nil {
		return &entity.GameResult{}, fmt.Errorf("failed to get result by room id: %w", err)
	}

	var result entity.GameResult
	if err = json.Unmarshal([]byte(response), &result); err != nil {
		return &entity.GameResult{}, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return &result, nil
}

// ListByPlayer - newest first. Results that already expired are skipped.
func (that *dbResult) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*entity.GameResult, error) {
	if limit <= 0 || limit > historyLimit {
		limit = historyLimit
	}

	roomIDs, err := that.client.LRange(ctx, fmt.Sprintf(historyKeyFmt, playerID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list player results: %w", err)
	}

	results := make([]*entity.GameResult, 0, len(roomIDs))
	for _, roomID := range roomIDs {
		result, err := that.GetByRoomID(ctx, roomID)
		if errors.Is(err, ErrResultNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		results = append(results, result)
	}

	return results, nil
}

// Totals - finished games per end reason.
func (that *dbResult) Totals(ctx context.Context) (map[string]int64, error) {
	raw, err := that.client.HGetAll(ctx, totalsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get result totals: %w", err)
	}

	totals := make(map[string]int64, len(raw))
	for reason, value := range raw {
		count, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse total for %s: %w", reason, err)
		}

		totals[reason] = count
	}

	return totals, nil
}
