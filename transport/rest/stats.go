package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/loadbalancer"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/service"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/worker"
)

type loadReporter interface {
	Snapshot(ctx context.Context) loadbalancer.Snapshot
}

type roomReporter interface {
	Stats() service.MatchmakingStats
}

type workerReporter interface {
	Workers() []worker.NodeInfo
}

type resultReporter interface {
	Totals(ctx context.Context) (map[string]int64, error)
}

// Stats - body of GET /stats.
type Stats struct {
	Load    loadbalancer.Snapshot    `json:"load"`
	Rooms   service.MatchmakingStats `json:"rooms"`
	Workers []worker.NodeInfo        `json:"workers"`
	Results map[string]int64         `json:"results,omitempty"`
}

type statsHandler struct {
	logger *slog.Logger

	load    loadReporter
	rooms   roomReporter
	workers workerReporter
	results resultReporter
}

func (that *statsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "Stats")

	stats := Stats{
		Load:    that.load.Snapshot(r.Context()),
		Rooms:   that.rooms.Stats(),
		Workers: that.workers.Workers(),
	}

	if stats.Workers == nil {
		stats.Workers = []worker.NodeInfo{}
	}

	if that.results != nil {
		totals, err := that.results.Totals(r.Context())
		if err != nil {
			// stats stay useful without the stored totals
			log.Warn("failed to read result totals", "error", err)
		} else {
			stats.Results = totals
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error("failed to write stats", "error", err)
	}
}
