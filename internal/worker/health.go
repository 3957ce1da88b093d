package worker

import (
	"context"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/protocol"
	"golang.org/x/sync/errgroup"
)

// HealthCheck - pings node and records whether it answered successfully.
func (that *Registry) HealthCheck(ctx context.Context, node *Node) bool {
	log := that.logger.With("method", "HealthCheck", "workerID", node.ID)

	envelope, err := that.SendRequest(ctx, node, protocol.TypeHealthCheck, nil, that.conf.HealthCheckTimeout)
	healthy := err == nil && envelope.IsSuccess() && envelope.Type == protocol.TypeHealthCheckResponse

	that.mu.Lock()
	node.healthy = healthy && node.connected
	node.lastHealthCheck = that.now()
	that.mu.Unlock()

	if !healthy {
		log.Warn("worker failed health check", "error", err)
	}

	return healthy
}

// RunHealthChecks - every interval, checks nodes whose last check is stale and redials dropped ones.
func (that *Registry) RunHealthChecks(ctx context.Context) error {
	ticker := time.NewTicker(that.conf.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			that.checkAll(ctx)
		}
	}
}

func (that *Registry) checkAll(ctx context.Context) {
	type job struct {
		node      *Node
		connected bool
		due       bool
	}

	that.mu.Lock()
	jobs := make([]job, 0, len(that.nodes))
	for _, node := range that.nodes {
		jobs = append(jobs, job{
			node:      node,
			connected: node.connected,
			due:       that.now().Sub(node.lastHealthCheck) >= that.conf.HealthCheckStaleness,
		})
	}
	that.mu.Unlock()

	var group errgroup.Group
	for _, item := range jobs {
		group.Go(func() error {
			switch {
			case !item.connected && !item.node.dialIn:
				that.reconnect(ctx, item.node)
			case item.connected && item.due:
				that.HealthCheck(ctx, item.node)
			}

			return nil
		})
	}

	_ = group.Wait()

	that.metrics.SetWorkersAvailable(that.availableCount())
}

// reconnect - redials a dropped node; after MaxReconnectAttempts consecutive failures the node is removed.
func (that *Registry) reconnect(ctx context.Context, node *Node) {
	log := that.logger.With("method", "reconnect", "workerID", node.ID)

	raw, err := that.dial(ctx, node.Address)
	if err != nil {
		that.mu.Lock()
		node.reconnectFailures++
		failures := node.reconnectFailures
		removed := that.conf.MaxReconnectAttempts > 0 && failures >= that.conf.MaxReconnectAttempts
		if removed {
			that.removeLocked(node)
		}
		that.mu.Unlock()

		if removed {
			log.Error("worker removed after failed reconnects", "attempts", failures, "error", err)
		} else {
			log.Warn("worker reconnect failed", "attempt", failures, "error", err)
		}

		return
	}

	that.attach(node, protocol.NewConn(raw))

	log.Info("worker reconnected")
}

func (that *Registry) availableCount() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	count := 0
	for _, node := range that.nodes {
		if node.available() {
			count++
		}
	}

	return count
}
