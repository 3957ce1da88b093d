package worker

import (
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/protocol"
)

// Node - one worker process as seen by the registry. Mutable fields are guarded by the registry lock.
type Node struct {
	ID           string
	Address      string
	Capabilities []string

	// dialIn nodes connected to us; there is nothing to redial when they drop.
	dialIn bool

	conn              *protocol.Conn
	generation        int
	connected         bool
	healthy           bool
	lastHealthCheck   time.Time
	inFlight          int
	reconnectFailures int
}

func (that *Node) available() bool {
	return that.connected && that.healthy
}

// NodeInfo - read-only view of a node.
type NodeInfo struct {
	ID              string    `json:"id"`
	Address         string    `json:"address"`
	Connected       bool      `json:"connected"`
	Healthy         bool      `json:"healthy"`
	InFlight        int       `json:"in_flight"`
	LastHealthCheck time.Time `json:"last_health_check"`
}

func (that *Node) info() NodeInfo {
	return NodeInfo{
		ID:              that.ID,
		Address:         that.Address,
		Connected:       that.connected,
		Healthy:         that.healthy,
		InFlight:        that.inFlight,
		LastHealthCheck: that.lastHealthCheck,
	}
}
