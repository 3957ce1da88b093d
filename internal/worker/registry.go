// Package worker keeps the set of worker processes the coordinator can offload to and
// correlates requests with their responses over each worker connection.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/metrics"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/protocol"
)

var (
	ErrNoWorker          = errors.New("no available worker")
	ErrNoResponse        = errors.New("worker did not respond in time")
	ErrWorkerUnavailable = errors.New("worker is not connected")
	ErrWorkerRejected    = errors.New("worker rejected request")
	ErrDuplicateWorker   = errors.New("worker address is already registered")
)

type Config struct {
	AIMoveTimeout        time.Duration
	ValidationTimeout    time.Duration
	HealthCheckTimeout   time.Duration
	HealthCheckInterval  time.Duration
	HealthCheckStaleness time.Duration
	RegistrationTimeout  time.Duration
	MaxReconnectAttempts int
}

func DefaultConfig() Config {
	return Config{
		AIMoveTimeout:        7 * time.Second,
		ValidationTimeout:    5 * time.Second,
		HealthCheckTimeout:   3 * time.Second,
		HealthCheckInterval:  30 * time.Second,
		HealthCheckStaleness: time.Minute,
		RegistrationTimeout:  5 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

// Dialer - opens the transport to a worker address.
type Dialer func(ctx context.Context, address string) (net.Conn, error)

type Option func(*Registry)

func WithDialer(dial Dialer) Option {
	return func(r *Registry) {
		r.dial = dial
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

type Registry struct {
	logger  *slog.Logger
	conf    Config
	dial    Dialer
	metrics *metrics.Metrics
	pending *pendingTable
	now     func() time.Time

	mu    sync.Mutex
	nodes []*Node

	wg sync.WaitGroup
}

func NewRegistry(logger *slog.Logger, conf Config, opts ...Option) *Registry {
	dialer := &net.Dialer{Timeout: 5 * time.Second}

	registry := &Registry{
		logger:  logger.With("component", "worker_registry"),
		conf:    conf,
		pending: newPendingTable(),
		now:     time.Now,
		dial: func(ctx context.Context, address string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", address)
		},
	}

	for _, opt := range opts {
		opt(registry)
	}

	return registry
}

// AddWorker - connects to a worker listening on address and starts reading its responses.
// An address can be registered once; node ids are derived from it.
func (that *Registry) AddWorker(ctx context.Context, address string) (*Node, error) {
	log := that.logger.With("method", "AddWorker", "address", address)

	that.mu.Lock()
	known := that.findLocked(dialOutID(address)) != nil
	that.mu.Unlock()

	if known {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateWorker, address)
	}

	raw, err := that.dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to worker %s: %w", address, err)
	}

	node := &Node{
		ID:      dialOutID(address),
		Address: address,
	}

	that.mu.Lock()
	if that.findLocked(node.ID) != nil {
		// a concurrent AddWorker for the same address won
		that.mu.Unlock()
		_ = raw.Close()

		return nil, fmt.Errorf("%w: %s", ErrDuplicateWorker, address)
	}
	that.nodes = append(that.nodes, node)
	that.mu.Unlock()

	that.attach(node, protocol.NewConn(raw))

	log.Info("worker added", "workerID", node.ID)

	return node, nil
}

// RemoveWorker - forgets the worker and closes its connection.
func (that *Registry) RemoveWorker(id string) bool {
	that.mu.Lock()
	node := that.findLocked(id)
	if node == nil {
		that.mu.Unlock()
		return false
	}

	conn := that.detachLocked(node)
	that.removeLocked(node)
	that.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	that.logger.Info("worker removed", "workerID", id)

	return true
}

// SelectWorker - connected and healthy node with the fewest requests in flight, earliest added on ties.
func (that *Registry) SelectWorker() (*Node, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var best *Node
	for _, node := range that.nodes {
		if !node.available() {
			continue
		}

		if best == nil || node.inFlight < best.inFlight {
			best = node
		}
	}

	return best, best != nil
}

func (that *Registry) HasAvailableWorkers() bool {
	_, ok := that.SelectWorker()

	return ok
}

// Workers - snapshot of every known node.
func (that *Registry) Workers() []NodeInfo {
	that.mu.Lock()
	defer that.mu.Unlock()

	infos := make([]NodeInfo, 0, len(that.nodes))
	for _, node := range that.nodes {
		infos = append(infos, node.info())
	}

	return infos
}

// SendRequest - sends one request to node and waits for the correlated response, the timeout or ctx.
func (that *Registry) SendRequest(
	ctx context.Context,
	node *Node,
	requestType string,
	payload any,
	timeout time.Duration,
) (*protocol.Envelope, error) {
	request, err := protocol.NewRequest(requestType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s: %w", requestType, err)
	}

	conn, generation, err := that.acquire(node)
	if err != nil {
		return nil, err
	}
	defer that.release(node)

	waiter := that.pending.register(request.RequestID)
	started := that.now()

	if err = conn.Write(request); err != nil {
		that.pending.cancel(request.RequestID)
		that.markDisconnected(node, generation, err)
		that.metrics.ObserveWorkerRequest(requestType, metrics.ResultError, that.now().Sub(started))

		return nil, fmt.Errorf("failed to send %s to %s: %w", requestType, node.ID, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case response := <-waiter:
		that.metrics.ObserveWorkerRequest(requestType, metrics.ResultSuccess, that.now().Sub(started))
		return response, nil

	case <-timer.C:
		if !that.pending.cancel(request.RequestID) {
			// the response claimed the waiter first
			return <-waiter, nil
		}

		that.metrics.ObserveWorkerRequest(requestType, metrics.ResultTimeout, that.now().Sub(started))

		return nil, fmt.Errorf("%w: %s to %s after %s", ErrNoResponse, requestType, node.ID, timeout)

	case <-ctx.Done():
		if !that.pending.cancel(request.RequestID) {
			return <-waiter, nil
		}

		return nil, fmt.Errorf("%s to %s cancelled: %w", requestType, node.ID, ctx.Err())
	}
}

// RequestAIMove - asks the least loaded worker for a move.
func (that *Registry) RequestAIMove(ctx context.Context, request protocol.AIRequest) (protocol.AIResponse, error) {
	var response protocol.AIResponse

	node, ok := that.SelectWorker()
	if !ok {
		return response, ErrNoWorker
	}

	envelope, err := that.SendRequest(ctx, node, protocol.TypeAIMoveRequest, request, that.conf.AIMoveTimeout)
	if err != nil {
		return response, err
	}

	if err = decodeSuccess(envelope, &response); err != nil {
		return response, err
	}

	return response, nil
}

// ValidateMove - asks the least loaded worker to validate a move.
func (that *Registry) ValidateMove(
	ctx context.Context,
	request protocol.MoveValidationRequest,
) (protocol.MoveValidationResponse, error) {
	var response protocol.MoveValidationResponse

	node, ok := that.SelectWorker()
	if !ok {
		return response, ErrNoWorker
	}

	envelope, err := that.SendRequest(ctx, node, protocol.TypeValidateMoveRequest, request, that.conf.ValidationTimeout)
	if err != nil {
		return response, err
	}

	if err = decodeSuccess(envelope, &response); err != nil {
		return response, err
	}

	return response, nil
}

// Close - disconnects every worker and waits for the readers to stop.
func (that *Registry) Close() {
	that.mu.Lock()
	conns := make([]*protocol.Conn, 0, len(that.nodes))
	for _, node := range that.nodes {
		if conn := that.detachLocked(node); conn != nil {
			conns = append(conns, conn)
		}
	}
	that.nodes = nil
	that.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}

	that.wg.Wait()
}

func decodeSuccess(envelope *protocol.Envelope, payload any) error {
	if !envelope.IsSuccess() {
		return fmt.Errorf("%w: %s %s", ErrWorkerRejected, envelope.Type, envelope.ErrorMessage)
	}

	if err := envelope.Decode(payload); err != nil {
		return fmt.Errorf("failed to decode %s: %w", envelope.Type, err)
	}

	return nil
}

func (that *Registry) attach(node *Node, conn *protocol.Conn) {
	that.mu.Lock()
	node.conn = conn
	node.generation++
	node.connected = true
	node.healthy = true
	node.lastHealthCheck = that.now()
	node.reconnectFailures = 0
	generation := node.generation
	that.mu.Unlock()

	that.wg.Add(1)
	go that.listen(node, conn, generation)
}

func (that *Registry) acquire(node *Node) (*protocol.Conn, int, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !node.connected || node.conn == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrWorkerUnavailable, node.ID)
	}

	node.inFlight++

	return node.conn, node.generation, nil
}

func (that *Registry) release(node *Node) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if node.inFlight > 0 {
		node.inFlight--
	}
}

// markDisconnected - takes node out of selection unless it has been reconnected since generation.
func (that *Registry) markDisconnected(node *Node, generation int, cause error) {
	that.mu.Lock()
	if node.generation != generation || !node.connected {
		that.mu.Unlock()
		return
	}

	conn := that.detachLocked(node)
	if node.dialIn {
		that.removeLocked(node)
	}
	that.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	that.logger.Warn("worker disconnected", "workerID", node.ID, "error", cause)
}

func (that *Registry) detachLocked(node *Node) *protocol.Conn {
	conn := node.conn
	node.conn = nil
	node.connected = false
	node.healthy = false

	return conn
}

func (that *Registry) removeLocked(node *Node) {
	for i, candidate := range that.nodes {
		if candidate == node {
			that.nodes = append(that.nodes[:i], that.nodes[i+1:]...)
			return
		}
	}
}

func dialOutID(address string) string {
	return "worker@" + address
}

func (that *Registry) findLocked(id string) *Node {
	for _, node := range that.nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}
