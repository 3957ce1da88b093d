package worker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/pkg"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/protocol"
)

var noDeadline time.Time

// listen - reads envelopes from one worker connection until it fails.
func (that *Registry) listen(node *Node, conn *protocol.Conn, generation int) {
	defer that.wg.Done()

	log := that.logger.With("method", "listen", "workerID", node.ID)

	for {
		envelope, err := conn.Read()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedEnvelope) {
				log.Warn("dropping malformed envelope", "error", err)
				continue
			}

			that.markDisconnected(node, generation, err)

			return
		}

		switch {
		case envelope.Type == protocol.TypePing:
			that.reply(conn, envelope, protocol.TypePong)

		case that.pending.resolve(envelope):
			// a waiting request took it

		default:
			log.Debug("dropping unmatched envelope", "type", envelope.Type, "requestID", envelope.RequestID)
		}
	}
}

func (that *Registry) reply(conn *protocol.Conn, request *protocol.Envelope, responseType string) {
	response, err := protocol.NewResponse(request, responseType, nil)
	if err != nil {
		that.logger.Error("failed to build response", "type", responseType, "error", err)
		return
	}

	if err = conn.Write(response); err != nil {
		that.logger.Warn("failed to write response", "type", responseType, "error", err)
	}
}

// ServeWorkers - accepts workers that dial in and register themselves, until ctx is done.
func (that *Registry) ServeWorkers(ctx context.Context, listener net.Listener) error {
	log := that.logger.With("method", "ServeWorkers", "address", listener.Addr().String())

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	log.Info("accepting worker registrations")

	for {
		raw, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("failed to accept worker connection: %w", err)
		}

		that.wg.Add(1)
		go func() {
			defer that.wg.Done()

			if err := that.register(raw); err != nil {
				log.Warn("worker registration failed", "remote", raw.RemoteAddr().String(), "error", err)
				_ = raw.Close()
			}
		}()
	}
}

// register - expects WORKER_REGISTRATION as the first envelope and acknowledges it.
func (that *Registry) register(raw net.Conn) error {
	conn := protocol.NewConn(raw)

	if err := raw.SetReadDeadline(that.now().Add(that.conf.RegistrationTimeout)); err != nil {
		return fmt.Errorf("failed to set registration deadline: %w", err)
	}

	envelope, err := conn.Read()
	if err != nil {
		return fmt.Errorf("failed to read registration: %w", err)
	}

	if err = raw.SetReadDeadline(noDeadline); err != nil {
		return fmt.Errorf("failed to clear registration deadline: %w", err)
	}

	if envelope.Type != protocol.TypeWorkerRegistration {
		_ = conn.Write(protocol.NewErrorResponse(envelope.RequestID, "expected "+protocol.TypeWorkerRegistration))
		return fmt.Errorf("unexpected first envelope %s", envelope.Type)
	}

	var registration protocol.Registration
	if err = envelope.Decode(&registration); err != nil {
		_ = conn.Write(protocol.NewErrorResponse(envelope.RequestID, err.Error()))
		return err
	}

	if registration.WorkerID == "" {
		registration.WorkerID = pkg.GenerateWorkerID()
	}

	ack, err := protocol.NewResponse(envelope, protocol.TypeWorkerRegistrationAck, registration)
	if err != nil {
		return fmt.Errorf("failed to build registration ack: %w", err)
	}

	// acknowledge before the node becomes selectable so the ack is the first line the worker reads
	if err = conn.Write(ack); err != nil {
		return fmt.Errorf("failed to acknowledge registration: %w", err)
	}

	node := &Node{
		ID:           registration.WorkerID,
		Address:      raw.RemoteAddr().String(),
		Capabilities: registration.Capabilities,
		dialIn:       true,
	}

	// a worker re-registering under the same id replaces its stale entry
	that.mu.Lock()
	var stale *protocol.Conn
	if previous := that.findLocked(node.ID); previous != nil {
		stale = that.detachLocked(previous)
		that.removeLocked(previous)
	}
	that.nodes = append(that.nodes, node)
	that.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}

	that.attach(node, conn)

	that.logger.Info("worker registered", "workerID", node.ID, "capabilities", node.Capabilities)

	return nil
}
