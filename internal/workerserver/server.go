// Package workerserver is the worker side of the offload protocol: it computes AI moves and
// validates moves for a coordinator, either listening for it or dialing in and registering.
package workerserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/protocol"
)

var ErrRegistrationRejected = errors.New("coordinator rejected registration")

type Server struct {
	logger    *slog.Logger
	processor *Processor
	workerID  string

	registrationTimeout time.Duration
}

func NewServer(logger *slog.Logger, workerID string, processor *Processor) *Server {
	return &Server{
		logger:    logger.With("component", "worker_server", "workerID", workerID),
		processor: processor,
		workerID:  workerID,

		registrationTimeout: 5 * time.Second,
	}
}

// Serve - accepts coordinator connections on listener until ctx is done.
func (that *Server) Serve(ctx context.Context, listener net.Listener) error {
	log := that.logger.With("method", "Serve", "address", listener.Addr().String())

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	log.Info("worker listening")

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		raw, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("failed to accept connection: %w", err)
		}

		log.Info("coordinator connected", "remote", raw.RemoteAddr().String())

		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := that.serveConn(ctx, protocol.NewConn(raw)); err != nil {
				log.Warn("connection closed with error", "error", err)
			}
		}()
	}
}

// Connect - dials the coordinator, registers and serves it, redialing after reconnectDelay until ctx is done.
func (that *Server) Connect(ctx context.Context, address string, reconnectDelay time.Duration) error {
	log := that.logger.With("method", "Connect", "address", address)
	dialer := &net.Dialer{Timeout: 5 * time.Second}

	for {
		raw, err := dialer.DialContext(ctx, "tcp", address)
		if err == nil {
			conn := protocol.NewConn(raw)

			if err = that.register(conn, raw); err == nil {
				log.Info("registered with coordinator")
				err = that.serveConn(ctx, conn)
			} else {
				_ = conn.Close()
			}
		}

		if ctx.Err() != nil {
			return nil
		}

		log.Warn("coordinator connection lost, retrying", "error", err, "delay", reconnectDelay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

func (that *Server) register(conn *protocol.Conn, raw net.Conn) error {
	request, err := protocol.NewRequest(protocol.TypeWorkerRegistration, protocol.Registration{
		WorkerID:     that.workerID,
		Capabilities: []string{protocol.CapabilityAIMove, protocol.CapabilityValidateMove},
	})
	if err != nil {
		return err
	}

	if err = conn.Write(request); err != nil {
		return err
	}

	if err = raw.SetReadDeadline(time.Now().Add(that.registrationTimeout)); err != nil {
		return fmt.Errorf("failed to set registration deadline: %w", err)
	}

	ack, err := conn.Read()
	if err != nil {
		return fmt.Errorf("failed to read registration ack: %w", err)
	}

	if err = raw.SetReadDeadline(time.Time{}); err != nil {
		return fmt.Errorf("failed to clear registration deadline: %w", err)
	}

	if ack.Type != protocol.TypeWorkerRegistrationAck || ack.RequestID != request.RequestID {
		return fmt.Errorf("%w: %s %s", ErrRegistrationRejected, ack.Type, ack.ErrorMessage)
	}

	return nil
}

// serveConn - reads requests and answers each one concurrently; writes are serialized by the conn.
func (that *Server) serveConn(ctx context.Context, conn *protocol.Conn) error {
	log := that.logger.With("method", "serveConn")

	var wg sync.WaitGroup
	defer wg.Wait()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	for {
		request, err := conn.Read()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedEnvelope) {
				log.Warn("malformed request", "error", err)

				if err = conn.Write(protocol.NewErrorResponse("", err.Error())); err != nil {
					return err
				}

				continue
			}

			if errors.Is(err, io.EOF) || connCtx.Err() != nil {
				return nil
			}

			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			response := that.processor.Handle(connCtx, request)
			if err := conn.Write(response); err != nil {
				log.Warn("failed to write response", "type", response.Type, "error", err)
			}
		}()
	}
}
