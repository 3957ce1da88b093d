// Package socket serves game clients over plain TCP, one text message per line.
package socket

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/pkg"
)

const (
	writeTimeout = 10 * time.Second
	maxLineSize  = 64 * 1024
)

type Server struct {
	logger     *slog.Logger
	dispatcher *Dispatcher
}

func NewServer(logger *slog.Logger, dispatcher *Dispatcher) *Server {
	return &Server{
		logger:     logger.With("component", "socket_server"),
		dispatcher: dispatcher,
	}
}

// Start - listens on port until ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", port, err)
	}

	return that.Serve(ctx, listener)
}

// Serve - accepts clients on listener until ctx is done. Open sessions are closed on return.
func (that *Server) Serve(ctx context.Context, listener net.Listener) error {
	log := that.logger.With("method", "Serve", "address", listener.Addr().String())

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	log.Info("socket server listening")

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

		wg.Add(1)
		go func() {
			defer wg.Done()
			that.serveConn(ctx, raw)
		}()
	}
}

func (that *Server) serveConn(ctx context.Context, raw net.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-connCtx.Done()
		_ = raw.Close()
	}()

	session := NewSession(that.logger, pkg.GenerateSessionID(), func(line string) error {
		if err := raw.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}

		if _, err := io.WriteString(raw, line+"\n"); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}

		return nil
	})

	log := that.logger.With("method", "serveConn", "playerID", session.ID(), "remote", raw.RemoteAddr().String())
	log.Info("client connected")

	defer func() {
		session.Close()
		that.dispatcher.Disconnect(context.WithoutCancel(ctx), session)
	}()

	scanner := bufio.NewScanner(raw)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)

	for scanner.Scan() {
		that.dispatcher.Dispatch(connCtx, session, scanner.Text())
	}

	if err := scanner.Err(); err != nil && connCtx.Err() == nil {
		log.Debug("client read failed", "error", err)
	}
}
