// Package websocket serves game clients over WebSocket. Each text frame carries one command line.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/pkg"
	"github.com/rocketscienceinc/gomoku-coordinator/transport/socket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 * 1024
)

type Server struct {
	logger     *slog.Logger
	dispatcher *socket.Dispatcher
	upgrader   websocket.Upgrader

	ctx context.Context
	wg  sync.WaitGroup
}

func New(logger *slog.Logger, dispatcher *socket.Dispatcher) *Server {
	return &Server{
		logger:     logger.With("component", "websocket_server"),
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		ctx: context.Background(),
	}
}

// Handler - routes for the websocket endpoint.
func (that *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Get("/ws", that.serveWS)

	return router
}

// Start - starts WebSocket server and stops it when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	log := that.logger.With("method", "Start", "port", port)

	that.ctx = ctx

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     that.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down websocket server", "error", err)
		}
	}()

	log.Info("websocket server listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	// hijacked connections are not tracked by Shutdown
	that.wg.Wait()

	return nil
}

func (that *Server) serveWS(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "serveWS")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Warn("failed to upgrade connection", "error", err)
		return
	}

	that.wg.Add(1)
	defer that.wg.Done()

	that.serveConn(conn)
}

func (that *Server) serveConn(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(that.ctx)
	defer cancel()

	session := socket.NewSession(that.logger, pkg.GenerateSessionID(), func(line string) error {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}

		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}

		return nil
	})

	log := that.logger.With("method", "serveConn", "playerID", session.ID(), "remote", conn.RemoteAddr().String())
	log.Info("WebSocket connection established")

	defer func() {
		session.Close()
		that.dispatcher.Disconnect(context.WithoutCancel(ctx), session)
		_ = conn.Close()
	}()

	go that.keepAlive(ctx, conn)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("websocket read failed", "error", err)
			}

			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		for _, line := range strings.Split(string(data), "\n") {
			that.dispatcher.Dispatch(ctx, session, line)
		}
	}
}

// keepAlive - pings the client until ctx is done; closing the connection on shutdown ends the read loop.
func (that *Server) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
