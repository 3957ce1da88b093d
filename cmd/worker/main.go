// Command worker computes AI moves and validates moves for a coordinator.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/gomoku-coordinator/internal/config"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/engine"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/pkg"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/workerserver"
)

func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	configPath := flag.String("config", "./worker.yml", "path to the worker config file")
	flag.Parse()

	conf := config.MustLoadWorker(*configPath)
	if conf.WorkerID == "" {
		conf.WorkerID = pkg.GenerateWorkerID()
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.ParseLogLevel(conf.LogLevel)}))

	if err := run(logger, conf); err != nil {
		panic(fmt.Errorf("worker run failed: %w", err))
	}
}

func run(logger *slog.Logger, conf *config.WorkerConfig) error {
	log := logger.With("component", "worker", "workerID", conf.WorkerID, "mode", conf.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	searcher := engine.New(
		engine.WithDepth(conf.Search.Depth),
		engine.WithBudget(conf.Search.Budget),
		engine.WithMaxCandidates(conf.Search.MaxCandidates),
	)

	processor := workerserver.NewProcessor(logger, conf.WorkerID, searcher)
	server := workerserver.NewServer(logger, conf.WorkerID, processor)

	log.Info("worker starting")

	if conf.Mode == config.WorkerModeDial {
		return server.Connect(ctx, conf.CoordinatorAddress, conf.ReconnectDelay)
	}

	listener, err := net.Listen("tcp", ":"+conf.ListenPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", conf.ListenPort, err)
	}

	return server.Serve(ctx, listener)
}
