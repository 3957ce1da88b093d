package application

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/config"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/engine"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/loadbalancer"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/metrics"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/repository"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/repository/storage"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/service"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/usecase"
	"github.com/rocketscienceinc/gomoku-coordinator/internal/worker"
	"github.com/rocketscienceinc/gomoku-coordinator/transport/rest"
	"github.com/rocketscienceinc/gomoku-coordinator/transport/socket"
	"github.com/rocketscienceinc/gomoku-coordinator/transport/websocket"
	"golang.org/x/sync/errgroup"
)

// RunApp - runs the coordinator until SIGINT/SIGTERM or the first component failure.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	balancer := loadbalancer.New(logger, newSampler(conf.Load),
		loadbalancer.WithMaxConcurrentGames(conf.Load.MaxConcurrentGames),
		loadbalancer.WithThresholds(conf.Load.MediumThreshold, conf.Load.HighThreshold),
		loadbalancer.WithMetrics(appMetrics),
	)

	workers := worker.NewRegistry(logger, workerConfig(conf.Workers), worker.WithMetrics(appMetrics))
	defer workers.Close()

	for _, address := range conf.Workers.Addresses {
		if _, err := workers.AddWorker(ctx, address); err != nil {
			// the health loop does not redial addresses that never connected
			log.Warn("worker unreachable at startup", "address", address, "error", err)
		}
	}

	searcher := engine.New(
		engine.WithDepth(conf.Search.Depth),
		engine.WithBudget(conf.Search.Budget),
		engine.WithMaxCandidates(conf.Search.MaxCandidates),
	)

	matchmaker := service.NewMatchmaker(logger,
		service.WithIdleTimeout(conf.Rooms.IdleTimeout),
		service.WithAISymbol(conf.Rooms.AISymbol),
	)

	managerOpts := []usecase.Option{usecase.WithMetrics(appMetrics)}
	restOpts := []rest.Option{}

	if conf.Redis.Enabled {
		redisStorage, err := storage.NewRedisStorage(ctx, conf.Redis.GetRedisAddr())
		if err != nil {
			return fmt.Errorf("could not connect to redis storage: %w", err)
		}

		defer func() {
			if err = redisStorage.Close(); err != nil {
				log.Error("could not close redis storage", "error", err)
			}
		}()

		results := repository.NewResultRepository(redisStorage.Connection)
		managerOpts = append(managerOpts, usecase.WithResultRecorder(results))
		restOpts = append(restOpts, rest.WithResults(results))
	}

	manager := usecase.NewGameManager(logger, usecase.Config{
		AIMoveDelay:     conf.Rooms.AIMoveDelay,
		CleanupInterval: conf.Rooms.CleanupInterval,
		MonitorInterval: conf.Load.MonitorInterval,
	}, matchmaker, balancer, workers, service.NewBotService(searcher), managerOpts...)
	defer manager.Shutdown()

	var workerListener net.Listener
	if conf.Workers.ListenPort != "" {
		var err error
		if workerListener, err = net.Listen("tcp", ":"+conf.Workers.ListenPort); err != nil {
			return fmt.Errorf("failed to listen for workers: %w", err)
		}
	}

	dispatcher := socket.NewDispatcher(logger, manager)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return manager.Run(groupCtx)
	})

	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		return rest.New(logger, balancer, matchmaker, workers, registry, restOpts...).Start(groupCtx, conf.HTTPPort)
	})

	group.Go(func() error {
		log.Info("Starting socket server", "port", conf.SocketPort)
		return socket.NewServer(logger, dispatcher).Start(groupCtx, conf.SocketPort)
	})

	group.Go(func() error {
		log.Info("Starting WebSocket server", "port", conf.WebSocketPort)
		return websocket.New(logger, dispatcher).Start(groupCtx, conf.WebSocketPort)
	})

	if workerListener != nil {
		group.Go(func() error {
			return workers.ServeWorkers(groupCtx, workerListener)
		})
	}

	if err := group.Wait(); err != nil {
		return fmt.Errorf("coordinator stopped: %w", err)
	}

	log.Info("Application context canceled, shutting down")

	return nil
}

func newSampler(conf config.Load) loadbalancer.Sampler {
	if load, ok := conf.StaticSystemLoad(); ok {
		return loadbalancer.StaticSampler(load)
	}

	return loadbalancer.NewCPUSampler()
}

func workerConfig(conf config.Workers) worker.Config {
	return worker.Config{
		AIMoveTimeout:        conf.AIMoveTimeout,
		ValidationTimeout:    conf.ValidationTimeout,
		HealthCheckTimeout:   conf.HealthCheckTimeout,
		HealthCheckInterval:  conf.HealthCheckInterval,
		HealthCheckStaleness: conf.HealthCheckStaleness,
		RegistrationTimeout:  conf.RegistrationTimeout,
		MaxReconnectAttempts: conf.MaxReconnectAttempts,
	}
}
