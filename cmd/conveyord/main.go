// Command conveyord runs the background maintenance daemon: it holds the
// single-instance lock and sweeps expired leases so abandoned work returns to
// the pickup pool.
package main

import (
	"context"
	"log"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"conveyor/internal/assign"
	"conveyor/internal/catalog"
	"conveyor/internal/command"
	"conveyor/internal/config"
	"conveyor/internal/lease"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/sweep"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	instance, err := acquireInstanceLock(cfg)
	if err != nil {
		logger.Error("another conveyord is already running", logging.Error(err))
		return
	}
	defer instance.release()

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open task store", logging.Error(err))
		return
	}
	defer store.Close()

	cat := catalog.New(store)
	if err := cat.Seed(ctx); err != nil {
		logger.Error("seed status catalog", logging.Error(err))
		return
	}

	processor := command.NewProcessor(store, cat, logger)
	leases := lease.NewManager(store, logger)
	engine := assign.NewEngine(store, processor, leases, cfg, logger)
	interval := time.Duration(cfg.Leases.SweepIntervalSeconds) * time.Second
	sweeper := sweep.New(store, engine, leases, interval, logger)

	logger.Info("conveyord started",
		slog.String("database", cfg.DatabasePath()),
		slog.Duration("sweep_interval", interval),
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return sweeper.Run(groupCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("daemon exited with error", logging.Error(err))
		return
	}
	logger.Info("conveyord shut down")
}
