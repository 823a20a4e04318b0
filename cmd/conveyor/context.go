package main

import (
	"context"
	"strings"
	"sync"

	"conveyor/internal/assign"
	"conveyor/internal/catalog"
	"conveyor/internal/command"
	"conveyor/internal/config"
	"conveyor/internal/handoff"
	"conveyor/internal/ingest"
	"conveyor/internal/lease"
	"conveyor/internal/logging"
	"conveyor/internal/queue"
	"conveyor/internal/sweep"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// services bundles the wired component graph for one CLI invocation. The
// store is opened per invocation and closed when the callback returns.
type services struct {
	cfg         *config.Config
	store       *queue.Store
	catalog     *catalog.Catalog
	processor   *command.Processor
	leases      lease.Manager
	engine      *assign.Engine
	coordinator *handoff.Coordinator
	gateway     *ingest.Gateway
	sweeper     *sweep.Sweeper
}

func (c *commandContext) withServices(ctx context.Context, fn func(context.Context, *services) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	cat := catalog.New(store)
	if err := cat.Seed(ctx); err != nil {
		return err
	}

	logger := logging.NewNop()
	processor := command.NewProcessor(store, cat, logger)
	leases := lease.NewManager(store, logger)
	engine := assign.NewEngine(store, processor, leases, cfg, logger)

	svc := &services{
		cfg:         cfg,
		store:       store,
		catalog:     cat,
		processor:   processor,
		leases:      leases,
		engine:      engine,
		coordinator: handoff.NewCoordinator(store, cat, logger),
		gateway:     ingest.NewGateway(store, cat, cfg, logger),
	}
	svc.sweeper = sweep.New(store, engine, leases, 0, logger)
	return fn(ctx, svc)
}
