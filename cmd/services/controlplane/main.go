package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/soltixdb/unistor/internal/allocation"
	"github.com/soltixdb/unistor/internal/backends"
	"github.com/soltixdb/unistor/internal/config"
	"github.com/soltixdb/unistor/internal/discovery"
	"github.com/soltixdb/unistor/internal/events"
	"github.com/soltixdb/unistor/internal/grpc"
	"github.com/soltixdb/unistor/internal/handlers"
	"github.com/soltixdb/unistor/internal/logging"
	"github.com/soltixdb/unistor/internal/metadata"
	"github.com/soltixdb/unistor/internal/metrics"
	"github.com/soltixdb/unistor/internal/queue"
	"github.com/soltixdb/unistor/internal/registry"
	"github.com/soltixdb/unistor/internal/router"
	"github.com/soltixdb/unistor/internal/services"
	"github.com/soltixdb/unistor/internal/utils"
)

var (
	Version   = "dev"     // Injected via ldflags during build
	GitCommit = "unknown" // Injected via ldflags during build
	BuildTime = "unknown" // Injected via ldflags during build
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	// 1. Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	logger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("Control plane starting...",
		"version", Version, "commit", GitCommit, "build time", BuildTime)

	// 3. Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	// 4. Event bus and registry
	bus := events.NewBus(cfg.Events.BufferSize, logger)
	defer bus.Close()
	bus.OnDrop = func(subscriber string, e events.Event) {
		logger.Debug("Event dropped", "subscriber", subscriber, "type", string(e.Type), "node_id", e.NodeID)
	}

	reg := registry.New(
		registry.WithPublisher(bus),
		registry.WithLogger(logger),
	)

	// 5. Metadata store
	var store metadata.Store
	var etcdStore *metadata.EtcdStore
	if cfg.Etcd.Enabled {
		logger.Info("Connecting to etcd", "endpoints", cfg.Etcd.Endpoints)
		etcdStore, err = metadata.NewEtcdStore(cfg.Etcd)
		if err != nil {
			logger.Fatal("Failed to connect to etcd", "error", err)
		}
		store = etcdStore
	} else {
		logger.Warn("etcd disabled - storage records are kept in memory only")
		store = metadata.NewMemoryStore()
	}
	defer func() { _ = store.Close() }()
	records := metadata.NewRecords(store, cfg.Etcd.Prefix)

	if etcdStore != nil && cfg.Etcd.MirrorNodes {
		mirror := metadata.NewNodeMirror(etcdStore, reg, registry.ShardKey, cfg.Etcd.Prefix, logger)
		if err := mirror.Start(ctx); err != nil {
			logger.Fatal("Failed to start node mirror", "error", err)
		}
		sub := bus.Subscribe("node_mirror")
		spawn(func() { mirror.Run(ctx, sub) })
	}

	// 6. Backends and allocation engine
	set, err := backends.NewSet(cfg.Backends.Platform, backends.NewLedger(reg))
	if err != nil {
		logger.Fatal("Failed to create backends", "error", err)
	}

	selectors, err := allocation.SelectorsFromConfig(cfg.Allocation.Pools)
	if err != nil {
		logger.Fatal("Invalid pool configuration", "error", err)
	}

	m := metrics.New()
	engine := allocation.NewEngine(reg,
		allocation.WithPools(selectors),
		allocation.WithStaleness(cfg.EffectiveStaleness()),
		allocation.WithReservations(set),
		allocation.WithObserver(m),
		allocation.WithLogger(logger),
	)

	capacity := allocation.NewCapacityCache(engine)
	capSub := bus.Subscribe("capacity_cache")
	spawn(func() { capacity.Run(ctx, capSub) })

	// 7. Provisioning service; replay bound reservations before serving
	provisioning := services.NewProvisioningService(logger, engine, set, records, cfg.Allocation.MaxCommitRetries)
	provisioning.OnCommitRetry(m.ObserveCommitRetry)
	restored, err := provisioning.Restore(ctx)
	if err != nil {
		logger.Fatal("Failed to restore reservations", "error", err)
	}
	logger.Info("Reservations restored", "count", restored)

	collector := metrics.NewStateCollector(reg, capacity, bus)

	// 8. Optional event forwarding to an external broker
	if cfg.Events.Forward {
		codec, err := events.NewCodec(cfg.Events.Codec, cfg.Events.Compress)
		if err != nil {
			logger.Fatal("Invalid event codec", "error", err)
		}
		logger.Info("Connecting to Queue", "type", cfg.Queue.Type, "url", cfg.Queue.URL)
		publisher, err := queue.NewPublisher(cfg.Queue)
		if err != nil {
			logger.Fatal("Failed to connect to Queue", "error", err)
		}
		defer func() { _ = publisher.Close() }()

		forwarder := events.NewForwarder(bus, publisher, codec, cfg.Events.SubjectPrefix, logger)
		collector.WithForwarder(forwarder)
		spawn(func() { forwarder.Run(ctx) })
	}
	m.MustRegister(collector)

	// 9. Local hardware discovery
	if cfg.Discovery.Enabled {
		startDiscovery(ctx, cfg, reg, logger, spawn)
	}

	// 10. REST API
	if cfg.Auth.Enabled {
		logger.Info("API key authentication enabled",
			"num_keys", len(cfg.Auth.APIKeys), "num_agent_keys", len(cfg.Auth.AgentKeys))
	} else {
		logger.Warn("API key authentication DISABLED - all requests will be allowed")
	}

	h := handlers.New(logger, reg, engine, capacity, provisioning)
	app := router.New(logger, h, m, *cfg)

	go func() {
		addr := cfg.HTTPAddress()
		logger.Info("Server listening", "address", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// 11. gRPC health
	if addr := cfg.GRPCAddress(); addr != "" {
		healthServer := grpc.NewHealthServer(addr, func() bool {
			return capacity.Capacity().ReadyNodes > 0
		}, logger)
		spawn(func() {
			if err := healthServer.Start(ctx); err != nil {
				logger.Error("gRPC health server stopped", "error", err)
			}
		})
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down control plane...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), utils.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	cancel()
	wg.Wait()

	logger.Info("Control plane exited")
}

// startDiscovery feeds the local node's drives into the registry directly,
// for single-node and development deployments
func startDiscovery(ctx context.Context, cfg *config.Config, reg *registry.Registry, logger *logging.Logger, spawn func(func())) {
	nodeID, err := cfg.Discovery.ResolveNodeName()
	if err != nil {
		logger.Fatal("Failed to resolve discovery node name", "error", err)
	}
	logger.Info("Local discovery enabled", "node_id", nodeID, "sys_root", cfg.Discovery.SysRoot)

	scanner := discovery.NewScanner(cfg.Discovery.SysRoot, cfg.Discovery.MinDriveBytes, logger)
	task := discovery.NewTask(nodeID, scanner, reg, cfg.Discovery.Interval, logger)
	spawn(func() { task.Run(ctx) })

	if cfg.Discovery.MetricsInterval > 0 {
		sampler := discovery.NewSampler(nodeID, scanner, reg, reg, cfg.Discovery.MetricsInterval, logger)
		spawn(func() { sampler.Run(ctx) })
	}

	if cfg.Discovery.Udev {
		spawn(func() {
			if err := discovery.WatchUdev(ctx, task.Trigger, logger); err != nil {
				logger.Warn("udev watch unavailable, relying on periodic scans", "error", err)
			}
		})
	}
}
