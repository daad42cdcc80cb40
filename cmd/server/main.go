package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulsewire/internal/api/routes"
	"pulsewire/internal/apps"
	"pulsewire/internal/channels"
	"pulsewire/internal/config"
	"pulsewire/internal/database"
	"pulsewire/internal/replication"
	"pulsewire/internal/statistics"
	"pulsewire/internal/webhooks"
	"pulsewire/internal/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("Starting pulsewire server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// App registry: Postgres when a database is configured, otherwise the
	// app definitions from config.
	var registry apps.Registry
	var flusher *statistics.Flusher
	collector := statistics.NewMemoryCollector()

	if cfg.Database.URI != "" {
		db, err := database.NewPostgresConnection(cfg.Database.URI)
		if err != nil {
			slog.Error("Failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		pgRegistry, err := apps.NewPostgresRegistry(db)
		if err != nil {
			slog.Error("Failed to initialize app registry", "error", err)
			os.Exit(1)
		}
		registry = pgRegistry

		if cfg.Statistics.Enabled {
			store, err := statistics.NewStore(db)
			if err != nil {
				slog.Error("Failed to initialize statistics store", "error", err)
				os.Exit(1)
			}
			flusher = statistics.NewFlusher(collector, store, registry, cfg.Statistics.Interval)
		}
	} else {
		memRegistry, err := apps.NewMemoryRegistry(cfg.Apps)
		if err != nil {
			slog.Error("Invalid app configuration", "error", err)
			os.Exit(1)
		}
		registry = memRegistry
	}

	// Lifecycle hooks: Kafka webhook firehose when enabled.
	var hooks channels.LifecycleHooks = channels.NoopHooks{}
	var webhookDispatcher *webhooks.Dispatcher
	if cfg.Webhooks.Enabled {
		webhookDispatcher = webhooks.NewDispatcher(cfg.Webhooks.Brokers, cfg.Webhooks.Topic)
		hooks = webhookDispatcher
	}

	// Replication: the manager and replicator reference each other, so the
	// redis replicator gets its inbound handler installed once the manager
	// exists.
	var replicator replication.Replicator
	var redisReplicator *replication.RedisReplicator

	switch cfg.Replication.Driver {
	case "redis":
		var err error
		redisReplicator, err = replication.NewRedis(ctx, replication.RedisOptions{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			slog.Error("Failed to boot Redis replicator", "error", err)
			os.Exit(1)
		}
		replicator = redisReplicator
	default:
		replicator = replication.NewLocal()
	}
	defer replicator.Close()

	manager := channels.NewManager(replicator, hooks)
	if redisReplicator != nil {
		redisReplicator.SetHandler(manager.HandleReplicated)
	}
	dispatcher := websocket.NewDispatcher(registry, manager, collector, hooks)

	if flusher != nil {
		go flusher.Run(ctx)
	}

	router := routes.NewRouter(dispatcher, manager, registry, collector)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr, "replication", cfg.Replication.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if webhookDispatcher != nil {
		if err := webhookDispatcher.Close(); err != nil {
			slog.Error("Failed to close webhook dispatcher", "error", err)
		}
	}

	slog.Info("Server stopped")
}
