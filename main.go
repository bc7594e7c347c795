package main

import (
	"context"
	"log"
	"os"

	"github.com/Cjantwhy/task-cooperator/config"
	"github.com/Cjantwhy/task-cooperator/logging"
	"github.com/Cjantwhy/task-cooperator/modules/api"
	"github.com/Cjantwhy/task-cooperator/modules/board"
	"github.com/Cjantwhy/task-cooperator/modules/broadcast"
	"github.com/Cjantwhy/task-cooperator/modules/cache"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting task board",
		zap.Int("port", cfg.HTTPPort),
		zap.String("store", cfg.StoreDriver),
		zap.Bool("cache_enabled", cfg.CacheEnabled),
	)

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		logger.Fatal("failed to create application", zap.Error(err))
	}

	// Create modules
	cacheModule := cache.NewModule(cache.Config{
		Enabled:   cfg.CacheEnabled,
		RedisAddr: cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		Options: cache.Options{
			Key:       cfg.CacheKey,
			TTL:       cfg.CacheTTL,
			OpTimeout: cfg.CacheOpTimeout,
		},
	}, logger)
	boardModule := board.NewModule(board.StoreConfig{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	}, logger)
	broadcastModule := broadcast.NewModule(logger)
	apiModule := api.NewModule(cfg.HTTPPort, cfg.ObserverBuffer, logger)

	// Wire dependencies that are not exposed through the service container.
	boardModule.SetCache(cacheModule.GetCache())
	apiModule.SetBoardModule(boardModule)
	apiModule.SetHub(broadcastModule.GetHub())
	apiModule.SetCacheStats(cacheModule.GetCache())
	apiModule.AddHealthChecks(boardModule, cacheModule, broadcastModule)

	// Order: cache before the board that reads through it, the event consumer
	// before the API that accepts observers.
	app.Register(cacheModule)
	app.Register(boardModule)
	app.Register(broadcastModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		logger.Fatal("failed to start application", zap.Error(err))
	}

	logger.Info("task board ready",
		zap.String("http", "http://localhost"+cfg.Address()+"/api/tasks"),
		zap.String("ws", "ws://localhost"+cfg.Address()+"/ws"),
	)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				logger.Info("graceful shutdown initiated")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info("application exited", zap.Int("code", exitCode))
	_ = logger.Sync()
	os.Exit(exitCode)
}
