// cmd/wortschatz/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smith3v/wortschatz/pkg/api"
	"github.com/smith3v/wortschatz/pkg/cache"
	"github.com/smith3v/wortschatz/pkg/catalog"
	"github.com/smith3v/wortschatz/pkg/config"
	"github.com/smith3v/wortschatz/pkg/db"
	"github.com/smith3v/wortschatz/pkg/jobs"
	"github.com/smith3v/wortschatz/pkg/logger"
	"github.com/smith3v/wortschatz/pkg/progress"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := logger.Configure(logger.Options{
		Level: config.AppConfig.Logging.Level,
		File:  config.AppConfig.Logging.File,
		JSON:  config.AppConfig.Logging.JSON,
	}); err != nil {
		logger.Error("failed to configure logger", "error", err)
	}

	if err := db.InitDB(config.AppConfig.Database); err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}

	words, err := catalog.LoadFile(config.AppConfig.Catalog.Path)
	if err != nil {
		logger.Error("failed to load vocabulary catalog", "path", config.AppConfig.Catalog.Path, "error", err)
		os.Exit(1)
	}

	loc, err := config.AppConfig.Progress.Location()
	if err != nil {
		logger.Error("invalid progress timezone", "error", err)
		os.Exit(1)
	}

	opts := []progress.Option{
		progress.WithLocation(loc),
		progress.WithStrictCounters(config.AppConfig.Progress.StrictCounters),
	}
	if url := config.AppConfig.Redis.URL; url != "" {
		client, err := cache.NewRedisClient(url)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		opts = append(opts, progress.WithDeduper(cache.NewRedisDeduper(client, config.AppConfig.Redis.DedupTTL())))
	} else {
		logger.Warn("redis not configured, practice events will not be de-duplicated")
	}
	engine := progress.NewEngine(db.NewProgressStore(db.DB), opts...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	scheduler := jobs.New(engine, loc, config.AppConfig.Progress.StreakSweepTime)
	if err := scheduler.Start(ctx); err != nil {
		logger.Error("failed to start background jobs", "error", err)
		os.Exit(1)
	}
	defer scheduler.Stop()

	if !logger.Enabled(logger.DEBUG) {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              config.AppConfig.Server.Addr,
		Handler:           api.NewRouter(api.NewHandler(engine, words), config.AppConfig.Server.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server...", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
