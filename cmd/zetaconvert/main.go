package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"zetaconvert/internal/app"
	"zetaconvert/internal/catalog"
	u "zetaconvert/internal/utils"
)

var RedisClient *redis.Client

func main() {
	cfg := u.LoadConfig()
	u.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	u.SetLogLevel(cfg.Logger.Level)

	var rdb *redis.Client
	if cfg.Cache.RedisHost != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.ResultCacheDB,
		})
		RedisClient = rdb // optional, kept for potential global usage
	}

	idleConnsClosed := make(chan struct{})
	loadCatalog(cfg, idleConnsClosed)

	app := app.SetupApp(cfg, rdb)

	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
}

// loadCatalog applies the overlay file and, when configured, the Postgres
// overlay store, then keeps the latter refreshed in the background. Each
// source only ever updates its own slot; catalog.Rebuild merges both.
func loadCatalog(cfg u.Config, stop chan struct{}) {
	if path := cfg.Catalog.OverlayFile; path != "" {
		fileOverlay, err := catalog.LoadOverlayFile(path)
		if err != nil {
			u.Error("Failed to load catalog overlay file", "path", path, "error", err)
		} else {
			catalog.SetFileOverlay(fileOverlay)
		}
	}

	if cfg.Catalog.Postgres.Host != "" {
		dbOverlay, err := u.LoadCatalogOverlayFromPostgres(cfg.Catalog.Postgres)
		if err != nil {
			u.Error("Failed to load catalog overlay from Postgres", "error", err)
		} else {
			catalog.SetDBOverlay(dbOverlay)
		}

		interval := cfg.Catalog.RefreshInterval
		if interval <= 0 {
			interval = time.Minute
		}
		go u.RefreshCatalogOverlayPeriodically(cfg.Catalog.Postgres, interval, stop, func(m map[string]bool) {
			catalog.SetDBOverlay(m)
			catalog.Rebuild()
			u.Info("Catalog overlay refreshed", "entries", len(m))
		})
	}

	catalog.Rebuild()
	u.Info("Catalog loaded", "routes", len(catalog.Get().List()))
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg u.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			u.Error("Server error", "error", err)
		}
	}()

	// Listen for OS termination signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint

	u.Warn("Shutdown signal received, closing server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		u.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	u.Info("Server stopped cleanly")
}
