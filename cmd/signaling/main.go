package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/mossy-p/bridge-signaling/config"
	"github.com/mossy-p/bridge-signaling/internal/handlers"
	"github.com/mossy-p/bridge-signaling/internal/logging"
	"github.com/mossy-p/bridge-signaling/internal/redis"
	"github.com/mossy-p/bridge-signaling/internal/rooms"
)

func main() {
	// Load configuration
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store rooms.Store
	switch cfg.RoomStore {
	case "memory":
		store = rooms.NewMemory()
		log.Info("Using in-memory room store")
	default:
		client, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer client.Close()
		store = redis.NewStore(client, cfg.Redis.RoomTTL)
		log.Info("Redis connection established")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.AuthKey == "" {
		log.Warn("AUTH_KEY not set; clients register without tokens")
	}

	router, _ := handlers.NewRouter(cfg, store, log)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("Starting signaling server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
	log.Info("Server stopped")
}
