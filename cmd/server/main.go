package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ayushdsd/spotlight-sub000/internal/api"
	"github.com/ayushdsd/spotlight-sub000/internal/auth"
	"github.com/ayushdsd/spotlight-sub000/internal/config"
	"github.com/ayushdsd/spotlight-sub000/internal/database"
	"github.com/ayushdsd/spotlight-sub000/internal/logger"
	"github.com/ayushdsd/spotlight-sub000/internal/messaging"
	"github.com/ayushdsd/spotlight-sub000/internal/websocket"
)

var log = logger.New("server")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	if cfg.LogFile != "" {
		logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Error("Failed to open log file: %v", err)
			os.Exit(1)
		}
		defer logFile.Close()
		logger.SetOutput(io.MultiWriter(os.Stdout, logFile))
		gin.DefaultWriter = io.MultiWriter(os.Stdout, logFile)
		log.Info("Logging to console and %s", cfg.LogFile)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	auth.InitJWTKey([]byte(cfg.JWT.Secret))
	auth.SetTokenTTL(cfg.JWT.TTL)

	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.Database.Timeout)
	db, err := database.NewDatabase(connectCtx, database.DatabaseType(cfg.Database.Type), database.Options{
		URI:     cfg.Database.URI,
		Name:    cfg.Database.Name,
		Timeout: cfg.Database.Timeout,
	})
	cancel()
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	log.Info("Connected to %s database successfully", cfg.Database.Type)

	wsManager := websocket.NewManager(cfg.AllowedOrigins)
	go wsManager.Run()

	router := api.NewRouter(api.RouterOptions{
		DB:             db,
		Service:        messaging.NewService(db, wsManager),
		WS:             wsManager,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimits: api.RateLimits{
			MessagesPerMinute: cfg.RateLimit.MessagesPerMinute,
			Burst:             cfg.RateLimit.Burst,
			AuthPerMinute:     cfg.RateLimit.AuthPerMinute,
		},
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	wsManager.Stop()
	router.Close()
	if err := db.Close(ctx); err != nil {
		log.Warn("Failed to close database: %v", err)
	}

	log.Info("Server exited properly")
}
