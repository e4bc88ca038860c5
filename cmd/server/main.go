package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inventory-ledger/internal/config"
	"github.com/inventory-ledger/internal/database"
	"github.com/inventory-ledger/internal/events"
	"github.com/inventory-ledger/internal/middleware"
	"github.com/inventory-ledger/internal/repository"
	"github.com/inventory-ledger/internal/router"
	"github.com/inventory-ledger/internal/service"
	"github.com/inventory-ledger/internal/storage"
	"github.com/inventory-ledger/internal/worker"
	"github.com/inventory-ledger/pkg/filetoken"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Build info (injected at build time via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := middleware.InitLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"version":    Version,
		"commit":     Commit,
		"build_time": BuildTime,
	}).Info("Starting inventory server")

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := database.Open(cfg.Database, cfg.Server.Mode, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	inventoryRepo := repository.NewInventoryRepository(db)

	tokenStore, rdb, err := initTokenStore(cfg, db)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize session store")
	}
	logger.WithField("store", cfg.Session.Store).Info("Session store ready")

	uploads, err := storage.NewUploads(cfg.Storage.UploadDir, cfg.Storage.AllowedExtensions)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize upload directory")
	}

	codec := filetoken.NewCodec(cfg.Security.SecretKey, cfg.Security.FileTokenSalt, cfg.Security.FileTokenMaxAge())
	hub := events.NewHub(64)

	// Initialize services
	sessionService := service.NewSessionService(tokenStore, userRepo, cfg.Session.TTL(), logger)
	authService := service.NewAuthService(userRepo, sessionService, logger)
	inventoryService := service.NewInventoryService(inventoryRepo, uploads, codec, hub, logger)
	bundleService := service.NewBundleService(inventoryRepo, uploads, hub, logger)

	engine := router.SetupRouter(router.Deps{
		Logger:           logger,
		SessionService:   sessionService,
		AuthService:      authService,
		InventoryService: inventoryService,
		BundleService:    bundleService,
		Uploads:          uploads,
		Hub:              hub,
		Version:          Version,
		MaxUploadBytes:   cfg.Server.MaxUploadBytes(),
	})

	// Start the expired session sweeper
	var sweeper *worker.TokenSweeper
	if interval := cfg.Session.SweepInterval(); interval > 0 {
		sweeper = worker.NewTokenSweeper(sessionService, interval, logger)
		go sweeper.Start()
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.WithField("addr", srv.Addr).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if sweeper != nil {
		sweeper.Stop()
	}

	// Graceful shutdown with 10 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// Close Redis connection
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.WithError(err).Warn("Error closing Redis connection")
		}
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("Server exited properly")
}

// initTokenStore picks the session store. The redis client is returned so it
// can be closed on shutdown; it is nil for the database store.
func initTokenStore(cfg *config.Config, db *gorm.DB) (service.TokenStore, *redis.Client, error) {
	if cfg.Session.Store != config.SessionStoreRedis {
		return repository.NewTokenRepository(db), nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return repository.NewRedisTokenRepository(rdb), rdb, nil
}
