package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabnotes/internal/auth"
	"collabnotes/internal/config"
	"collabnotes/internal/handlers"
	"collabnotes/internal/jobs"
	"collabnotes/internal/middleware"
	"collabnotes/internal/models"
	"collabnotes/internal/presence"
	"collabnotes/internal/repositories"
	"collabnotes/internal/routers"
	"collabnotes/internal/session"
	"collabnotes/internal/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// initDatabase opens the configured database and migrates the schema
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		dialector = postgres.Open(cfg.PostgresDSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(models.Tables()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("db_driver", cfg.DBDriver),
		zap.Bool("redis", cfg.RedisEnabled()))

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	userRepo := &repositories.UserRepository{DB: db}
	noteRepo := &repositories.NoteRepository{DB: db}
	versionRepo := &repositories.VersionRepository{DB: db}
	collaboratorRepo := &repositories.CollaboratorRepository{DB: db}

	var revocations auth.Revocations = auth.NoRevocations{}
	var mirror *presence.Mirror
	var resyncJob *jobs.PresenceResyncJob
	var rdb *redis.Client

	if cfg.RedisEnabled() {
		rdb, err = initRedis(rootCtx, cfg)
		if err != nil {
			logger.Fatal("Failed to initialize redis", zap.Error(err))
		}
		revocations = auth.NewRedisRevocations(rdb)
		mirror = presence.NewMirror(rdb, cfg.PresenceTTL, 1024, logger)
	} else {
		logger.Warn("REDIS_ADDR not set, token revocation and presence mirror disabled")
	}

	authorizer := auth.NewNoteAuthorizer(noteRepo, collaboratorRepo)
	opts := []session.Option{session.WithLogger(logger)}
	if mirror != nil {
		opts = append(opts, session.WithObserver(mirror))
	}
	manager := session.NewManager(authorizer, opts...)

	if mirror != nil {
		go mirror.Run(rootCtx, manager)
		resyncJob = jobs.NewPresenceResyncJob(mirror, cfg.PresenceResyncSchedule, logger)
		if err := resyncJob.Start(); err != nil {
			logger.Error("Failed to start presence resync job", zap.Error(err))
			resyncJob = nil
		} else {
			logger.Info("Presence resync job started", zap.String("schedule", cfg.PresenceResyncSchedule))
		}
	}

	verifier := auth.NewTokenVerifier(cfg.JWTSecret, revocations, logger)

	router := routers.NewRouter(routers.Handlers{
		Auth:  handlers.NewAuthHandler(userRepo, cfg.JWTSecret, cfg.TokenTTL, revocations, logger),
		Users: handlers.NewUserHandler(userRepo, revocations, logger),
		Notes: &handlers.NoteHandler{
			Notes:         noteRepo,
			Versions:      versionRepo,
			Collaborators: collaboratorRepo,
			Users:         userRepo,
			Authz:         authorizer,
			Presence:      manager,
			Logger:        logger,
		},
		Collab:      handlers.NewCollabHandler(verifier, manager, cfg.SendQueueSize, cfg.AllowedOrigins, logger),
		Health:      &handlers.HealthHandler{Stats: manager},
		RequireAuth: middleware.RequireAuth(verifier),
	}, cfg.AllowedOrigins)

	serverAddr := ":" + cfg.Port

	// websocket upgrades clear the connection deadlines these timeouts set
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Collab notes service starting", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// wait for interrupt signal to gracefully shutdown the server
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("Collab notes service shutting down...")

	if resyncJob != nil {
		resyncJob.Stop()
		logger.Info("Presence resync job stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	stop()
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("Collab notes service exited")
}
