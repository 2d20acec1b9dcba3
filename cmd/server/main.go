package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/cinder/storyboard/internal/auth"
	"github.com/cinder/storyboard/internal/client"
	"github.com/cinder/storyboard/internal/config"
	"github.com/cinder/storyboard/internal/metrics"
	"github.com/cinder/storyboard/internal/server"
	"github.com/cinder/storyboard/internal/service"
	ws "github.com/cinder/storyboard/internal/websocket"
	"github.com/cinder/storyboard/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	m := metrics.New()

	// Story backend client
	storyClient := client.NewStoryClient(&cfg.Backend)
	if !storyClient.IsConfigured() {
		log.Println("Warning: story backend URL not configured")
	} else if err := storyClient.HealthCheck(ctx); err != nil {
		log.Printf("Warning: story backend not reachable: %v", err)
	}

	// Initialize R2 client (optional - frame images stay inline if not configured)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, saved projects keep inline images")
	}

	// Initialize Zitadel JWKS verifier (optional - falls back to legacy JWT)
	var verifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" || cfg.Zitadel.Domain != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(&cfg.Zitadel)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
			verifier = jwksVerifier
		}
	}

	// Initialize services
	storyboards := service.NewStoryboardService(m.Instrument(storyClient), hub, cfg.Session.IdleTTL).WithRecorder(m)
	m.TrackSessions(storyboards.ActiveSessions)
	go storyboards.Run(ctx)

	projects := service.NewProjectService(redisClient, asynqClient, storage)

	app := server.New(server.Deps{
		Config:      cfg,
		Redis:       redisClient,
		Storyboards: storyboards,
		Projects:    projects,
		Hub:         hub,
		Verifier:    verifier,
		Storage:     storage,
		Metrics:     m,
	})

	// Start Asynq worker server
	projectWorker := worker.NewProjectWorker(projects, storage, hub).WithRecorder(m)
	srv := newWorkerServer(cfg)
	go func() {
		mux := asynq.NewServeMux()
		mux.HandleFunc(service.TaskTypeProjectSave, projectWorker.ProcessTask)
		if err := srv.Run(mux); err != nil {
			log.Printf("Asynq worker error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s (backend %s)", addr, cfg.Backend.BaseURL)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	cancel()
	storyboards.Shutdown()
	srv.Shutdown()
	log.Println("Server stopped")
}

func newWorkerServer(cfg *config.Config) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				service.ProjectQueue: 1,
			},
			LogLevel: asynqLogLevel,
		},
	)
}
