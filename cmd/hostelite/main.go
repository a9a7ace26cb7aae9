package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/api"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/bot"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/config"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/common/logger"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/deploy"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/docker"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/events"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/logs"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/runtime"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/sandbox"
	"github.com/whatsapp110x-ctrl/Host-Elite-sub000/internal/supervisor"
)

func main() {
	// 1. Load configuration (a local .env may carry HOSTELITE_ vars)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Host-Elite service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Event bus (in-memory unless a NATS URL is configured)
	eventBus, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to connect event bus", zap.Error(err))
	}
	defer closeBus()

	// 4. Docker client for container deployments (optional)
	var dockerClient *docker.Client
	if cfg.Docker.Enabled {
		dockerClient, err = docker.NewClient(cfg.Docker, log)
		if err != nil {
			log.Fatal("Failed to initialize Docker client", zap.Error(err))
		}
		defer dockerClient.Close()
		if err := dockerClient.Ping(ctx); err != nil {
			log.Fatal("Failed to connect to Docker daemon", zap.Error(err))
		}
		log.Info("Connected to Docker daemon")
	} else {
		log.Info("Docker disabled, container deployments unavailable")
	}

	// 5. Storage sandbox
	sb, err := sandbox.NewManager(cfg.Storage, log)
	if err != nil {
		log.Fatal("Failed to initialize storage sandbox", zap.Error(err))
	}
	log.Info("Storage root ready", zap.String("root", sb.Root()))

	// 6. Core components
	store := bot.NewStore()
	aggregator := logs.NewAggregator(cfg.Logs.BufferCapacity, cfg.Logs.SubscriberQueue, log)

	runtimes := runtime.NewRegistry(log)
	runtimes.LoadDefaults()
	log.Info("Loaded runtime registry", zap.Int("runtimes", len(runtimes.List())))

	locks := bot.NewLocks()
	sup := supervisor.New(store, locks, sb, aggregator, runtimes, dockerClient, eventBus, cfg.Supervisor, log)
	pipeline := deploy.NewPipeline(store, locks, sb, aggregator, dockerClient, runtimes, eventBus, cfg.Deploy, log)

	// 7. HTTP server
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(api.Recovery(log))
	router.Use(api.RequestLogger(log))
	router.Use(api.CORS())

	handler := api.SetupRoutes(router.Group("/api/v1"), store, pipeline, sup, sb, aggregator, log)
	router.GET("/health", handler.HealthCheck)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// 8. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Host-Elite service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Kill every supervised bot process before exiting.
	if err := sup.StopAll(shutdownCtx); err != nil {
		log.Error("Failed to stop all bots", zap.Error(err))
	}

	log.Info("Host-Elite service stopped")
}
