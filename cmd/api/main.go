package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/your-org/facerecog/internal/api"
	"github.com/your-org/facerecog/internal/api/handlers"
	"github.com/your-org/facerecog/internal/api/ws"
	"github.com/your-org/facerecog/internal/auth"
	"github.com/your-org/facerecog/internal/config"
	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/observability"
	"github.com/your-org/facerecog/internal/queue"
	"github.com/your-org/facerecog/internal/recognition"
	"github.com/your-org/facerecog/internal/storage"
	"github.com/your-org/facerecog/internal/vision"
	"github.com/your-org/facerecog/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging)

	slog.Info("starting facerecog API service", "port", cfg.Server.Port, "vision_backend", cfg.Vision.Backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("apply schema", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Sessions live in Redis when configured, otherwise in process memory.
	var sessionStore auth.SessionStore = auth.NewMemorySessionStore()
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		sessionStore = auth.NewRedisSessionStore(rdb)
	} else {
		slog.Warn("redis not configured, sessions are kept in memory")
	}

	sessions, err := auth.NewSessionManager(sessionStore, cfg.Server.SessionSecret, cfg.Server.SessionTTL, cfg.Server.SecureCookies)
	if err != nil {
		slog.Error("create session manager", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Stop()

	// Relay face events from the stream to WebSocket watchers
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeEvents(ctx, "api-events", func(ctx context.Context, msg jetstream.Msg) error {
		var event models.FaceEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			return err
		}
		hub.BroadcastEvent(&dto.WSEvent{Type: event.Type, Data: msg.Data()})
		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Face capability. Without it enrollment and recognition answer 503
	// while the rest of the site keeps working.
	var faces vision.Capability
	if c, err := vision.NewCapability(cfg.Vision); err != nil {
		slog.Warn("face capability unavailable", "backend", cfg.Vision.Backend, "error", err)
	} else {
		faces = c
		defer c.Close()
		slog.Info("face capability ready", "backend", cfg.Vision.Backend, "dim", c.Dim())
	}

	svc := recognition.NewService(faces, db, minioStore, producer, cfg.Server.MediaBaseURL)

	checks := map[string]handlers.Check{
		"postgres": db.Ping,
		"minio":    minioStore.Ping,
		"nats":     func(context.Context) error { return producer.Ping() },
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:        cfg.Server.APIKey,
		RateLimit:     cfg.Server.RateLimit,
		MaxImageBytes: cfg.Vision.MaxImageBytes,
		Recognition:   svc,
		Persons:       db,
		Accounts:      db,
		Objects:       minioStore,
		Sessions:      sessions,
		Hasher:        auth.NewHasher(0),
		Hub:           hub,
		Checks:        checks,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}
