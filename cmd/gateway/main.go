package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/vnmchuo/inference-gateway/config"
	"github.com/vnmchuo/inference-gateway/internal/auth"
	"github.com/vnmchuo/inference-gateway/internal/dispatch"
	"github.com/vnmchuo/inference-gateway/internal/hub"
	"github.com/vnmchuo/inference-gateway/internal/proxy"
	"github.com/vnmchuo/inference-gateway/internal/seeder"
	"github.com/vnmchuo/inference-gateway/internal/service"
	"github.com/vnmchuo/inference-gateway/internal/telemetry"
	"github.com/vnmchuo/inference-gateway/internal/usage"
	"github.com/vnmchuo/inference-gateway/internal/worker"
	"github.com/vnmchuo/inference-gateway/pkg/ratelimit"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Init telemetry
	shutdownTracer, err := telemetry.InitTracer("inference-gateway", cfg)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}
	defer shutdownTracer()

	// 3. Connect PostgreSQL
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect postgres: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("failed to ping postgres: %v", err)
	}
	log.Println("PostgreSQL connected")

	// 4. Connect Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}
	log.Println("Redis connected")

	// 5. Init auth
	authStore := auth.NewPostgresStore(pool)
	authMiddleware := auth.NewMiddleware(authStore, rdb)

	// 6. Init usage accounting
	usageStore := usage.NewPostgresStore(pool)

	// 7. Init rate limiter
	limiter := ratelimit.NewLimiter(rdb, cfg.DefaultRateLimitRPM)

	// 8. Init remote inference client
	routes := hub.NewRoutingTable(cfg.RoutingOverrides)
	client := hub.New(cfg.HFToken, cfg.HFEndpoint, cfg.RequestTimeout, routes)

	// 9. Init modality services
	policy := dispatch.Policy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialRetryDelay,
		Multiplier:   cfg.RetryBackoffMultiplier,
		MaxDelay:     cfg.MaxRetryDelay,
	}
	textSvc := service.NewTextService(client, policy, cfg.DefaultTextModel, cfg.TextFallbackModels)
	imageSvc := service.NewImageService(client, policy,
		cfg.DefaultImageModel, cfg.ImageFallbackModels,
		cfg.DefaultImageEditModel, cfg.ImageEditFallbackModels,
		cfg.MaxImageBytes)
	speechSvc := service.NewSpeechService(client, policy,
		cfg.DefaultSpeechModel, cfg.SpeechFallbackModels,
		cfg.DefaultTranscribeModel, cfg.TranscribeFallbackModels,
		cfg.MaxAudioBytes)
	embeddingSvc := service.NewEmbeddingService(client, policy,
		cfg.DefaultEmbeddingModel, cfg.EmbeddingFallbackModels)
	videoSvc := service.NewVideoService(client, policy,
		cfg.DefaultTextToVideoModel, cfg.TextToVideoFallbackModels,
		cfg.DefaultImageToVideoModel, cfg.ImageToVideoFallbackModels,
		cfg.MaxVideoBytes, cfg.MaxImageBytes)

	// 10. Init async job queue
	jobCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()
	queue := worker.NewMemoryQueue(2, 32, cfg.RequestTimeout, worker.DefaultRetention)
	queue.Start(jobCtx)

	// 11. Init handler
	catalog := map[string][]string{
		"text":           service.ModelSelector{Default: cfg.DefaultTextModel, Fallbacks: cfg.TextFallbackModels}.Candidates(),
		"image":          service.ModelSelector{Default: cfg.DefaultImageModel, Fallbacks: cfg.ImageFallbackModels}.Candidates(),
		"image_edit":     service.ModelSelector{Default: cfg.DefaultImageEditModel, Fallbacks: cfg.ImageEditFallbackModels}.Candidates(),
		"speech":         service.ModelSelector{Default: cfg.DefaultSpeechModel, Fallbacks: cfg.SpeechFallbackModels}.Candidates(),
		"transcription":  service.ModelSelector{Default: cfg.DefaultTranscribeModel, Fallbacks: cfg.TranscribeFallbackModels}.Candidates(),
		"embedding":      service.ModelSelector{Default: cfg.DefaultEmbeddingModel, Fallbacks: cfg.EmbeddingFallbackModels}.Candidates(),
		"text_to_video":  service.ModelSelector{Default: cfg.DefaultTextToVideoModel, Fallbacks: cfg.TextToVideoFallbackModels}.Candidates(),
		"image_to_video": service.ModelSelector{Default: cfg.DefaultImageToVideoModel, Fallbacks: cfg.ImageToVideoFallbackModels}.Candidates(),
	}
	tracer := otel.GetTracerProvider().Tracer("inference-gateway")
	handler := proxy.NewHandler(textSvc, imageSvc, speechSvc, embeddingSvc, videoSvc,
		usageStore, limiter, queue, routes, catalog, tracer)

	// 12. Seed test API key if RUN_SEED=true
	if os.Getenv("RUN_SEED") == "true" {
		seeder.SeedTestAPIKey(ctx, authStore)
	}

	// 13. Init Chi router
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Public routes
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"inference-gateway"}`))
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.With(auth.RequireModality("text")).Post("/v1/text/generations", handler.HandleTextGeneration)

		r.With(auth.RequireModality("image")).Post("/v1/images/generations", handler.HandleImageGeneration)
		r.With(auth.RequireModality("image")).Post("/v1/images/edits", handler.HandleImageEdit)

		r.With(auth.RequireModality("audio")).Post("/v1/audio/speech", handler.HandleSpeech)
		r.With(auth.RequireModality("audio")).Post("/v1/audio/transcriptions", handler.HandleTranscription)

		r.With(auth.RequireModality("embedding")).Post("/v1/embeddings", handler.HandleEmbedding)

		r.With(auth.RequireModality("video")).Post("/v1/videos/generations", handler.HandleVideoGeneration)
		r.With(auth.RequireModality("video")).Post("/v1/videos/animations", handler.HandleVideoAnimation)
		r.With(auth.RequireModality("video")).Get("/v1/jobs/{jobID}", handler.HandleJob)

		r.Get("/v1/models", handler.HandleModels)
		r.Get("/v1/usage", handler.HandleUsage)
	})

	// 14. Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Inference Gateway starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
