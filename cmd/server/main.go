package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vocalfuse/backend/internal/api"
	"github.com/vocalfuse/backend/internal/cache"
	"github.com/vocalfuse/backend/internal/config"
	"github.com/vocalfuse/backend/internal/db"
	"github.com/vocalfuse/backend/internal/dialect"
	"github.com/vocalfuse/backend/internal/diarize"
	"github.com/vocalfuse/backend/internal/health"
	"github.com/vocalfuse/backend/internal/jobs"
	"github.com/vocalfuse/backend/internal/logger"
	"github.com/vocalfuse/backend/internal/media"
	"github.com/vocalfuse/backend/internal/metrics"
	"github.com/vocalfuse/backend/internal/middleware"
	"github.com/vocalfuse/backend/internal/pipeline"
	"github.com/vocalfuse/backend/internal/storage"
	"github.com/vocalfuse/backend/internal/stream"
	"github.com/vocalfuse/backend/internal/stt"
	"github.com/vocalfuse/backend/internal/translate"
	"github.com/vocalfuse/backend/internal/tts"
	"github.com/vocalfuse/backend/internal/webhook"
	"github.com/vocalfuse/backend/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

var version = "dev"

func main() {
	cfg := config.Load()
	log := logger.Default().WithComponent("server")
	ctx := context.Background()

	database, err := db.New(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	if err != nil {
		log.Fatal(ctx, "failed to connect to database", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatal(ctx, "failed to run migrations", err)
	}

	store, err := storage.New(&storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.Fatal(ctx, "failed to create storage client", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		log.Fatal(ctx, "failed to ensure bucket", err)
	}

	signer := storage.NewPresigner(&storage.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})

	transcoder := media.NewTranscoder(cfg.FFmpegPath, cfg.FFprobePath)
	sttClient := stt.NewClient(cfg.STTServiceURL)
	diarizeClient := diarize.NewClient(cfg.DiarizeServiceURL)
	translateClient := translate.NewClient(cfg.TranslateServiceURL)
	ttsClient := tts.NewClient(cfg.TTSServiceURL, cfg.TTSDefaultVoiceID)
	notifier := webhook.NewNotifier(cfg.WebhookSecret, cfg.PublicBaseURL, cfg.WebhookTimeout)

	// The pipeline tracks progress through the queue, which only exists
	// once the service is built. Workers do not run until Start, so the
	// late-bound closure is safe.
	var pipe *pipeline.Pipeline
	proc := func(ctx context.Context, job *jobs.Job) error {
		return pipe.Process(ctx, job)
	}

	jobService, err := jobs.NewService(&jobs.ServiceConfig{
		RedisURL:    cfg.RedisURL,
		WorkerCount: cfg.WorkerCount,
		Recorder:    db.NewJobRepository(database),
		OnTerminal:  notifier.NotifyTerminal,
	}, proc)
	if err != nil {
		log.Fatal(ctx, "failed to create job service", err)
	}

	var refiner pipeline.SegmentRefiner
	if cfg.DialectCommand != "" {
		corrector := dialect.NewProcessor(cfg.DialectCommand)
		defer corrector.Close()
		refiner = dialect.NewRefiner(corrector, cache.NewFromClient(jobService.Queue().Client()))
	}

	pipe = pipeline.New(&pipeline.Config{
		Transcriber: sttClient,
		Diarizer:    diarizeClient,
		Translator:  translateClient,
		Synthesizer: ttsClient,
		Transcoder:  transcoder,
		Store:       store,
		Signer:      signer,
		Tracker:     jobService.Queue(),
		Refiner:     refiner,
		WorkDir:     cfg.WorkDir,
	})

	jobService.Start()

	hub := websocket.NewHub(jobService)
	go hub.Run()

	checker := health.NewChecker(&health.CheckerConfig{
		DB:             database.DB,
		Redis:          jobService.Queue().Client(),
		StorageCheck:   store.Ping,
		WorkersRunning: jobService.IsRunning,
		FFmpegPath:     cfg.FFmpegPath,
		FFprobePath:    cfg.FFprobePath,
		Version:        version,
	})

	router := api.NewRouter(
		api.NewJobHandlers(jobService, store, signer),
		stream.NewHandler(jobService, store),
		websocket.NewHandler(hub, jobService),
		health.NewHandler(checker),
	)

	handler := middleware.Chain(router,
		middleware.RequestID,
		logger.LoggingMiddleware,
		logger.RecoveryMiddleware,
		metrics.MetricsMiddleware(metrics.Default()),
		middleware.Timing,
		middleware.Gzip,
		middleware.CORS(nil),
	)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      handler,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		log.Info(ctx, "server listening", map[string]interface{}{
			"addr": cfg.ServerAddr,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(ctx, "server failed", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "http shutdown error", err)
	}
	if err := jobService.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "job service stop error", err)
	}

	log.Info(ctx, "shutdown complete")
}
