package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/attendance/internal/api"
	"github.com/your-org/attendance/internal/api/handlers"
	"github.com/your-org/attendance/internal/api/ws"
	"github.com/your-org/attendance/internal/attendance"
	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/observability"
	"github.com/your-org/attendance/internal/queue"
	"github.com/your-org/attendance/internal/storage"
	"github.com/your-org/attendance/internal/verify"
	"github.com/your-org/attendance/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("attendance API stopped with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting attendance API service", zap.Int("port", cfg.Server.Port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		return fmt.Errorf("connect to minio: %w", err)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		logger.Warn("ensure minio bucket", zap.Error(err))
	}

	producer, err := queue.NewProducer(cfg.NATS.URL, logger)
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	defer producer.Close()
	if err := producer.EnsureStreams(ctx); err != nil {
		logger.Warn("ensure nats streams", zap.Error(err))
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	consumer, err := queue.NewConsumer(cfg.NATS.URL, logger)
	if err != nil {
		return fmt.Errorf("create attendance consumer: %w", err)
	}
	defer consumer.Close()

	err = consumer.ConsumeAttendance(ctx, queue.InstanceConsumerName("api-attendance"), func(_ context.Context, ev models.AttendanceEvent) error {
		hub.BroadcastAttendance(ev)
		return nil
	})
	if err != nil {
		logger.Warn("start attendance consumer", zap.Error(err))
	}

	routerCfg := api.RouterConfig{
		JWTSecret:   cfg.Auth.JWTSecret,
		JWTAudience: cfg.Auth.JWTAudience,
		MaxUpload:   cfg.Server.MaxUploadBytes,
		MaxPixels:   cfg.Vision.MaxPixels,
		Users:       db,
		Objects:     minioStore,
		Records:     db,
		Hub:         hub,
		Logger:      logger,
		Checks: []handlers.Check{
			{Name: "postgres", Ping: db.Ping},
			{Name: "minio", Ping: minioStore.Ping},
			{Name: "nats", Ping: func(context.Context) error { return producer.Ping() }},
		},
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret is empty, API authentication is disabled")
	}

	// A missing model or runtime leaves the verification endpoints answering 503.
	analyzer, closeAnalyzer, err := newAnalyzer(cfg.Vision, logger)
	if err != nil {
		logger.Warn("face analyzer init failed, verification will be unavailable", zap.Error(err))
	} else {
		defer closeAnalyzer()

		policy, _ := verify.ParsePolicy(cfg.Vision.FacePolicy)
		fetcher := verify.NewHTTPFetcher(nil, cfg.Fetch.Timeout, cfg.Fetch.MaxBytes, logger)
		engine := verify.NewEngine(analyzer, policy, cfg.Vision.WorkerCount, logger)
		verifier := verify.NewVerifier(verify.NewAcquirer(fetcher, cfg.Vision.MaxPixels), engine, logger)

		service := attendance.NewService(db, minioStore, verifier, db, producer, attendance.RetryPolicy{
			Retries:        max(cfg.Fetch.Retries, 0),
			InitialBackoff: cfg.Fetch.InitialBackoff,
			MaxBackoff:     cfg.Fetch.MaxBackoff,
		}, logger)

		routerCfg.Verifier = verifier
		routerCfg.CheckIn = service
		logger.Info("face analyzer ready",
			zap.String("backend", cfg.Vision.Backend),
			zap.String("policy", string(policy)),
			zap.Int("workers", cfg.Vision.WorkerCount))
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("API server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("API server stopped")
	return nil
}

// newAnalyzer loads the configured face analysis backend.
func newAnalyzer(cfg config.VisionConfig, logger *zap.Logger) (verify.FaceAnalyzer, func(), error) {
	switch cfg.Backend {
	case "onnx":
		logger.Warn("onnx backend is experimental: the 0.6 match threshold is calibrated for dlib descriptors and will rarely match ArcFace embeddings")
		if err := vision.InitONNX(cfg.ONNXLibPath); err != nil {
			return nil, nil, fmt.Errorf("init onnx runtime: %w", err)
		}
		a, err := vision.NewONNXAnalyzer(cfg.ModelsDir, float32(cfg.DetectionThreshold), logger)
		if err != nil {
			vision.DestroyONNX()
			return nil, nil, err
		}
		return a, func() {
			a.Close()
			vision.DestroyONNX()
		}, nil
	default:
		a, err := vision.NewDlibAnalyzer(cfg.ModelsDir, cfg.UseCNN, logger)
		if err != nil {
			return nil, nil, err
		}
		return a, a.Close, nil
	}
}
