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

	"github.com/deviceops/reports-back/internal/config"
	"github.com/deviceops/reports-back/internal/domain"
	"github.com/deviceops/reports-back/internal/glpi"
	httpserver "github.com/deviceops/reports-back/internal/http"
	"github.com/deviceops/reports-back/internal/http/handlers"
	"github.com/deviceops/reports-back/internal/objstore"
	"github.com/deviceops/reports-back/internal/pdf"
	"github.com/deviceops/reports-back/internal/realtime"
	"github.com/deviceops/reports-back/internal/service"
	"github.com/deviceops/reports-back/internal/storage"
	"github.com/deviceops/reports-back/internal/workflow"
)

func main() {
	logger := log.New(os.Stdout, "[reports-back] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reports, media, storageCloser := setupStorage(ctx, cfg, logger)
	defer storageCloser()

	objects := setupObjectStore(ctx, cfg, logger)

	producer, consumer, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	authClient := glpi.NewAuthClient(glpi.ClientConfig{
		BaseURL:   cfg.GLPIBaseURL,
		AppToken:  cfg.GLPIAppToken,
		UserToken: cfg.GLPIUserToken,
		Timeout:   time.Duration(cfg.GLPITimeoutMS) * time.Millisecond,
	})
	devices := glpi.NewDeviceGateway(authClient, logger)

	dispatcher := service.NewDispatcher(logger)
	reportsService := service.NewReportsService(reports, media, devices, objects, dispatcher, logger)
	generateService := service.NewGenerateService(reports, media, devices, pdf.NewGenerator(), objects, dispatcher, logger)

	hub := realtime.NewHub(logger)

	definition, err := workflow.NewReportsWorkflow(generateService, reportsService, hub)
	if err != nil {
		logger.Fatalf("invalid workflow definition: %v", err)
	}
	runner := workflow.NewRunner(definition, producer, consumer, workflow.NewRunStore(), cfg.WorkerSlots, logger)

	// A fresh report immediately gets its delivery pipeline started. The
	// trigger only enqueues; a failure here is logged and the report stays
	// usable through the synchronous pdf command.
	dispatcher.Subscribe(func(ctx context.Context, event domain.Event) {
		created, ok := event.(domain.DeviceReportCreated)
		if !ok {
			return
		}
		runID, err := runner.Trigger(ctx, created.ReportID)
		if err != nil {
			logger.Printf("trigger workflow for report %s failed: %v", created.ReportID, err)
			return
		}
		logger.Printf("workflow run %s triggered for report %s", runID, created.ReportID)
	})

	if cfg.WorkerEnabled {
		go runner.Start(ctx)
		logger.Printf("worker enabled and started slots=%d", cfg.WorkerSlots)
	} else {
		logger.Printf("worker disabled by configuration")
	}

	api := handlers.NewAPI(reportsService, generateService, hub, logger)
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		CORSOrigins:    []string{cfg.CORSOrigins},
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	hub.Close()
}

func setupStorage(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (storage.ReportsRepository, storage.MediaRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repositories")
		return storage.NewMemoryReportsRepository(), storage.NewMemoryMediaRepository(), func() {}
	}

	pool, err := storage.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("failed to initialize postgres storage, fallback to memory: %v", err)
		return storage.NewMemoryReportsRepository(), storage.NewMemoryMediaRepository(), func() {}
	}
	logger.Printf("postgres storage initialized")
	return storage.NewPostgresReportsRepository(pool), storage.NewPostgresMediaRepository(pool), func() {
		pool.Close()
	}
}

func setupObjectStore(ctx context.Context, cfg config.Config, logger *log.Logger) objstore.Gateway {
	if cfg.MinioEndpoint == "" {
		logger.Printf("S3_MINIO_ENDPOINT not configured, using in-memory object store")
		return objstore.NewMemoryGateway()
	}

	gateway, err := objstore.NewMinioGateway(objstore.MinioConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.MinioBucket,
	})
	if err != nil {
		logger.Printf("failed to initialize minio gateway, fallback to memory: %v", err)
		return objstore.NewMemoryGateway()
	}
	if err := gateway.EnsureBucket(ctx); err != nil {
		logger.Printf("failed to ensure bucket %s, fallback to memory: %v", cfg.MinioBucket, err)
		return objstore.NewMemoryGateway()
	}
	logger.Printf("minio object store initialized bucket=%s", cfg.MinioBucket)
	return gateway
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *log.Logger,
) (workflow.Producer, workflow.Consumer, func()) {
	var (
		baseProducer workflow.Producer
		consumer     workflow.Consumer
		baseCloser   = func() {}
	)

	if cfg.RedisAddr == "" {
		logger.Printf("REDIS_ADDR not configured, using local queue fallback")
		local := workflow.NewLocalQueue(512, 3, logger)
		baseProducer = local
		consumer = local
	} else {
		streams, err := workflow.NewStreamsQueue(ctx, workflow.StreamsConfig{
			Addr:        cfg.RedisAddr,
			Password:    cfg.RedisPassword,
			DB:          cfg.RedisDB,
			Stream:      cfg.RedisStream,
			DLQStream:   cfg.RedisDLQ,
			Group:       cfg.RedisGroup,
			Consumer:    cfg.RedisConsumer,
			MaxAttempts: 3,
		})
		if err != nil {
			logger.Printf("failed to initialize redis streams queue, fallback to local: %v", err)
			local := workflow.NewLocalQueue(512, 3, logger)
			baseProducer = local
			consumer = local
		} else {
			logger.Printf("redis streams queue initialized")
			baseProducer = streams
			consumer = streams
			baseCloser = func() {
				_ = streams.Close()
			}
		}
	}

	producer := baseProducer
	batchingCloser := func() {}
	if cfg.QueueBatchingEnabled {
		batching := workflow.NewBatchingProducer(ctx, baseProducer, workflow.BatchingConfig{
			MaxBatchSize:       cfg.QueueBatchSize,
			FlushInterval:      time.Duration(cfg.QueueBatchFlushMS) * time.Millisecond,
			FlushTimeout:       time.Duration(cfg.QueueBatchFlushTimeoutMS) * time.Millisecond,
			QueueCapacity:      cfg.QueueBatchQueueCapacity,
			MaxInFlightBatches: cfg.QueueBatchMaxInFlight,
		})
		producer = batching
		batchingCloser = batching.Close
		logger.Printf(
			"queue batching enabled size=%d flush_ms=%d queue_capacity=%d max_in_flight=%d",
			cfg.QueueBatchSize,
			cfg.QueueBatchFlushMS,
			cfg.QueueBatchQueueCapacity,
			cfg.QueueBatchMaxInFlight,
		)
	}

	return producer, consumer, func() {
		batchingCloser()
		baseCloser()
	}
}
