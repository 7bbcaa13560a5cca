package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"wisefido-health-ingest/common/database"
	"wisefido-health-ingest/common/logger"
	mqttcommon "wisefido-health-ingest/common/mqtt"
	rediscommon "wisefido-health-ingest/common/redis"
	"wisefido-health-ingest/common/sentry"
	"wisefido-health-ingest/internal/batch"
	"wisefido-health-ingest/internal/config"
	"wisefido-health-ingest/internal/consumer"
	httpapi "wisefido-health-ingest/internal/http"
	"wisefido-health-ingest/internal/metrics"
	"wisefido-health-ingest/internal/repository"
	"wisefido-health-ingest/internal/service"
	"wisefido-health-ingest/internal/store"
	"wisefido-health-ingest/internal/transformer"
)

const serviceName = "wisefido-health-ingest"

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	logger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	hostname, _ := os.Hostname()
	if err := sentry.Init(sentry.Config{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     cfg.Sentry.Release,
		ServerName:  hostname,
	}, logger); err != nil {
		logger.Warn("Sentry disabled", zap.Error(err))
	}
	defer sentry.Flush(2 * time.Second)

	// 启动自检：名称表、分组、批大小
	if err := transformer.VerifyNameTable(); err != nil {
		logger.Fatal("Name table self-check failed", zap.Error(err))
	}
	if err := batch.VerifyGrouping(); err != nil {
		logger.Fatal("Grouping self-check failed", zap.Error(err))
	}
	if err := repository.VerifyChunkSizes(cfg.Ingest); err != nil {
		logger.Fatal("Chunk size self-check failed", zap.Error(err))
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)

	redisClient, err := rediscommon.Connect(context.Background(), &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer rediscommon.Close(redisClient)

	m := metrics.NewManager()

	rawRepo := repository.NewRawIngestionRepository(db, logger)
	jobRepo := repository.NewJobRepository(db, logger)
	writer := repository.NewBatchWriter(db, cfg.Ingest, logger, m)
	cache := store.NewReportCache(store.NewRedisKV(redisClient), cfg.Report.CacheTTL)

	background := service.NewBackgroundService(
		rawRepo,
		jobRepo,
		service.NewRedisJobQueue(redisClient, cfg.Worker.Stream),
		cache,
		m,
		logger,
	)
	ingest := service.NewIngestService(
		cfg.Ingest,
		transformer.NewTranslator(cfg.Ingest, logger),
		writer,
		background,
		m,
		logger,
	)
	background.Attach(ingest)

	router := httpapi.NewRouter(logger)
	router.RegisterIngestRoutes(httpapi.NewIngestHandler(ingest, background, cfg.Ingest.MaxPayloadBytes, logger))
	router.RegisterOpsRoutes(m.Handler())
	srv := service.NewServer(cfg.HTTP.Addr, router, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	jobConsumer := consumer.NewJobConsumer(consumer.JobConsumerConfig{
		Stream:        cfg.Worker.Stream,
		ConsumerGroup: cfg.Worker.ConsumerGroup,
		ConsumerName:  cfg.Worker.ConsumerName,
		BatchSize:     cfg.Worker.BatchSize,
		Concurrency:   cfg.Worker.Concurrency,
		RetryInterval: cfg.Worker.RetryInterval,
	}, redisClient, background, logger)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := jobConsumer.Start(ctx); err != nil {
			logger.Error("Job consumer stopped", zap.Error(err))
		}
	}()

	var mqttClient *mqttcommon.Client
	var mqttConsumer *consumer.MQTTConsumer
	if cfg.MQTTIngest.Enabled {
		mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			logger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		mqttConsumer = consumer.NewMQTTConsumer(ingest, cfg.MQTTIngest.Topic, cfg.MQTT.QoS, logger)
		if err := mqttConsumer.Start(ctx, mqttClient); err != nil {
			logger.Fatal("Failed to subscribe MQTT ingest topic", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("Service started",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("job_stream", cfg.Worker.Stream),
		zap.Bool("mqtt_ingest", cfg.MQTTIngest.Enabled),
		zap.Int("sync_threshold", cfg.Ingest.SyncThreshold),
	)

	// 等待中断信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("HTTP server stopped", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("Error during HTTP shutdown", zap.Error(err))
	}
	if mqttConsumer != nil {
		if err := mqttConsumer.Stop(mqttClient); err != nil {
			logger.Warn("Failed to unsubscribe MQTT ingest topic", zap.Error(err))
		}
		mqttClient.Disconnect()
	}

	// 取消后进行中的任务拒绝未提交的批次，并把任务标记为完成
	cancel()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		logger.Warn("Timed out waiting for background jobs")
	}

	logger.Info("Service stopped")
}
