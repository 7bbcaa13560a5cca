package config

import (
	"time"

	"wisefido-health-ingest/common/config"
)

// Config 健康数据摄取服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	HTTP struct {
		Addr string
	}

	// 后台任务（超过同步阈值的上传）
	Worker struct {
		// 任务流，如 "health:ingest:jobs"
		config.StreamConfig
		Concurrency   int // 同时处理的任务数
		RetryInterval time.Duration
	}

	// MQTT 上传入口
	MQTTIngest struct {
		Enabled bool
		Topic   string // 如 "health/data/+"，最后一段为用户 ID
	}

	Report struct {
		CacheTTL time.Duration
	}

	Sentry struct {
		DSN         string
		Environment string
		Release     string
	}

	Log struct {
		Level  string
		Format string
	}

	Ingest *IngestConfig
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = config.DefaultDatabaseConfig("health_export")
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.DefaultRedisConfig()
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.DefaultMQTTConfig("wisefido-health-ingest")
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.HTTP.Addr = config.Env("HTTP_ADDR", ":8080")

	cfg.Worker.StreamConfig = config.StreamConfig{
		Stream:        "health:ingest:jobs",
		ConsumerGroup: "health-ingest-group",
		ConsumerName:  "health-ingest-1",
		BatchSize:     4,
	}
	cfg.Worker.StreamConfig.LoadFromEnv("WORKER")
	cfg.Worker.Concurrency = config.EnvInt("WORKER_CONCURRENCY", 2)
	cfg.Worker.RetryInterval = config.EnvDuration("WORKER_RETRY_INTERVAL", 30*time.Second)

	cfg.MQTTIngest.Enabled = config.EnvBool("MQTT_INGEST_ENABLED", false)
	cfg.MQTTIngest.Topic = config.Env("MQTT_INGEST_TOPIC", "health/data/+")

	cfg.Report.CacheTTL = config.EnvDuration("REPORT_CACHE_TTL", 24*time.Hour)

	cfg.Sentry.DSN = config.Env("SENTRY_DSN", "")
	cfg.Sentry.Environment = config.Env("SENTRY_ENVIRONMENT", "development")
	cfg.Sentry.Release = config.Env("SENTRY_RELEASE", "")

	cfg.Log.Level = config.Env("LOG_LEVEL", "info")
	cfg.Log.Format = config.Env("LOG_FORMAT", "json")

	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Worker.StreamConfig.Validate(); err != nil {
		return nil, err
	}
	if cfg.MQTTIngest.Enabled {
		if err := cfg.MQTT.Validate(); err != nil {
			return nil, err
		}
	}

	ingest, err := LoadIngestConfig(config.Env("INGEST_CONFIG_FILE", ""))
	if err != nil {
		return nil, err
	}
	cfg.Ingest = ingest

	return cfg, nil
}
