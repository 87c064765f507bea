package config

import (
	"os"
	"strconv"
)

// Config centralizes runtime settings for the API and workers.
type Config struct {
	Port string

	DatabaseURL string

	GLPIBaseURL   string
	GLPIAppToken  string
	GLPIUserToken string
	GLPITimeoutMS int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	RateLimitRPS   float64
	RateLimitBurst int
	CORSOrigins    string

	QueueBatchingEnabled     bool
	QueueBatchSize           int
	QueueBatchFlushMS        int
	QueueBatchFlushTimeoutMS int
	QueueBatchQueueCapacity  int
	QueueBatchMaxInFlight    int

	WorkerEnabled bool
	WorkerSlots   int
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		GLPIBaseURL:   getEnv("GLPI_API_URL", ""),
		GLPIAppToken:  getEnv("GLPI_APP_TOKEN", ""),
		GLPIUserToken: getEnv("GLPI_USER_TOKEN", ""),
		GLPITimeoutMS: getEnvInt("GLPI_TIMEOUT_MS", 15000),

		MinioEndpoint:  getEnv("S3_MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("S3_MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("S3_MINIO_SECRET_KEY", ""),
		MinioUseSSL:    getEnvBool("S3_MINIO_USE_SSL", false),
		MinioBucket:    getEnv("S3_MINIO_BUCKET", "media"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "report_stages"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "report_stages_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "report_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),
		CORSOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "*"),

		QueueBatchingEnabled:     getEnvBool("QUEUE_BATCHING_ENABLED", true),
		QueueBatchSize:           getEnvInt("QUEUE_BATCH_SIZE", 32),
		QueueBatchFlushMS:        getEnvInt("QUEUE_BATCH_FLUSH_MS", 25),
		QueueBatchFlushTimeoutMS: getEnvInt("QUEUE_BATCH_FLUSH_TIMEOUT_MS", 3000),
		QueueBatchQueueCapacity:  getEnvInt("QUEUE_BATCH_QUEUE_CAPACITY", 2048),
		QueueBatchMaxInFlight:    getEnvInt("QUEUE_BATCH_MAX_IN_FLIGHT", 4),

		WorkerEnabled: getEnvBool("WORKER_ENABLED", true),
		WorkerSlots:   getEnvInt("WORKER_SLOTS", 4),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
