package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers  []string
	KafkaGroupID  string
	CodingTopic   string
	SchedulerMode string // local or distributed

	// Entity filter thresholds. Tuned independently per filtering
	// pipeline; do not unify without re-validating the acceptance
	// scenarios.
	DiagnosisMatchThreshold  float64
	ProcedureMatchThreshold  float64
	ReferenceConfidenceFloor float64

	// Crosswalk cache
	CrosswalkCacheCapacity int
	CrosswalkWarmCount     int
	CrosswalkMinConfidence float64
	CrosswalkSeedPath      string

	// Scheduler / retry
	WorkerConcurrency int
	MaxRetries        int
	RetryBaseDelay    time.Duration
	InFlightLeaseTTL  time.Duration

	// External services
	ExtractionBaseURL string
	ExtractionTimeout time.Duration
	RefinementBaseURL string
	RefinementTimeout time.Duration
	SuggestionBaseURL string
	SuggestionAPIKey  string
	SuggestionModel   string
	SuggestionTimeout time.Duration

	// Status snapshots / metrics
	StatusSnapshotTTL  time.Duration
	MetricsSampleEvery time.Duration
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "medcoder"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "medcoder123"),
		PostgresDB:       getEnv("POSTGRES_DB", "medcoder"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:  getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:  getEnv("KAFKA_GROUP_ID", "medcoder-platform"),
		CodingTopic:   getEnv("CODING_TASK_TOPIC", "coding-tasks"),
		SchedulerMode: getEnv("SCHEDULER_MODE", "local"),

		DiagnosisMatchThreshold:  getFloatEnv("DIAGNOSIS_MATCH_THRESHOLD", 0.6),
		ProcedureMatchThreshold:  getFloatEnv("PROCEDURE_MATCH_THRESHOLD", 0.5),
		ReferenceConfidenceFloor: getFloatEnv("REFERENCE_CONFIDENCE_FLOOR", 0.5),

		CrosswalkCacheCapacity: getIntEnv("CROSSWALK_CACHE_CAPACITY", 5000),
		CrosswalkWarmCount:     getIntEnv("CROSSWALK_WARM_COUNT", 200),
		CrosswalkMinConfidence: getFloatEnv("CROSSWALK_MIN_CONFIDENCE", 0.0),
		CrosswalkSeedPath:      getEnv("CROSSWALK_SEED_PATH", ""),

		WorkerConcurrency: getIntEnv("WORKER_CONCURRENCY", 4),
		MaxRetries:        getIntEnv("PIPELINE_MAX_RETRIES", 3),
		RetryBaseDelay:    getDuration("PIPELINE_RETRY_BASE_DELAY", time.Second),
		InFlightLeaseTTL:  getDuration("INFLIGHT_LEASE_TTL", 10*time.Minute),

		ExtractionBaseURL: getEnv("EXTRACTION_BASE_URL", "http://localhost:8091"),
		ExtractionTimeout: getDuration("EXTRACTION_TIMEOUT", 20*time.Second),
		RefinementBaseURL: getEnv("REFINEMENT_BASE_URL", "http://localhost:8092"),
		RefinementTimeout: getDuration("REFINEMENT_TIMEOUT", 10*time.Second),
		SuggestionBaseURL: getEnv("SUGGESTION_BASE_URL", "https://api.openai.com/v1"),
		SuggestionAPIKey:  getEnv("SUGGESTION_API_KEY", ""),
		SuggestionModel:   getEnv("SUGGESTION_MODEL", "gpt-4"),
		SuggestionTimeout: getDuration("SUGGESTION_TIMEOUT", 60*time.Second),

		StatusSnapshotTTL:  getDuration("STATUS_SNAPSHOT_TTL", time.Hour),
		MetricsSampleEvery: getDuration("METRICS_SAMPLE_INTERVAL", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
