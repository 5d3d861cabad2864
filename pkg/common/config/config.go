package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Record store
	StoreBackend string // memory, sqlite, redis, postgres
	SQLitePath   string

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
	RedisPrefix   string

	// Kafka
	KafkaBrokers     []string
	KafkaGroupID     string
	KafkaPhasesTopic string

	// Workflow engine
	SyncMode         string // inprocess, kafka
	LocalCommitDelay time.Duration
	SyncDelay        time.Duration
	GatingMode       string // open, sequential
	CatalogPath      string
	SeedDemoData     bool

	// Auth
	AuthJWTSecret  string
	AuthIssuer     string
	RateLimitRPS   int
	RateLimitBurst int

	// LLM
	LLMAPIKey       string
	LLMBaseURL      string
	LLMModelName    string
	LLMTimeout      time.Duration
	LLMTokenURL     string
	LLMClientID     string
	LLMClientSecret string
	// RedactionRules is a YAML file of patterns masked out of prompts.
	RedactionRules string

	// Documents
	DocumentBackend string // memory, fs, s3
	DocumentDir     string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PathStyle     bool
	S3AccessKeyID   string
	S3SecretKey     string
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 16*1024*1024)),

		StoreBackend: getEnv("STORE_BACKEND", "sqlite"),
		SQLitePath:   getEnv("SQLITE_PATH", "transplantflow.db"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "transplantflow"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "transplantflow"),
		PostgresDB:       getEnv("POSTGRES_DB", "transplantflow"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPrefix:   getEnv("REDIS_PREFIX", "transplantflow:"),

		KafkaBrokers:     getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "transplantflow-sync"),
		KafkaPhasesTopic: getEnv("KAFKA_TOPIC_PHASES", "workflow.phases"),

		SyncMode:         getEnv("SYNC_MODE", "inprocess"),
		LocalCommitDelay: getDuration("LOCAL_COMMIT_DELAY", 500*time.Millisecond),
		SyncDelay:        getDuration("SYNC_DELAY", 1500*time.Millisecond),
		GatingMode:       getEnv("GATING_MODE", "open"),
		CatalogPath:      getEnv("CATALOG_PATH", ""),
		SeedDemoData:     getBoolEnv("SEED_DEMO_DATA", false),

		AuthJWTSecret:  getEnv("AUTH_JWT_SECRET", ""),
		AuthIssuer:     getEnv("AUTH_ISSUER", ""),
		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),

		LLMAPIKey:       getEnv("LLM_API_KEY", ""),
		LLMBaseURL:      getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModelName:    getEnv("LLM_MODEL_NAME", "gpt-4o-mini"),
		LLMTimeout:      getDuration("LLM_TIMEOUT", 60*time.Second),
		LLMTokenURL:     getEnv("LLM_TOKEN_URL", ""),
		LLMClientID:     getEnv("LLM_CLIENT_ID", ""),
		LLMClientSecret: getEnv("LLM_CLIENT_SECRET", ""),
		RedactionRules:  getEnv("REDACTION_RULES_PATH", ""),

		DocumentBackend: getEnv("DOCUMENT_BACKEND", "fs"),
		DocumentDir:     getEnv("DOCUMENT_DIR", "documents"),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3PathStyle:     getBoolEnv("S3_PATH_STYLE", false),
		S3AccessKeyID:   getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:     getEnv("S3_SECRET_ACCESS_KEY", ""),
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

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
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
