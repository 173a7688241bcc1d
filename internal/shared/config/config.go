package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Port            string
	CORSAllowOrigin []string
	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	S3KMSKeyID      string
	DatabaseURL     string
	Env             string

	LLMProvider   string
	LLMModel      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	LLMTimeout    time.Duration

	ExtractMaxAttempts int
	RetryBaseDelay     time.Duration
	RetryJitter        time.Duration
	WorkerConcurrency  int

	CompareChunkSize   int
	CompareConcurrency int

	SQSQueueURL string
	RedisURL    string

	LogLevel string
	LogFile  string
}

var defaults = map[string]any{
	"PORT":                 "8080",
	"ENV":                  "dev",
	"CORS_ALLOW_ORIGINS":   "http://localhost:5173",
	"OBJECT_STORE":         "local",
	"LOCAL_STORE_DIR":      "./data",
	"LLM_PROVIDER":         "openai",
	"LLM_MODEL":            "",
	"OPENAI_BASE_URL":      "https://api.openai.com/v1",
	"LLM_CALL_TIMEOUT":     "30m",
	"EXTRACT_MAX_ATTEMPTS": 3,
	"RETRY_BASE_DELAY":     "2s",
	"RETRY_JITTER":         "1s",
	"WORKER_CONCURRENCY":   4,
	"COMPARE_CHUNK_SIZE":   40,
	"COMPARE_CONCURRENCY":  4,
	"LOG_LEVEL":            "info",
}

// Load reads configuration from environment variables with sensible defaults.
// Local .env files are merged in first for dev convenience; real env vars win.
func Load() Config {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	loadEnvFiles(v, ".env", "cmd/.env")
	v.AutomaticEnv()

	env := normalizeEnv(v.GetString("ENV"))
	dbURL := strings.TrimSpace(v.GetString("DATABASE_URL"))
	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            v.GetString("PORT"),
		CORSAllowOrigin: splitAndTrim(v.GetString("CORS_ALLOW_ORIGINS")),
		ObjectStoreType: normalizeStoreType(v.GetString("OBJECT_STORE")),
		LocalStoreDir:   v.GetString("LOCAL_STORE_DIR"),
		AWSRegion:       v.GetString("AWS_REGION"),
		S3Bucket:        v.GetString("S3_BUCKET"),
		S3Prefix:        v.GetString("S3_PREFIX"),
		S3KMSKeyID:      v.GetString("S3_SSE_KMS_KEY_ID"),
		DatabaseURL:     dbURL,
		Env:             env,

		LLMProvider:   strings.ToLower(strings.TrimSpace(v.GetString("LLM_PROVIDER"))),
		LLMModel:      v.GetString("LLM_MODEL"),
		OpenAIAPIKey:  v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL: v.GetString("OPENAI_BASE_URL"),
		LLMTimeout:    v.GetDuration("LLM_CALL_TIMEOUT"),

		ExtractMaxAttempts: v.GetInt("EXTRACT_MAX_ATTEMPTS"),
		RetryBaseDelay:     v.GetDuration("RETRY_BASE_DELAY"),
		RetryJitter:        v.GetDuration("RETRY_JITTER"),
		WorkerConcurrency:  v.GetInt("WORKER_CONCURRENCY"),

		CompareChunkSize:   v.GetInt("COMPARE_CHUNK_SIZE"),
		CompareConcurrency: v.GetInt("COMPARE_CONCURRENCY"),

		SQSQueueURL: strings.TrimSpace(v.GetString("SQS_QUEUE_URL")),
		RedisURL:    strings.TrimSpace(v.GetString("REDIS_URL")),

		LogLevel: v.GetString("LOG_LEVEL"),
		LogFile:  v.GetString("LOG_FILE"),
	}
}

// IsDevLike reports whether env allows in-memory fallbacks.
func (c Config) IsDevLike() bool {
	switch c.Env {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
