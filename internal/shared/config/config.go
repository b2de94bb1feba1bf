package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	CORSAllowOrigin []string
	DatabaseURL     string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string

	QueueURL          string
	WorkerConcurrency int

	LLMPrimaryProvider   string
	LLMSecondaryProvider string
	LLMModel             string

	RedditSubreddits []string

	FetchTimeout   time.Duration
	FetchRetries   int
	PersistRetries int

	PDFCacheMaxBytes   int64
	PDFCacheMaxEntries int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	for _, path := range []string{".env", "cmd/.env"} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		DatabaseURL:     dbURL,

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),

		QueueURL:          getEnv("SQ_SQS_QUEUE_URL", ""),
		WorkerConcurrency: getEnvInt("SQ_WORKER_CONCURRENCY", 4),

		LLMPrimaryProvider:   getEnv("LLM_PRIMARY_PROVIDER", "openai"),
		LLMSecondaryProvider: getEnv("LLM_SECONDARY_PROVIDER", "openrouter"),
		LLMModel:             getEnv("LLM_MODEL", "gpt-4o"),

		RedditSubreddits: splitAndTrim(getEnv("REDDIT_SUBREDDITS", "startups,smallbusiness")),

		FetchTimeout:   time.Duration(getEnvInt("FETCH_TIMEOUT_SECONDS", 30)) * time.Second,
		FetchRetries:   getEnvInt("FETCH_RETRIES", 2),
		PersistRetries: getEnvInt("PERSIST_RETRIES", 3),

		PDFCacheMaxBytes:   int64(getEnvInt("PDF_CACHE_MAX_BYTES", 64<<20)),
		PDFCacheMaxEntries: getEnvInt("PDF_CACHE_MAX_ENTRIES", 128),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return parsed
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
	case "development", "dev":
		return "dev"
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
