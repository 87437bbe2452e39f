package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Gemini API
	GeminiAPIKey   string
	GeminiAPIBase  string
	ChatModel      string
	EmbeddingModel string
	RequestTimeout time.Duration

	// Ingestion
	CacheDir       string
	EmbedBatchSize int
	MinChunkChars  int
	SettleDelay    time.Duration

	// Answer scoring
	SimilarityEnabled bool

	// Tracing
	TracingEnabled bool
	OTLPEndpoint   string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiAPIBase:  getEnv("GEMINI_API_BASE", "https://generativelanguage.googleapis.com/v1beta/models"),
		ChatModel:      getEnv("CHAT_MODEL", "gemini-2.0-flash"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,

		CacheDir:       getEnv("CACHE_DIR", "./cache"),
		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 10),
		MinChunkChars:  getEnvInt("MIN_CHUNK_CHARS", 100),
		SettleDelay:    time.Duration(getEnvInt("SETTLE_DELAY_MS", 300)) * time.Millisecond,

		SimilarityEnabled: getEnvBool("SIMILARITY_SCORING_ENABLED", true),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 10
	}

	return cfg, nil
}

// RequireAPIKey reports a configuration error when no Gemini key is set.
// Loading succeeds without one so read-only surfaces still work; every
// operation that reaches the API checks this first.
func (c *Config) RequireAPIKey() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
