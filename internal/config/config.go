package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // optional operator API key (empty = unauthenticated, dev mode)
	CorsAllowedOrigins string // comma-separated allowed origins (empty = *, dev mode)
	LogFormat          string // "text" or "json"
	MetricsEnabled     bool

	// Feature flag
	EnableServerVideo bool

	// Database
	DatabaseURL string

	// Redis — optional cross-process scheduler wake-up transport (§10.3)
	RedisURL string

	// Scheduler / budget
	MaxConcurrent     int
	MaxQueueSize      int
	DailySpendingCap  float64
	MaxRetries        int

	// Transcription provider (AssemblyAI-shaped opaque API)
	AssemblyAIAPIKey string
	DebugCaptions    bool

	// Notifications
	TelegramBotToken             string
	TelegramChatID               string
	EnableTelegramNotifications bool
	PushProviderURL              string
	PushProviderKey               string

	// Video storage + retention
	VideoStorageDir     string
	VideoRetentionHours int
	PublicDomain        string // used by videostore's VideoURL/DownloadURL
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", false),

		EnableServerVideo: getEnvBool("ENABLE_SERVER_VIDEO", true),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		MaxConcurrent:    getEnvInt("MAX_CONCURRENT", 2),
		MaxQueueSize:     getEnvInt("MAX_QUEUE_SIZE", 50),
		DailySpendingCap: getEnvFloat("DAILY_SPENDING_CAP", 10.0),
		MaxRetries:       getEnvInt("MAX_RETRIES", 2),

		AssemblyAIAPIKey: getEnv("ASSEMBLYAI_API_KEY", ""),
		DebugCaptions:    getEnvBool("DEBUG_CAPTIONS", false),

		TelegramBotToken:             getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:               getEnv("TELEGRAM_CHAT_ID", ""),
		EnableTelegramNotifications: getEnvBool("ENABLE_TELEGRAM_NOTIFICATIONS", false),
		PushProviderURL:              getEnv("PUSH_PROVIDER_URL", ""),
		PushProviderKey:              getEnv("PUSH_PROVIDER_KEY", ""),

		VideoStorageDir:     getEnv("VIDEO_STORAGE_DIR", "/tmp/podclip/videos"),
		VideoRetentionHours: getEnvInt("VIDEO_RETENTION_HOURS", 72),
		PublicDomain:        getEnv("RAILWAY_PUBLIC_DOMAIN", ""),
	}

	if cfg.EnableServerVideo && cfg.AssemblyAIAPIKey == "" {
		// Not fatal: captioned jobs are still admitted, their caption step
		// fails and they complete without captions — worth a loud startup
		// warning rather than a silent gap.
		fmt.Println("WARNING: ASSEMBLYAI_API_KEY not set — captioned jobs will fail caption generation and complete without captions")
	}

	if cfg.MaxConcurrent < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT must be >= 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}
