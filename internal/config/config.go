package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisAddr string
	RedisURL  string

	WorkerCount int
	WorkDir     string

	// MinIO/S3 configuration
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Collaborator service endpoints
	STTServiceURL       string
	DiarizeServiceURL   string
	TranslateServiceURL string
	TTSServiceURL       string
	TTSDefaultVoiceID   string

	// Dialect refinement subprocess (empty disables refinement)
	DialectCommand string

	// Webhook delivery
	WebhookSecret  string
	WebhookTimeout time.Duration

	// Externally reachable address of this server, used in callback
	// payloads to link back to results
	PublicBaseURL string

	FFmpegPath  string
	FFprobePath string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first when present.
func Load() *Config {
	_ = godotenv.Load()

	workerCount, _ := strconv.Atoi(getEnvOrDefault("WORKER_COUNT", "3"))
	if workerCount <= 0 {
		workerCount = 3
	}

	minioUseSSL, _ := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", "false"))

	webhookTimeout, err := time.ParseDuration(getEnvOrDefault("WEBHOOK_TIMEOUT", "5s"))
	if err != nil || webhookTimeout <= 0 {
		webhookTimeout = 5 * time.Second
	}

	return &Config{
		ServerAddr:          getEnvOrDefault("SERVER_ADDR", ":8080"),
		DBHost:              getEnvOrDefault("DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("DB_PORT", "5432"),
		DBUser:              getEnvOrDefault("DB_USER", "vocalfuse"),
		DBPassword:          getEnvOrDefault("DB_PASSWORD", "vocalfuse_dev_password"),
		DBName:              getEnvOrDefault("DB_NAME", "vocalfuse"),
		RedisAddr:           getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisURL:            getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		WorkerCount:         workerCount,
		WorkDir:             getEnvOrDefault("WORK_DIR", os.TempDir()),
		MinioEndpoint:       getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:      getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:      getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:         getEnvOrDefault("MINIO_BUCKET", "dub-artifacts"),
		MinioUseSSL:         minioUseSSL,
		STTServiceURL:       getEnvOrDefault("STT_SERVICE_URL", "http://localhost:9001"),
		DiarizeServiceURL:   getEnvOrDefault("DIARIZE_SERVICE_URL", "http://localhost:9002"),
		TranslateServiceURL: getEnvOrDefault("TRANSLATE_SERVICE_URL", "http://localhost:9003"),
		TTSServiceURL:       getEnvOrDefault("TTS_SERVICE_URL", "http://localhost:9004"),
		TTSDefaultVoiceID:   getEnvOrDefault("TTS_DEFAULT_VOICE_ID", "nPczCjzI2devNBz1zQrb"),
		DialectCommand:      getEnvOrDefault("DIALECT_COMMAND", ""),
		WebhookSecret:       getEnvOrDefault("WEBHOOK_SECRET", generateDefaultSecret()),
		WebhookTimeout:      webhookTimeout,
		PublicBaseURL:       getEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"),
		FFmpegPath:          getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:         getEnvOrDefault("FFPROBE_PATH", "ffprobe"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func generateDefaultSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "dev-secret-change-in-production"
	}
	return hex.EncodeToString(bytes)
}
