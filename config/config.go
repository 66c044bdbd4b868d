package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the engine configuration. Values come from the environment
// (optionally via a .env file) with sensible defaults for local development.
type Config struct {
	// HTTP server
	ListenAddr string

	// Engine
	SampleRate    int // frames per second
	QuantumFrames int // frames per render quantum
	Channels      int // output channel count (interleaved)

	// Asset import
	FFmpegPath     string
	ImportWatchDir string // directory watched for dropped audio files; empty disables the watcher

	// MySQL
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	// Auth
	JWTSecret          string
	ControlSecretHash  string // bcrypt hash of the control passphrase
	SessionTTLMinutes  int
	DedupWindowSeconds int // retry-dedup window for client request ids

	// Logging
	LogLevel string
	LogPath  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load does not override variables already set in the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables and defaults.")
	}

	return &Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		SampleRate:    getEnvInt("SAMPLE_RATE", 48000),
		QuantumFrames: getEnvInt("QUANTUM_FRAMES", 512),
		Channels:      getEnvInt("CHANNELS", 2),

		FFmpegPath:     getEnv("FFMPEG_PATH", "ffmpeg"),
		ImportWatchDir: getEnv("IMPORT_WATCH_DIR", ""),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "mixdown"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "mixdown"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		JWTSecret:          getEnv("JWT_SECRET", "dev-secret-change-me"),
		ControlSecretHash:  os.Getenv("CONTROL_SECRET_HASH"),
		SessionTTLMinutes:  getEnvInt("SESSION_TTL_MINUTES", 12*60),
		DedupWindowSeconds: getEnvInt("DEDUP_WINDOW_SECONDS", 300),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", ""),
	}
}
