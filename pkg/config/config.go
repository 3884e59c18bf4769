package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server struct {
		Port     string
		GRPCPort string
		Env      string
		Timeout  time.Duration
		Version  string
	}

	// Storage selects and configures the session key-value backend
	Storage struct {
		Backend        string
		RedisURL       string
		RedisKeyPrefix string
		SQLitePath     string
		MongoURI       string
		MongoDatabase  string
		Timeout        time.Duration
	}

	// Database configuration for the postgres backend
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		MaxConns int
		Timeout  time.Duration
	}

	// Generation configures the chat completion collaborator
	Generation struct {
		APIKey      string
		BaseURL     string
		Model       string
		Timeout     time.Duration
		MaxTokens   int
		Temperature float32
		TopP        float32
	}

	// Transcription configures the speech-to-text collaborator
	Transcription struct {
		APIKey       string
		BaseURL      string
		Model        string
		Language     string
		Timeout      time.Duration
		MaxAudioSize int64
	}

	// Speech configures the text-to-speech collaborator
	Speech struct {
		APIKey  string
		BaseURL string
		Model   string
		Voice   string
		Timeout time.Duration
	}

	// Security configuration
	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		MaxBodySize    int64
	}

	// Logging configuration
	Logging struct {
		Level  string
		Format string
	}

	// Cache settings for context records
	Cache struct {
		Enabled     bool
		TTL         time.Duration
		PurgeWindow time.Duration
	}

	// Observability toggles
	Observability struct {
		TracingEnabled bool
		MetricsEnabled bool
		ServiceName    string
	}

	// Prompt assets and API schema
	Assets struct {
		PersonasFile      string
		OpenAPISchemaPath string
	}

	// Vault secret lookup
	Vault struct {
		Enabled bool
	}
}

var (
	instance *Config
	once     sync.Once
)

// New creates a new Config instance with values from environment variables
// Uses singleton pattern to ensure only one instance exists
func New() *Config {
	once.Do(func() {
		// Load .env file if exists
		_ = godotenv.Load()
		instance = Load()
	})

	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads a fresh Config from the environment without touching the singleton
func Load() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnvString("PORT", "8787")
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", "")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 60*time.Second)
	cfg.Server.Version = getEnvString("APP_VERSION", "dev")

	cfg.Storage.Backend = strings.ToLower(getEnvString("STORAGE_BACKEND", "memory"))
	cfg.Storage.RedisURL = getEnvString("REDIS_URL", "redis://localhost:6379/0")
	cfg.Storage.RedisKeyPrefix = getEnvString("REDIS_KEY_PREFIX", "chat:")
	cfg.Storage.SQLitePath = getEnvString("SQLITE_PATH", "chat-memory.db")
	cfg.Storage.MongoURI = getEnvString("MONGO_URI", "mongodb://localhost:27017")
	cfg.Storage.MongoDatabase = getEnvString("MONGO_DATABASE", "chat_memory")
	cfg.Storage.Timeout = getEnvDuration("STORAGE_TIMEOUT", 5*time.Second)

	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "chat_memory")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Timeout = getEnvDuration("DB_TIMEOUT", 5*time.Second)

	cfg.Generation.APIKey = getEnvString("GENERATION_API_KEY", os.Getenv("OPENAI_API_KEY"))
	cfg.Generation.BaseURL = getEnvString("GENERATION_BASE_URL", "")
	cfg.Generation.Model = getEnvString("GENERATION_MODEL", "gpt-4o-mini")
	cfg.Generation.Timeout = getEnvDuration("GENERATION_TIMEOUT", 30*time.Second)
	cfg.Generation.MaxTokens = getEnvInt("GENERATION_MAX_TOKENS", 512)
	cfg.Generation.Temperature = getEnvFloat32("GENERATION_TEMPERATURE", 0.7)
	cfg.Generation.TopP = getEnvFloat32("GENERATION_TOP_P", 0.9)

	cfg.Transcription.APIKey = getEnvString("TRANSCRIPTION_API_KEY", cfg.Generation.APIKey)
	cfg.Transcription.BaseURL = getEnvString("TRANSCRIPTION_BASE_URL", cfg.Generation.BaseURL)
	cfg.Transcription.Model = getEnvString("TRANSCRIPTION_MODEL", "whisper-1")
	cfg.Transcription.Language = getEnvString("TRANSCRIPTION_LANGUAGE", "")
	cfg.Transcription.Timeout = getEnvDuration("TRANSCRIPTION_TIMEOUT", 60*time.Second)
	cfg.Transcription.MaxAudioSize = getEnvInt64("MAX_AUDIO_SIZE", 25<<20) // 25MB, the Whisper upload limit

	cfg.Speech.APIKey = getEnvString("SPEECH_API_KEY", cfg.Generation.APIKey)
	cfg.Speech.BaseURL = getEnvString("SPEECH_BASE_URL", cfg.Generation.BaseURL)
	cfg.Speech.Model = getEnvString("SPEECH_MODEL", "tts-1")
	cfg.Speech.Voice = getEnvString("SPEECH_VOICE", "alloy")
	cfg.Speech.Timeout = getEnvDuration("SPEECH_TIMEOUT", 30*time.Second)

	cfg.Security.RateLimit = getEnvFloat64("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 30<<20)

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.Cache.Enabled = getEnvBool("CACHE_ENABLED", true)
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 5*time.Minute)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.Observability.MetricsEnabled = getEnvBool("METRICS_ENABLED", true)
	cfg.Observability.ServiceName = getEnvString("SERVICE_NAME", "ai-voice-chat")

	cfg.Assets.PersonasFile = getEnvString("PERSONAS_FILE", "")
	cfg.Assets.OpenAPISchemaPath = getEnvString("OPENAPI_SCHEMA_PATH", "")

	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)

	return cfg
}

// IsProduction reports whether the service runs with APP_ENV=production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions to read environment variables with default values

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvFloat32(key string, defaultValue float32) float32 {
	return float32(getEnvFloat64(key, float64(defaultValue)))
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
