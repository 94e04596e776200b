package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL  string
	HTTPPort     string
	GatewayPort  string
	LogLevel     string
	GeminiAPIKey string // Optional, enables title generation
	StoreURL     string
	AssistantURL string
	EngineURL    string
	MaxBodyMB    int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Debug().Msg("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		DatabaseURL:  getEnv("DATABASE_URL", "querychat.db"),
		HTTPPort:     getEnv("HTTP_PORT", "4000"),
		GatewayPort:  getEnv("GATEWAY_PORT", "8000"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		StoreURL:     getEnv("STORE_URL", "http://localhost:4000"),
		AssistantURL: getEnv("ASSISTANT_URL", "http://localhost:8000/ask"),
		EngineURL:    getEnv("ENGINE_URL", "http://localhost:8001/nl-to-sql"),
		MaxBodyMB:    getEnvAsInt("MAX_BODY_MB", 10),
	}

	if AppConfig.MaxBodyMB <= 0 {
		log.Warn().Int("max_body_mb", AppConfig.MaxBodyMB).Msg("MAX_BODY_MB must be positive, using 10")
		AppConfig.MaxBodyMB = 10
	}
}

// MaxBodyBytes is the request body cap shared by the HTTP servers.
func (c Config) MaxBodyBytes() int64 {
	return int64(c.MaxBodyMB) << 20
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
