package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config holds process settings read from the environment.
type Config struct {
	App        AppConfig
	Log        LogConfig
	Generation GenerationParams
	Polling    PollingConfig
}

type AppConfig struct {
	Port          string
	JWTSecret     string
	WorkspaceRoot string
	SessionTTL    time.Duration
	TokenTTL      time.Duration
}

type LogConfig struct {
	Level    string
	FilePath string
	JSON     bool
}

// GenerationParams are forwarded verbatim to every remote call as its "config" field.
type GenerationParams struct {
	ModelID        string  `json:"modelId"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"maxTokens"`
	IterationLimit int     `json:"iterationLimit"`
	Flow           string  `json:"generationFlow"`
}

type PollingConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

const (
	DefaultPollAttempts = 60
	DefaultPollInterval = 10 * time.Second
)

// Load reads settings from the environment, after loading a .env file when one exists.
func Load(logger *zap.Logger) *Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using process environment")
	}

	cwd, _ := os.Getwd()

	return &Config{
		App: AppConfig{
			Port:          getEnv("PORT", "8080"),
			JWTSecret:     getEnv("JWT_SECRET", ""),
			WorkspaceRoot: getEnv("WORKSPACE_ROOT", cwd),
			SessionTTL:    getEnvAsDuration("SESSION_TTL", time.Hour),
			TokenTTL:      getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			FilePath: getEnv("LOG_FILE_PATH", ""),
			JSON:     getEnv("LOG_FORMAT", "json") == "json",
		},
		Generation: GenerationParams{
			ModelID:        getEnv("CODEGEN_MODEL_ID", "default"),
			Temperature:    getEnvAsFloat("CODEGEN_TEMPERATURE", 0.2),
			MaxTokens:      getEnvAsInt("CODEGEN_MAX_TOKENS", 8192),
			IterationLimit: getEnvAsInt("CODEGEN_ITERATION_LIMIT", 10),
			Flow:           getEnv("CODEGEN_FLOW", "default"),
		},
		Polling: PollingConfig{
			MaxAttempts: getEnvAsInt("CODEGEN_POLL_ATTEMPTS", DefaultPollAttempts),
			Interval:    getEnvAsDuration("CODEGEN_POLL_INTERVAL", DefaultPollInterval),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
