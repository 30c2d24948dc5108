package common

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ErrAPIKeyMissing is returned by LoadConfig when no credential is configured.
var ErrAPIKeyMissing = errors.New("GEMINI_API_KEY is required")

const (
	DefaultBaseURL   = "https://generativelanguage.googleapis.com"
	DefaultModelName = "imagen-3.0-generate-002"
)

// Config holds the process-wide settings, read once at startup.
type Config struct {
	// Upstream
	GenAIProvider       string // rest or sdk
	GenAIBaseURL        string
	GenAIAPIKey         string
	GenAIModelName      string
	GenAITimeoutSeconds int

	// Image store: empty (disabled), local or oss
	ImageStore    string
	ImageDir      string
	ImageHTTPAddr string

	// OSS (S3 compatible)
	OSSEndpoint  string
	OSSRegion    string
	OSSAccessKey string
	OSSSecretKey string
	OSSBucket    string
	OSSPathStyle bool // bucket in the path instead of the host, for MinIO and similar

	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
	LogOutput string // stdout, stderr, file
	LogFile   string
}

// LoadConfig reads a .env file if present, then the environment, and
// initializes the logger.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// stdout carries MCP frames
		fmt.Fprintln(os.Stderr, "Warning: .env file not found, using environment variables")
	}

	config, err := configFromEnv()
	if err != nil {
		return nil, err
	}

	logConfig := &LogConfig{
		Level:    config.LogLevel,
		Format:   config.LogFormat,
		Output:   config.LogOutput,
		FilePath: config.LogFile,
	}
	if err := InitLogger(logConfig); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return config, nil
}

func configFromEnv() (*Config, error) {
	config := &Config{
		GenAIProvider:       strings.ToLower(getEnv("GENAI_PROVIDER", "rest")),
		GenAIBaseURL:        strings.TrimRight(getEnv("BASE_URL", DefaultBaseURL), "/"),
		GenAIAPIKey:         strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GenAIModelName:      getEnv("GENAI_MODEL_NAME", DefaultModelName),
		GenAITimeoutSeconds: getEnvInt("GENAI_TIMEOUT_SECONDS", 60),
		ImageStore:          strings.ToLower(getEnv("IMAGE_STORE", "")),
		ImageDir:            getEnv("IMAGE_DIR", defaultImageDir()),
		ImageHTTPAddr:       getEnv("IMAGE_HTTP_ADDR", ""),
		OSSEndpoint:         getEnv("OSS_ENDPOINT", ""),
		OSSRegion:           getEnv("OSS_REGION", "us-east-1"),
		OSSAccessKey:        getEnv("OSS_ACCESS_KEY", ""),
		OSSSecretKey:        getEnv("OSS_SECRET_KEY", ""),
		OSSBucket:           getEnv("OSS_BUCKET", ""),
		OSSPathStyle:        strings.EqualFold(getEnv("OSS_PATH_STYLE", "false"), "true"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
		LogOutput:           getEnv("LOG_OUTPUT", "stderr"),
		LogFile:             getEnv("LOG_FILE", ""),
	}

	if config.GenAIAPIKey == "" {
		return nil, ErrAPIKeyMissing
	}

	switch config.GenAIProvider {
	case "rest", "sdk":
	default:
		return nil, fmt.Errorf("unsupported GENAI_PROVIDER: %s", config.GenAIProvider)
	}

	switch config.ImageStore {
	case "", "local":
	case "oss":
		if config.OSSBucket == "" {
			return nil, fmt.Errorf("OSS_BUCKET is required when IMAGE_STORE=oss")
		}
	default:
		return nil, fmt.Errorf("unsupported IMAGE_STORE: %s", config.ImageStore)
	}

	if config.GenAITimeoutSeconds <= 0 {
		return nil, fmt.Errorf("GENAI_TIMEOUT_SECONDS must be positive, got %d", config.GenAITimeoutSeconds)
	}

	return config, nil
}

// getEnv returns the variable's value or defaultValue when unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return defaultValue
}

func defaultImageDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "imagen-mcp", "images")
}

// MaskAPIKey hides all but the edges of a secret for display.
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
