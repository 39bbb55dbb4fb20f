package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Port          string
	MaxUploadSize int64 // bytes
}

type ModelConfig struct {
	Path         string
	MetadataPath string
	LibraryPath  string // onnxruntime shared library, empty for the system default
}

type ClassifyConfig struct {
	TopK      int
	CacheSize int
	MaxPixels int // largest accepted width*height of an uploaded image
}

type LogConfig struct {
	Level  string
	Format string // json or console
	Output string // stdout or stderr
	File   string // rotated log file, empty for console output only
}

type Config struct {
	Server   ServerConfig
	Model    ModelConfig
	Classify ClassifyConfig
	Log      LogConfig
}

// Load reads .env (if present) then environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	root, err := projectRoot()
	if err != nil {
		return nil, err
	}

	topK, err := intEnv("TOP_K", 5)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("TOP_K must be positive, got %d", topK)
	}

	cacheSize, err := intEnv("CACHE_SIZE", 128)
	if err != nil {
		return nil, err
	}
	if cacheSize < 0 {
		return nil, fmt.Errorf("CACHE_SIZE must not be negative, got %d", cacheSize)
	}

	maxPixels, err := intEnv("MAX_PIXELS", 40_000_000)
	if err != nil {
		return nil, err
	}
	if maxPixels <= 0 {
		return nil, fmt.Errorf("MAX_PIXELS must be positive, got %d", maxPixels)
	}

	maxUploadMB, err := intEnv("MAX_UPLOAD_MB", 10)
	if err != nil {
		return nil, err
	}
	if maxUploadMB <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", maxUploadMB)
	}

	return &Config{
		Server: ServerConfig{
			Port:          strEnv("PORT", "8080"),
			MaxUploadSize: int64(maxUploadMB) << 20,
		},
		Model: ModelConfig{
			Path:         strEnv("MODEL_PATH", filepath.Join(root, "models", "model_embedded.onnx")),
			MetadataPath: strEnv("METADATA_PATH", filepath.Join(root, "models", "model_metadata.json")),
			LibraryPath:  strEnv("ONNXRUNTIME_LIB", ""),
		},
		Classify: ClassifyConfig{
			TopK:      topK,
			CacheSize: cacheSize,
			MaxPixels: maxPixels,
		},
		Log: LogConfig{
			Level:  strEnv("LOG_LEVEL", "info"),
			Format: strEnv("LOG_FORMAT", "json"),
			Output: strEnv("LOG_OUTPUT", "stdout"),
			File:   strEnv("LOG_FILE", ""),
		},
	}, nil
}

// projectRoot is the working directory, or two levels up when running from
// a cmd/<name> directory.
func projectRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	if filepath.Base(filepath.Dir(wd)) == "cmd" {
		wd = filepath.Join(wd, "../..")
	}
	return filepath.Clean(wd), nil
}

func strEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
