package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API       APIConfig
	Inference InferenceConfig
	Session   SessionConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

type APIConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
}

// InferenceConfig selects the backend that computes foreground masks.
type InferenceConfig struct {
	Engine            string
	RembgURL          string
	RequestTimeout    time.Duration
	ModelDir          string
	OnnxSharedLibrary string
}

type SessionConfig struct {
	CacheSize int
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

type TelemetryConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads .env (when present) and then the process environment.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		API: APIConfig{
			Addr:           env("CUTOUT_API_ADDR", "0.0.0.0:8000"),
			ReadTimeout:    envDuration("CUTOUT_API_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   envDuration("CUTOUT_API_WRITE_TIMEOUT", 5*time.Minute),
			IdleTimeout:    envDuration("CUTOUT_API_IDLE_TIMEOUT", 60*time.Second),
			MaxUploadBytes: int64(envInt("CUTOUT_MAX_UPLOAD_BYTES", 32<<20)),
		},
		Inference: InferenceConfig{
			Engine:            strings.ToLower(env("CUTOUT_ENGINE", "remote")),
			RembgURL:          env("CUTOUT_REMBG_URL", "http://localhost:7000"),
			RequestTimeout:    envDuration("CUTOUT_REMBG_TIMEOUT", 2*time.Minute),
			ModelDir:          env("CUTOUT_MODEL_DIR", defaultModelDir()),
			OnnxSharedLibrary: env("ONNXRUNTIME_SHARED_LIBRARY_PATH", ""),
		},
		Session: SessionConfig{
			CacheSize: envInt("CUTOUT_SESSION_CACHE_SIZE", 2),
		},
		Storage: StorageConfig{
			Enabled:   envBool("CUTOUT_MODEL_STORAGE_ENABLED", false),
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("CUTOUT_MODEL_BUCKET", "cutout-models"),
			Prefix:    env("CUTOUT_MODEL_PREFIX", "models"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  env("OTEL_SERVICE_NAME", "cutout"),
			Exporter:     env("CUTOUT_TRACE_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		Log: LogConfig{
			Level:  env("CUTOUT_LOG_LEVEL", "info"),
			Format: env("CUTOUT_LOG_FORMAT", "console"),
		},
	}
}

func defaultModelDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".cutout-models"
	}
	return home + string(os.PathSeparator) + ".u2net"
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
