package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CUTOUT_ENGINE", "")
	t.Setenv("CUTOUT_SESSION_CACHE_SIZE", "")
	t.Setenv("CUTOUT_API_ADDR", "")

	cfg := Load()

	require.Equal(t, "remote", cfg.Inference.Engine)
	require.Equal(t, 2, cfg.Session.CacheSize)
	require.Equal(t, "0.0.0.0:8000", cfg.API.Addr)
	require.Equal(t, int64(32<<20), cfg.API.MaxUploadBytes)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CUTOUT_ENGINE", "ONNX")
	t.Setenv("CUTOUT_SESSION_CACHE_SIZE", "4")
	t.Setenv("CUTOUT_REMBG_TIMEOUT", "15s")
	t.Setenv("CUTOUT_MODEL_STORAGE_ENABLED", "true")

	cfg := Load()

	require.Equal(t, "onnx", cfg.Inference.Engine)
	require.Equal(t, 4, cfg.Session.CacheSize)
	require.Equal(t, 15*time.Second, cfg.Inference.RequestTimeout)
	require.True(t, cfg.Storage.Enabled)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("CUTOUT_SESSION_CACHE_SIZE", "two")
	t.Setenv("CUTOUT_API_READ_TIMEOUT", "soon")
	t.Setenv("MINIO_USE_SSL", "maybe")

	cfg := Load()

	require.Equal(t, 2, cfg.Session.CacheSize)
	require.Equal(t, 30*time.Second, cfg.API.ReadTimeout)
	require.False(t, cfg.Storage.UseSSL)
}
