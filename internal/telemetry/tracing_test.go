package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/cutout/internal/config"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TelemetryConfig{Exporter: "none"}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupTracingRejectsBadConfig(t *testing.T) {
	_, err := SetupTracing(context.Background(), config.TelemetryConfig{Exporter: "zipkin"}, zerolog.Nop())
	require.ErrorContains(t, err, "unsupported trace exporter")

	_, err = SetupTracing(context.Background(), config.TelemetryConfig{Exporter: "otlp"}, zerolog.Nop())
	require.ErrorContains(t, err, "requires endpoint")
}
