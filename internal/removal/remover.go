package removal

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/imaging"
	"github.com/dunamismax/cutout/internal/inference"
)

// SessionProvider hands out model sessions, normally a *session.Cache.
type SessionProvider interface {
	Get(ctx context.Context, model string) (inference.Session, error)
}

type Remover struct {
	sessions SessionProvider
	codec    imaging.Codec
	metrics  *Metrics
	tracer   trace.Tracer
}

func NewRemover(sessions SessionProvider, codec imaging.Codec, metrics *Metrics) *Remover {
	if codec == nil {
		codec = imaging.NewCodec()
	}
	return &Remover{
		sessions: sessions,
		codec:    codec,
		metrics:  metrics,
		tracer:   otel.Tracer("cutout/removal"),
	}
}

// Remove strips the background from data and returns PNG bytes. Every
// failure is a *Error. Parameters are clamped, never rejected.
func (r *Remover) Remove(ctx context.Context, data []byte, params domain.Params) ([]byte, error) {
	startedAt := time.Now()
	params = params.Clamp()
	logger := zerolog.Ctx(ctx)

	ctx, span := r.tracer.Start(ctx, "removal.remove")
	span.SetAttributes(
		attribute.String("removal.model", params.Model),
		attribute.Bool("removal.alpha_matting", params.AlphaMatting),
		attribute.Int("removal.input_bytes", len(data)),
	)
	defer span.End()

	out, err := r.remove(ctx, data, params)
	if err != nil {
		var re *Error
		errors.As(err, &re)
		span.RecordError(err)
		span.SetStatus(codes.Error, re.Kind.String())
		r.metrics.observe(params.Model, re.Kind.String(), time.Since(startedAt))
		logger.Warn().Str("model", params.Model).Str("kind", re.Kind.String()).Err(err).Msg("background removal failed")
		return nil, err
	}

	span.SetAttributes(attribute.Int("removal.output_bytes", len(out)))
	span.SetStatus(codes.Ok, "removed")
	r.metrics.observe(params.Model, "ok", time.Since(startedAt))
	logger.Debug().
		Str("model", params.Model).
		Int("input_bytes", len(data)).
		Int("output_bytes", len(out)).
		Dur("duration", time.Since(startedAt)).
		Msg("background removed")
	return out, nil
}

func (r *Remover) remove(ctx context.Context, data []byte, params domain.Params) ([]byte, error) {
	img, err := r.codec.Decode(data)
	if err != nil {
		return nil, invalidImage(err)
	}

	result, err := r.infer(ctx, img, params)
	if err != nil {
		if errors.Is(err, inference.ErrUnexpectedOutput) {
			return nil, unexpectedOutput(outputDetail(err))
		}
		return nil, processingFailed(err)
	}

	if result == nil || result.Bounds().Empty() {
		return nil, unexpectedOutput("empty result image")
	}

	out, err := r.codec.EncodePNG(result)
	if err != nil {
		return nil, unexpectedOutput(err.Error())
	}
	return out, nil
}

// outputDetail drops the sentinel's own text so the message reads once.
func outputDetail(err error) string {
	msg := err.Error()
	sentinel := inference.ErrUnexpectedOutput.Error()
	if msg == sentinel {
		return ""
	}
	return strings.TrimPrefix(msg, sentinel+": ")
}

func (r *Remover) infer(ctx context.Context, img *image.NRGBA, params domain.Params) (result image.Image, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("inference panicked: %v", p)
		}
	}()

	session, err := r.sessions.Get(ctx, params.Model)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", params.Model, err)
	}

	return session.Remove(ctx, img, inference.Options{
		AlphaMatting:        params.AlphaMatting,
		ForegroundThreshold: params.ForegroundThreshold,
		BackgroundThreshold: params.BackgroundThreshold,
		ErodeSize:           params.ErodeSize,
	})
}
