package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dunamismax/cutout/internal/config"
	"github.com/dunamismax/cutout/internal/imaging"
	"github.com/dunamismax/cutout/internal/inference"
	"github.com/dunamismax/cutout/internal/removal"
	"github.com/dunamismax/cutout/internal/session"
	"github.com/dunamismax/cutout/internal/storage"
)

// EngineBuilder constructs the inference backend for a configuration.
type EngineBuilder func(cfg config.Config, codec imaging.Codec) (inference.Engine, error)

type app struct {
	cfg           config.Config
	logger        zerolog.Logger
	newEngine     EngineBuilder
	reloadSignals func() (<-chan os.Signal, func())
}

func newApp(cfg config.Config, logger zerolog.Logger) *app {
	return &app{cfg: cfg, logger: logger, newEngine: buildEngine, reloadSignals: notifyHUP}
}

// pipeline is everything a removal needs, built once per command.
type pipeline struct {
	cache   *session.Cache
	remover *removal.Remover
}

func (a *app) buildPipeline(reg prometheus.Registerer) (*pipeline, error) {
	codec := imaging.NewCodec()
	engine, err := a.newEngine(a.cfg, codec)
	if err != nil {
		return nil, fmt.Errorf("build inference engine: %w", err)
	}

	opts := []session.Option{session.WithLogger(a.logger)}
	var metrics *removal.Metrics
	if reg != nil {
		opts = append(opts, session.WithRegisterer(reg))
		metrics = removal.NewMetrics(reg)
	}
	cache, err := session.NewCache(session.EngineFactory(engine), a.cfg.Session.CacheSize, opts...)
	if err != nil {
		return nil, err
	}

	return &pipeline{
		cache:   cache,
		remover: removal.NewRemover(cache, codec, metrics),
	}, nil
}

func buildEngine(cfg config.Config, codec imaging.Codec) (inference.Engine, error) {
	weights, err := newWeightStore(cfg)
	if err != nil {
		return nil, err
	}
	return inference.New(cfg.Inference, codec, weights)
}

// newWeightStore resolves weights from CUTOUT_MODEL_DIR, falling back to the
// model bucket when object storage is enabled.
func newWeightStore(cfg config.Config) (*inference.WeightStore, error) {
	var fetcher inference.ObjectFetcher
	if cfg.Storage.Enabled {
		client, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create model storage client: %w", err)
		}
		fetcher = client
	}
	return inference.NewWeightStore(cfg.Inference.ModelDir, cfg.Storage.Prefix, fetcher), nil
}

func (a *app) withImaging(ctx context.Context, fn func(context.Context) error) error {
	if err := imaging.Startup(); err != nil {
		return fmt.Errorf("start imaging runtime: %w", err)
	}
	defer imaging.Shutdown()
	return fn(ctx)
}
