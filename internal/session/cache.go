// Package session keeps initialized model sessions around for reuse.
package session

import (
	"context"
	"fmt"
	"io"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/dunamismax/cutout/internal/inference"
)

const DefaultSize = 2

// Factory constructs the session for one model id.
type Factory func(ctx context.Context, model string) (inference.Session, error)

// Cache is a bounded LRU of model sessions. Concurrent misses for the same
// model share a single construction; failed constructions are not cached.
type Cache struct {
	factory  Factory
	sessions *lru.Cache[string, inference.Session]
	group    singleflight.Group
	logger   zerolog.Logger
	metrics  *metrics
}

type Option func(*Cache)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithRegisterer exports hit/miss/eviction counters and the entry gauge.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Cache) {
		c.metrics = newMetrics(func() float64 { return float64(c.Len()) })
		c.metrics.register(reg)
	}
}

func NewCache(factory Factory, size int, opts ...Option) (*Cache, error) {
	if factory == nil {
		return nil, fmt.Errorf("session factory is required")
	}
	if size <= 0 {
		size = DefaultSize
	}

	c := &Cache{
		factory: factory,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	sessions, err := lru.NewWithEvict[string, inference.Session](size, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("create session lru: %w", err)
	}
	c.sessions = sessions
	return c, nil
}

// EngineFactory adapts an inference engine to a cache factory.
func EngineFactory(engine inference.Engine) Factory {
	return engine.NewSession
}

func (c *Cache) Get(ctx context.Context, model string) (inference.Session, error) {
	if s, ok := c.sessions.Get(model); ok {
		c.metrics.hit()
		return s, nil
	}
	c.metrics.miss()

	// Construction outlives the caller that triggered it: other callers may be
	// waiting on the same flight.
	buildCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(model, func() (any, error) {
		if s, ok := c.sessions.Get(model); ok {
			return s, nil
		}

		c.logger.Info().Str("model", model).Msg("constructing model session")
		s, err := c.factory(buildCtx, model)
		if err != nil {
			return nil, err
		}
		c.sessions.Add(model, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(inference.Session), nil
}

func (c *Cache) Len() int {
	return c.sessions.Len()
}

// Purge drops every cached session, closing those that hold resources.
func (c *Cache) Purge() {
	c.sessions.Purge()
}

func (c *Cache) onEvict(model string, s inference.Session) {
	c.metrics.evict()
	closer, ok := s.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		c.logger.Warn().Err(err).Str("model", model).Msg("close evicted session")
		return
	}
	c.logger.Debug().Str("model", model).Msg("evicted model session")
}
