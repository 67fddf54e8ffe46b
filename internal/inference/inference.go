// Package inference integrates the pretrained segmentation backends. Every
// backend result is normalized to an image.Image before it leaves this
// package.
package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/dunamismax/cutout/internal/config"
	"github.com/dunamismax/cutout/internal/imaging"
)

const (
	EngineRemote = "remote"
	EngineONNX   = "onnx"
)

var (
	ErrUnexpectedOutput = errors.New("unexpected inference output")
	ErrUnknownModel     = errors.New("unknown model")
)

// Options are the alpha matting tunables for a single call. Values are
// expected to be clamped already.
type Options struct {
	AlphaMatting        bool
	ForegroundThreshold int
	BackgroundThreshold int
	ErodeSize           int
}

// Session is an initialized model handle. Implementations must be safe for
// concurrent use and may implement io.Closer to release native resources.
type Session interface {
	Model() string
	Remove(ctx context.Context, img *image.NRGBA, opts Options) (image.Image, error)
}

// Engine constructs sessions. Construction is expected to be expensive.
type Engine interface {
	NewSession(ctx context.Context, model string) (Session, error)
}

// New builds the engine named by cfg.Engine. weights is only consulted by
// engines that run models in process and may be nil otherwise.
func New(cfg config.InferenceConfig, codec imaging.Codec, weights *WeightStore) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case "", EngineRemote:
		return NewRemoteEngine(RemoteConfig{
			BaseURL: cfg.RembgURL,
			Timeout: cfg.RequestTimeout,
		}, codec)
	case EngineONNX:
		if weights == nil {
			return nil, errors.New("onnx engine requires a weight store")
		}
		return newONNXEngine(cfg.OnnxSharedLibrary, weights)
	default:
		return nil, fmt.Errorf("unsupported inference engine: %s", cfg.Engine)
	}
}
