//go:build onnx && cgo

package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dunamismax/cutout/internal/imaging"
)

var (
	ortOnce    sync.Once
	ortInitErr error
)

func initRuntime(libPath string) error {
	ortOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

type onnxEngine struct {
	libPath string
	weights *WeightStore
}

func newONNXEngine(libPath string, weights *WeightStore) (Engine, error) {
	if err := initRuntime(libPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return &onnxEngine{libPath: libPath, weights: weights}, nil
}

func (e *onnxEngine) NewSession(ctx context.Context, model string) (Session, error) {
	spec, ok := LookupModel(model)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}

	weightsPath, err := e.weights.Path(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model %s: %w", spec.Name, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model %s declares no inputs or outputs", spec.Name)
	}

	session, err := ort.NewDynamicAdvancedSession(
		weightsPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session for %s: %w", spec.Name, err)
	}

	return &onnxSession{spec: spec, session: session}, nil
}

type onnxSession struct {
	spec ModelSpec

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

func (s *onnxSession) Model() string {
	return s.spec.Name
}

func (s *onnxSession) Remove(ctx context.Context, img *image.NRGBA, opts Options) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	size := int64(s.spec.InputSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, size, size), toTensor(img, s.spec))
	if err != nil {
		return nil, fmt.Errorf("build input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1, size, size))
	if err != nil {
		return nil, fmt.Errorf("build output tensor: %w", err)
	}
	defer output.Destroy()

	s.mu.Lock()
	if s.session == nil {
		s.mu.Unlock()
		return nil, errors.New("onnx session is closed")
	}
	err = s.session.Run([]ort.Value{input}, []ort.Value{output})
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", s.spec.Name, err)
	}

	pred := output.GetData()
	if len(pred) < s.spec.InputSize*s.spec.InputSize {
		return nil, fmt.Errorf("%w: prediction has %d values", ErrUnexpectedOutput, len(pred))
	}

	bounds := img.Bounds()
	mask := imaging.ResizeGray(maskFromPrediction(pred, s.spec.InputSize), bounds.Dx(), bounds.Dy())
	return Cutout(img, mask, opts), nil
}

func (s *onnxSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
