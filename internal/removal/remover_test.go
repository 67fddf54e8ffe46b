package removal

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/dunamismax/cutout/internal/imaging"
	"github.com/dunamismax/cutout/internal/inference"
	"github.com/dunamismax/cutout/internal/inference/inferencetest"
	"github.com/dunamismax/cutout/internal/session"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

func newTestRemover(t *testing.T, engine *inferencetest.Engine) (*Remover, *Metrics) {
	t.Helper()

	cache, err := session.NewCache(session.EngineFactory(engine), 2)
	require.NoError(t, err)
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewRemover(cache, imaging.NewCodec(), metrics), metrics
}

// halfMask keeps the left half of the image and drops the right half.
func halfMask(_ context.Context, img *image.NRGBA, opts inference.Options) (image.Image, error) {
	b := img.Bounds()
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx()/2; x++ {
			mask.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return inference.Cutout(img, mask, opts), nil
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8((x * 255) / w), G: uint8((y * 255) / h), B: 140, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func buildTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 180
	}

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}))
	return buf.Bytes()
}

func TestRemoveReturnsTransparentPNG(t *testing.T) {
	inputs := map[string][]byte{
		"png":  buildTestPNG(t, 40, 20),
		"jpeg": buildTestJPEG(t, 40, 20),
	}

	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			engine := &inferencetest.Engine{Remove: halfMask}
			remover, _ := newTestRemover(t, engine)

			out, err := remover.Remove(context.Background(), data, domain.DefaultParams())
			require.NoError(t, err)
			require.True(t, bytes.HasPrefix(out, pngSignature))

			decoded, err := png.Decode(bytes.NewReader(out))
			require.NoError(t, err)
			nrgba, ok := decoded.(*image.NRGBA)
			require.True(t, ok, "expected a 4-channel NRGBA png, got %T", decoded)
			require.Equal(t, image.Rect(0, 0, 40, 20), nrgba.Bounds())
			require.Equal(t, uint8(255), nrgba.NRGBAAt(0, 0).A)
			require.Equal(t, uint8(0), nrgba.NRGBAAt(39, 0).A)
		})
	}
}

func TestRemoveKeepsAlphaChannelForOpaqueResult(t *testing.T) {
	remover, _ := newTestRemover(t, &inferencetest.Engine{})

	out, err := remover.Remove(context.Background(), buildTestJPEG(t, 4, 4), domain.DefaultParams())
	require.NoError(t, err)
	require.Equal(t, byte(6), out[25], "IHDR color type must be RGBA")

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	nrgba, ok := decoded.(*image.NRGBA)
	require.True(t, ok, "expected NRGBA, got %T", decoded)
	require.Equal(t, uint8(255), nrgba.NRGBAAt(3, 3).A)
}

// hugeCanvasPNG is a valid PNG header declaring a 40000x40000 RGBA canvas
// with no pixel data behind it.
func hugeCanvasPNG() []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], 40000)
	binary.BigEndian.PutUint32(ihdr[4:8], 40000)
	ihdr[8], ihdr[9] = 8, 6

	chunk := append([]byte("IHDR"), ihdr...)
	var buf bytes.Buffer
	buf.Write(pngSignature)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestRemoveRejectsHugeCanvas(t *testing.T) {
	engine := &inferencetest.Engine{}
	remover, _ := newTestRemover(t, engine)

	_, err := remover.Remove(context.Background(), hugeCanvasPNG(), domain.DefaultParams())
	require.Equal(t, KindInvalidImage, KindOf(err))
	require.ErrorIs(t, err, imaging.ErrImageTooLarge)
	require.Empty(t, engine.Calls())
}

func TestRemoveForwardsDefaultParams(t *testing.T) {
	engine := &inferencetest.Engine{}
	remover, _ := newTestRemover(t, engine)

	_, err := remover.Remove(context.Background(), buildTestPNG(t, 4, 4), domain.DefaultParams())
	require.NoError(t, err)

	calls := engine.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "u2net", calls[0].Model)
	require.Equal(t, inference.Options{
		AlphaMatting:        true,
		ForegroundThreshold: 240,
		BackgroundThreshold: 10,
		ErodeSize:           10,
	}, calls[0].Options)
}

func TestRemoveRejectsUndecodableInput(t *testing.T) {
	inputs := map[string][]byte{
		"empty":            {},
		"truncated header": []byte("\x89PNG\r\n"),
		"text":             []byte("hello world"),
		"truncated png":    buildTestPNG(t, 8, 8)[:40],
	}

	for name, data := range inputs {
		t.Run(name, func(t *testing.T) {
			engine := &inferencetest.Engine{}
			remover, metrics := newTestRemover(t, engine)

			_, err := remover.Remove(context.Background(), data, domain.DefaultParams())

			require.Error(t, err)
			require.Equal(t, KindInvalidImage, KindOf(err))
			require.Contains(t, err.Error(), "invalid image data")
			require.Zero(t, engine.Constructions("u2net"))
			require.Empty(t, engine.Calls())
			require.Equal(t, float64(1), testutil.ToFloat64(metrics.removalsTotal.WithLabelValues("u2net", "invalid_image")))
		})
	}
}

func TestRemoveClampsParams(t *testing.T) {
	data := buildTestPNG(t, 4, 4)

	cases := []struct {
		name  string
		raw   func(*domain.Params)
		canon func(*domain.Params)
	}{
		{
			name:  "foreground above range",
			raw:   func(p *domain.Params) { p.ForegroundThreshold = 999 },
			canon: func(p *domain.Params) { p.ForegroundThreshold = 255 },
		},
		{
			name:  "background below range",
			raw:   func(p *domain.Params) { p.BackgroundThreshold = -5 },
			canon: func(p *domain.Params) { p.BackgroundThreshold = 0 },
		},
		{
			name:  "erode size zero",
			raw:   func(p *domain.Params) { p.ErodeSize = 0 },
			canon: func(p *domain.Params) { p.ErodeSize = 1 },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &inferencetest.Engine{Remove: halfMask}
			remover, _ := newTestRemover(t, engine)

			raw := domain.DefaultParams()
			tc.raw(&raw)
			canon := domain.DefaultParams()
			tc.canon(&canon)

			rawOut, err := remover.Remove(context.Background(), data, raw)
			require.NoError(t, err)
			canonOut, err := remover.Remove(context.Background(), data, canon)
			require.NoError(t, err)

			require.Equal(t, canonOut, rawOut)
			calls := engine.Calls()
			require.Len(t, calls, 2)
			require.Equal(t, calls[1].Options, calls[0].Options)
		})
	}
}

func TestRemoveReusesModelSession(t *testing.T) {
	engine := &inferencetest.Engine{}
	remover, _ := newTestRemover(t, engine)
	data := buildTestPNG(t, 4, 4)

	for i := 0; i < 3; i++ {
		_, err := remover.Remove(context.Background(), data, domain.DefaultParams())
		require.NoError(t, err)
	}
	require.Equal(t, 1, engine.Constructions("u2net"))
}

func TestRemoveNormalizesConstructionFailure(t *testing.T) {
	cause := errors.New("no such model weights")
	engine := &inferencetest.Engine{NewErr: cause}
	remover, _ := newTestRemover(t, engine)

	_, err := remover.Remove(context.Background(), buildTestPNG(t, 4, 4), domain.DefaultParams())

	require.Equal(t, KindProcessingFailed, KindOf(err))
	require.Contains(t, err.Error(), "failed to remove background")
	require.Contains(t, err.Error(), "no such model weights")
	require.False(t, errors.Is(err, cause), "cause identity must not leak")
}

func TestRemoveNormalizesInferenceFailure(t *testing.T) {
	engine := &inferencetest.Engine{
		Remove: func(context.Context, *image.NRGBA, inference.Options) (image.Image, error) {
			return nil, fmt.Errorf("onnx run: out of memory")
		},
	}
	remover, _ := newTestRemover(t, engine)

	_, err := remover.Remove(context.Background(), buildTestPNG(t, 4, 4), domain.DefaultParams())
	require.Equal(t, KindProcessingFailed, KindOf(err))
	require.Contains(t, err.Error(), "out of memory")
}

func TestRemoveRecoversInferencePanic(t *testing.T) {
	engine := &inferencetest.Engine{
		Remove: func(context.Context, *image.NRGBA, inference.Options) (image.Image, error) {
			panic("native crash")
		},
	}
	remover, _ := newTestRemover(t, engine)

	_, err := remover.Remove(context.Background(), buildTestPNG(t, 4, 4), domain.DefaultParams())
	require.Equal(t, KindProcessingFailed, KindOf(err))
	require.Contains(t, err.Error(), "native crash")
}

func TestRemoveUnexpectedOutput(t *testing.T) {
	cases := map[string]inferencetest.RemoveFunc{
		"backend reports unexpected shape": func(context.Context, *image.NRGBA, inference.Options) (image.Image, error) {
			return nil, fmt.Errorf("%w: got json", inference.ErrUnexpectedOutput)
		},
		"nil image": func(context.Context, *image.NRGBA, inference.Options) (image.Image, error) {
			return nil, nil
		},
		"empty image": func(context.Context, *image.NRGBA, inference.Options) (image.Image, error) {
			return image.NewNRGBA(image.Rectangle{}), nil
		},
	}

	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			remover, _ := newTestRemover(t, &inferencetest.Engine{Remove: fn})

			_, err := remover.Remove(context.Background(), buildTestPNG(t, 4, 4), domain.DefaultParams())
			require.Equal(t, KindUnexpectedOutput, KindOf(err))
			require.Contains(t, err.Error(), "unexpected output format")
		})
	}
}

func TestRemoveUnexpectedOutputMessage(t *testing.T) {
	engine := &inferencetest.Engine{Remove: func(context.Context, *image.NRGBA, inference.Options) (image.Image, error) {
		return nil, fmt.Errorf("%w: got json", inference.ErrUnexpectedOutput)
	}}
	remover, _ := newTestRemover(t, engine)

	_, err := remover.Remove(context.Background(), buildTestPNG(t, 4, 4), domain.DefaultParams())
	require.EqualError(t, err, "unexpected output format from inference engine: got json")
}

func TestErrorMessages(t *testing.T) {
	require.Equal(t, "invalid image data: image data is empty", invalidImage(imaging.ErrEmptyInput).Error())
	require.ErrorIs(t, invalidImage(imaging.ErrEmptyInput), imaging.ErrEmptyInput)
	require.Equal(t, "unexpected output format from inference engine", unexpectedOutput("").Error())
	require.Equal(t, Kind(0), KindOf(errors.New("plain")))
}
