package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

type stdlibCodec struct{}

func (stdlibCodec) Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	bounds := src.Bounds()
	if err := checkDimensions(bounds.Dx(), bounds.Dy()); err != nil {
		return nil, err
	}
	return ToNRGBA(src), nil
}

func (stdlibCodec) EncodePNG(img image.Image) ([]byte, error) {
	return encodePNG(img)
}

func encodePNG(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode png: nil image")
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, alphaRaster{ToNRGBA(img)}); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// alphaRaster reports itself as never opaque so image/png always writes
// color type 6 (8-bit RGBA), even when every pixel has full alpha.
type alphaRaster struct {
	*image.NRGBA
}

func (alphaRaster) Opaque() bool {
	return false
}
