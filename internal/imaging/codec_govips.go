//go:build govips && cgo

package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
)

// govipsCodec decodes every format libvips understands (HEIF, AVIF, SVG,
// JPEG XL, ...) and always writes four-band PNGs.
type govipsCodec struct{}

func (govipsCodec) Decode(data []byte) (*image.NRGBA, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if err := Startup(); err != nil {
		return nil, err
	}

	// Formats the stdlib can sniff are size-checked before libvips sees them.
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		if err := checkDimensions(cfg.Width, cfg.Height); err != nil {
			return nil, err
		}
	}

	img, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	if err := checkDimensions(img.Width(), img.Height()); err != nil {
		return nil, err
	}
	if err := img.ToColorSpace(vips.InterpretationSRGB); err != nil {
		return nil, fmt.Errorf("convert to srgb: %w", err)
	}
	if !img.HasAlpha() {
		if err := img.AddAlpha(); err != nil {
			return nil, fmt.Errorf("add alpha band: %w", err)
		}
	}

	exported, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("export decoded image: %w", err)
	}
	raster, err := png.Decode(bytes.NewReader(exported))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	return ToNRGBA(raster), nil
}

// EncodePNG shares the stdlib encoder, which already forces an alpha band.
func (govipsCodec) EncodePNG(src image.Image) ([]byte, error) {
	return encodePNG(src)
}
