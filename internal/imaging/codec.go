package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// MaxPixels bounds width*height of a decoded image. Headers are checked
// before any raster is allocated, so a tiny file claiming a huge canvas is
// rejected instead of exhausting memory.
const MaxPixels = 178956970

var (
	ErrEmptyInput    = errors.New("image data is empty")
	ErrEmptyImage    = errors.New("image has zero width or height")
	ErrImageTooLarge = errors.New("image dimensions exceed the pixel limit")
)

// Codec turns encoded bytes into an RGBA raster and back into PNG.
type Codec interface {
	Decode(data []byte) (*image.NRGBA, error)
	EncodePNG(img image.Image) ([]byte, error)
}

func checkDimensions(width, height int) error {
	if width <= 0 || height <= 0 {
		return ErrEmptyImage
	}
	if int64(width)*int64(height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, width, height)
	}
	return nil
}

// NewCodec returns the codec selected at build time: govips when built with
// the govips tag and cgo, the standard library decoders otherwise.
func NewCodec() Codec {
	return newCodec()
}

// ToNRGBA copies img into a non-premultiplied RGBA raster anchored at (0,0).
// An *image.NRGBA already anchored at the origin is returned as is.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Resize scales img to exactly width x height with a Lanczos3 kernel.
func Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
}

// ResizeGray scales a mask, keeping it single channel.
func ResizeGray(mask *image.Gray, width, height int) *image.Gray {
	resized := Resize(mask, width, height)
	if g, ok := resized.(*image.Gray); ok {
		return g
	}
	b := resized.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), resized, b.Min, draw.Src)
	return out
}
