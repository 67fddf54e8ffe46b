package inference

import (
	"image"
	"image/color"
	"math"

	"github.com/dunamismax/cutout/internal/imaging"
)

// toTensor lays img out as a 1x3xSxS float32 tensor, scaled by the brightest
// channel value and normalized with the model's mean and std.
func toTensor(img image.Image, spec ModelSpec) []float32 {
	size := spec.InputSize
	src := imaging.ToNRGBA(imaging.Resize(img, size, size))

	var peak uint8
	for i := 0; i < len(src.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			if src.Pix[i+c] > peak {
				peak = src.Pix[i+c]
			}
		}
	}
	scale := float32(math.Max(float64(peak), 1e-6))

	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := y*src.Stride + x*4
			for c := 0; c < 3; c++ {
				v := float32(src.Pix[off+c]) / scale
				out[c*plane+y*size+x] = (v - spec.Mean[c]) / spec.Std[c]
			}
		}
	}
	return out
}

// maskFromPrediction min-max normalizes the first SxS plane of a prediction
// into an 8-bit mask.
func maskFromPrediction(pred []float32, size int) *image.Gray {
	plane := pred[:size*size]

	lo, hi := plane[0], plane[0]
	for _, v := range plane {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	span := hi - lo

	mask := image.NewGray(image.Rect(0, 0, size, size))
	for i, v := range plane {
		var n float32
		if span > 0 {
			n = (v - lo) / span
		}
		mask.SetGray(i%size, i/size, color.Gray{Y: uint8(math.Round(float64(n) * 255))})
	}
	return mask
}
