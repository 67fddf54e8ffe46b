package inference

import (
	"image"
	"image/color"
)

// Cutout applies a foreground mask to img. With alpha matting the mask is
// split into a trimap: pixels above the foreground threshold become opaque,
// pixels below the background threshold transparent (both regions eroded by
// ErodeSize), and the band in between keeps the soft mask rescaled between
// the two thresholds. Without alpha matting the mask is used as alpha.
// Source transparency is preserved in both modes.
func Cutout(img *image.NRGBA, mask *image.Gray, opts Options) *image.NRGBA {
	alpha := mask
	if opts.AlphaMatting {
		alpha = trimapAlpha(mask, opts.ForegroundThreshold, opts.BackgroundThreshold, opts.ErodeSize)
	}

	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			px := img.NRGBAAt(b.Min.X+x, b.Min.Y+y)
			a := alpha.GrayAt(alpha.Rect.Min.X+x, alpha.Rect.Min.Y+y).Y
			px.A = uint8(uint16(px.A) * uint16(a) / 255)
			out.SetNRGBA(x, y, px)
		}
	}
	return out
}

func trimapAlpha(mask *image.Gray, fgThreshold, bgThreshold, erodeSize int) *image.Gray {
	b := mask.Bounds()
	w, h := b.Dx(), b.Dy()

	fg := make([]bool, w*h)
	bg := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := int(mask.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			fg[y*w+x] = v > fgThreshold
			bg[y*w+x] = v < bgThreshold
		}
	}
	if erodeSize > 1 {
		fg = erode(fg, w, h, erodeSize)
		bg = erode(bg, w, h, erodeSize)
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	span := fgThreshold - bgThreshold
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			switch {
			case fg[i]:
				out.SetGray(x, y, color.Gray{Y: 255})
			case bg[i]:
				out.SetGray(x, y, color.Gray{Y: 0})
			default:
				v := int(mask.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
				if span > 0 {
					v = (v - bgThreshold) * 255 / span
				}
				out.SetGray(x, y, color.Gray{Y: uint8(clampInt(v, 0, 255))})
			}
		}
	}
	return out
}

// erode is a binary erosion with a size x size square element. Pixels
// outside the image count as unset, so regions touching the border shrink.
func erode(in []bool, w, h, size int) []bool {
	before := size / 2
	after := size - 1 - before

	horizontal := make([]bool, len(in))
	for y := 0; y < h; y++ {
		erodeLine(in[y*w:(y+1)*w], horizontal[y*w:(y+1)*w], before, after)
	}

	column := make([]bool, h)
	eroded := make([]bool, h)
	out := make([]bool, len(in))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			column[y] = horizontal[y*w+x]
		}
		erodeLine(column, eroded, before, after)
		for y := 0; y < h; y++ {
			out[y*w+x] = eroded[y]
		}
	}
	return out
}

func erodeLine(in, out []bool, before, after int) {
	n := len(in)
	prefix := make([]int, n+1)
	for i, v := range in {
		prefix[i+1] = prefix[i]
		if v {
			prefix[i+1]++
		}
	}
	for i := 0; i < n; i++ {
		lo, hi := i-before, i+after
		if lo < 0 || hi >= n {
			out[i] = false
			continue
		}
		out[i] = prefix[hi+1]-prefix[lo] == hi-lo+1
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
