package labeling

import (
	"image"
	"math"

	"golang.org/x/image/draw"

	"kioskhelper/internal/geometry"
)

// CropOptions controls how a button box is cut out of the frame before OCR
// and icon classification.
type CropOptions struct {
	PadRatio         float64 // padding per side, relative to the box size
	MinPadPx         float64
	MinSidePx        float64
	UpscaleShortSide float64 // crops with a shorter side are enlarged to this
	MaxLongSide      float64 // upscaling never makes the long side exceed this
}

func DefaultCropOptions() CropOptions {
	return CropOptions{
		PadRatio:         0.15,
		MinPadPx:         2,
		MinSidePx:        32,
		UpscaleShortSide: 96,
		MaxLongSide:      512,
	}
}

// ExpandRect pads r, grows it around its center to the minimum side and
// clamps it to the bounds.
func ExpandRect(r geometry.Rect, bounds image.Rectangle, opts CropOptions) image.Rectangle {
	padX := math.Max(r.Width()*opts.PadRatio, opts.MinPadPx)
	padY := math.Max(r.Height()*opts.PadRatio, opts.MinPadPx)
	left, top := r.Left-padX, r.Top-padY
	right, bottom := r.Right+padX, r.Bottom+padY

	if w := right - left; w < opts.MinSidePx {
		grow := (opts.MinSidePx - w) / 2
		left, right = left-grow, right+grow
	}
	if h := bottom - top; h < opts.MinSidePx {
		grow := (opts.MinSidePx - h) / 2
		top, bottom = top-grow, bottom+grow
	}

	out := geometry.Rect{Left: left, Top: top, Right: right, Bottom: bottom}.Image().Intersect(bounds)
	if out.Empty() {
		// Box outside the frame: fall back to the nearest single pixel.
		x := clampInt(int(r.Left), bounds.Min.X, bounds.Max.X-1)
		y := clampInt(int(r.Top), bounds.Min.Y, bounds.Max.Y-1)
		out = image.Rect(x, y, x+1, y+1).Intersect(bounds)
	}
	return out
}

// Crop copies the expanded button region into a fresh buffer, upscaled when
// it is too small for OCR. The returned image does not alias src.
func Crop(src image.Image, r geometry.Rect, opts CropOptions) *image.RGBA {
	region := ExpandRect(r, src.Bounds(), opts)
	w, h := region.Dx(), region.Dy()
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}

	scale := 1.0
	short, long := float64(min(w, h)), float64(max(w, h))
	if opts.UpscaleShortSide > 0 && short < opts.UpscaleShortSide {
		scale = opts.UpscaleShortSide / short
		if opts.MaxLongSide > 0 && long*scale > opts.MaxLongSide {
			scale = math.Max(1, opts.MaxLongSide/long)
		}
	}

	if scale == 1 {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Copy(dst, image.Point{}, src, region, draw.Src, nil)
		return dst
	}

	dst := image.NewRGBA(image.Rect(0, 0, int(math.Round(float64(w)*scale)), int(math.Round(float64(h)*scale))))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, region, draw.Src, nil)
	return dst
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
