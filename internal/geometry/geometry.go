// Package geometry maps boxes between model input space, source frame pixels
// and display pixels. Everything here is pure and axis-aligned.
package geometry

import (
	"image"
	"math"
)

// Rect is an axis-aligned box in float coordinates. Depending on the stage it
// holds normalized [0,1] model coordinates, source pixels or display pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

func (r Rect) Width() float64  { return r.Right - r.Left }
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// Area is zero for degenerate or inverted rectangles.
func (r Rect) Area() float64 {
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (r Rect) CenterX() float64 { return (r.Left + r.Right) / 2 }
func (r Rect) CenterY() float64 { return (r.Top + r.Bottom) / 2 }

// Image rounds outward to an integer rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.Left)),
		int(math.Floor(r.Top)),
		int(math.Ceil(r.Right)),
		int(math.Ceil(r.Bottom)),
	)
}

// FromImage converts an integer rectangle.
func FromImage(r image.Rectangle) Rect {
	return Rect{Left: float64(r.Min.X), Top: float64(r.Min.Y), Right: float64(r.Max.X), Bottom: float64(r.Max.Y)}
}

// IoU returns intersection over union, 0 when the boxes are disjoint or
// either has non-positive area.
func IoU(a, b Rect) float64 {
	areaA, areaB := a.Area(), b.Area()
	if areaA <= 0 || areaB <= 0 {
		return 0
	}
	iw := math.Min(a.Right, b.Right) - math.Max(a.Left, b.Left)
	ih := math.Min(a.Bottom, b.Bottom) - math.Max(a.Top, b.Top)
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Letterbox describes how a source frame was fitted into a square model input.
type Letterbox struct {
	Gain float64
	PadX float64
	PadY float64
	DstW float64
	DstH float64
}

// LetterboxForward computes the aspect-preserving fit of srcW x srcH into dstW x dstH.
func LetterboxForward(srcW, srcH, dstW, dstH int) Letterbox {
	lb := Letterbox{Gain: 1, DstW: float64(dstW), DstH: float64(dstH)}
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return lb
	}
	lb.Gain = math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	lb.PadX = (float64(dstW) - float64(srcW)*lb.Gain) / 2
	lb.PadY = (float64(dstH) - float64(srcH)*lb.Gain) / 2
	return lb
}

// Forward maps a source-pixel rectangle into normalized model coordinates.
func (lb Letterbox) Forward(r Rect) Rect {
	if lb.DstW <= 0 || lb.DstH <= 0 {
		return r
	}
	return Rect{
		Left:   (r.Left*lb.Gain + lb.PadX) / lb.DstW,
		Top:    (r.Top*lb.Gain + lb.PadY) / lb.DstH,
		Right:  (r.Right*lb.Gain + lb.PadX) / lb.DstW,
		Bottom: (r.Bottom*lb.Gain + lb.PadY) / lb.DstH,
	}
}

// Inverse maps a normalized model-space rectangle back to source pixels. The
// result is clamped to the frame, never flipped and at least 1px on each side.
func (lb Letterbox) Inverse(r Rect, srcW, srcH int) Rect {
	if srcW <= 0 || srcH <= 0 || lb.Gain <= 0 {
		return r
	}
	w, h := float64(srcW), float64(srcH)

	x1 := clamp((clamp(r.Left, 0, 1)*lb.DstW-lb.PadX)/lb.Gain, 0, w)
	y1 := clamp((clamp(r.Top, 0, 1)*lb.DstH-lb.PadY)/lb.Gain, 0, h)
	x2 := clamp((clamp(r.Right, 0, 1)*lb.DstW-lb.PadX)/lb.Gain, 0, w)
	y2 := clamp((clamp(r.Bottom, 0, 1)*lb.DstH-lb.PadY)/lb.Gain, 0, h)

	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	x1, x2 = ensureSpan(x1, x2, w)
	y1, y2 = ensureSpan(y1, y2, h)

	return Rect{Left: x1, Top: y1, Right: x2, Bottom: y2}
}

// ensureSpan widens [lo,hi] to at least one pixel without leaving [0,limit].
func ensureSpan(lo, hi, limit float64) (float64, float64) {
	if hi-lo >= 1 {
		return lo, hi
	}
	hi = lo + 1
	if hi > limit {
		hi = limit
		lo = math.Max(0, hi-1)
	}
	return lo, hi
}

// ToDisplaySpace rotates a source-pixel rectangle by rotationDeg (0, 90, 180
// or 270, clockwise) and scales it to fill the display, centered, with the
// overflow cropped. Other rotations are treated as 0.
func ToDisplaySpace(r Rect, srcW, srcH, dispW, dispH, rotationDeg int) Rect {
	if srcW <= 0 || srcH <= 0 || dispW <= 0 || dispH <= 0 {
		return r
	}
	rotation := ((rotationDeg % 360) + 360) % 360

	effW, effH := float64(srcW), float64(srcH)
	if rotation == 90 || rotation == 270 {
		effW, effH = effH, effW
	}

	// Współrzędne liczone względem wymiarów przed obrotem
	w, h := float64(srcW), float64(srcH)
	var rot Rect
	switch rotation {
	case 90:
		rot = Rect{Left: h - r.Bottom, Top: r.Left, Right: h - r.Top, Bottom: r.Right}
	case 180:
		rot = Rect{Left: w - r.Right, Top: h - r.Bottom, Right: w - r.Left, Bottom: h - r.Top}
	case 270:
		rot = Rect{Left: r.Top, Top: w - r.Right, Right: r.Bottom, Bottom: w - r.Left}
	default:
		rot = r
	}

	scale := math.Max(float64(dispW)/effW, float64(dispH)/effH)
	dx := (float64(dispW) - effW*scale) / 2
	dy := (float64(dispH) - effH*scale) / 2

	return Rect{
		Left:   dx + rot.Left*scale,
		Top:    dy + rot.Top*scale,
		Right:  dx + rot.Right*scale,
		Bottom: dy + rot.Bottom*scale,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
