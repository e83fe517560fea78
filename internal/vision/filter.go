package vision

import (
	"sort"

	"kioskhelper/internal/geometry"
	"kioskhelper/internal/models"
)

// borderPenalty is added to the score threshold for boxes hugging the frame edge.
const borderPenalty = 0.1

// FilterParams holds the button-shape gate and NMS settings.
type FilterParams struct {
	ScoreThreshold float64
	MinRelArea     float64
	MaxRelArea     float64
	MinAspect      float64
	MaxAspect      float64
	BorderPx       float64
	NMSIoU         float64
	KeepTopK       int
	AllowClasses   map[int]bool    // nil allows every class
	ClassThreshold map[int]float64 // overrides ScoreThreshold per class
}

// DefaultFilterParams are tuned for kiosk buttons seen by a handheld camera.
func DefaultFilterParams() FilterParams {
	return FilterParams{
		ScoreThreshold: 0.40,
		MinRelArea:     0.0012,
		MaxRelArea:     0.60,
		MinAspect:      0.4,
		MaxAspect:      2.5,
		BorderPx:       8,
		NMSIoU:         0.50,
		KeepTopK:       30,
	}
}

// Filter drops detections that cannot be buttons and suppresses duplicates.
type Filter struct {
	Params FilterParams
}

// Apply runs the gate, same-class greedy NMS and the top-K cut. Boxes are in
// source pixels of a frameW x frameH frame. The input slice is not modified.
func (f Filter) Apply(dets []models.Detection, frameW, frameH int) []models.Detection {
	gated := make([]models.Detection, 0, len(dets))
	for _, d := range dets {
		if f.pass(d, float64(frameW), float64(frameH)) {
			gated = append(gated, d)
		}
	}

	kept := NMS(gated, f.Params.NMSIoU)
	if f.Params.KeepTopK > 0 && len(kept) > f.Params.KeepTopK {
		kept = kept[:f.Params.KeepTopK]
	}
	return kept
}

func (f Filter) pass(d models.Detection, frameW, frameH float64) bool {
	p := f.Params
	r := d.Rect
	w, h := r.Width(), r.Height()
	if w <= 0 || h <= 0 {
		return false
	}

	frameArea := frameW * frameH
	area := w * h
	if area < p.MinRelArea*frameArea || area > p.MaxRelArea*frameArea {
		return false
	}

	aspect := w / h
	if aspect < p.MinAspect || aspect > p.MaxAspect {
		return false
	}

	if p.AllowClasses != nil && !p.AllowClasses[d.ClassID] {
		return false
	}

	thresh := p.ScoreThreshold
	if ct, ok := p.ClassThreshold[d.ClassID]; ok {
		thresh = ct
	}
	if nearBorder(r, frameW, frameH, p.BorderPx) {
		thresh += borderPenalty
	}
	return d.Score >= thresh
}

func nearBorder(r geometry.Rect, frameW, frameH, borderPx float64) bool {
	return r.Left <= borderPx || r.Top <= borderPx ||
		r.Right >= frameW-borderPx || r.Bottom >= frameH-borderPx
}

// NMS keeps the best-scoring box of every same-class cluster whose pairwise
// IoU exceeds iouThresh. Output is sorted by descending score; ties keep
// input order.
func NMS(dets []models.Detection, iouThresh float64) []models.Detection {
	sorted := make([]models.Detection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	suppressed := make([]bool, len(sorted))
	kept := make([]models.Detection, 0, len(sorted))
	for i := range sorted {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] || sorted[j].ClassID != sorted[i].ClassID {
				continue
			}
			if geometry.IoU(sorted[i].Rect, sorted[j].Rect) > iouThresh {
				suppressed[j] = true
			}
		}
	}
	return kept
}
