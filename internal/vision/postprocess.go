package vision

import (
	"kioskhelper/internal/geometry"
	"kioskhelper/internal/models"
)

// Postprocessor chains decoding, the inverse letterbox, the minimum box size
// and the button filter.
type Postprocessor struct {
	Decoder  Decoder
	Filter   Filter
	MinBoxPx float64
}

// Process returns button candidates in source pixels of a srcW x srcH frame
// that was letterboxed with lb.
func (p Postprocessor) Process(t Tensor, lb geometry.Letterbox, srcW, srcH int) ([]models.Detection, error) {
	raw, err := p.Decoder.Decode(t)
	if err != nil {
		return nil, err
	}

	mapped := make([]models.Detection, 0, len(raw))
	for _, d := range raw {
		d.Rect = lb.Inverse(d.Rect, srcW, srcH)
		if d.Rect.Width() <= p.MinBoxPx || d.Rect.Height() <= p.MinBoxPx {
			continue
		}
		mapped = append(mapped, d)
	}

	return p.Filter.Apply(mapped, srcW, srcH), nil
}
