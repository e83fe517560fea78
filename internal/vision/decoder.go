// Package vision turns raw detector tensors into filtered button candidates.
// It holds no model runtime; the gocv adapters live in services/ai.
package vision

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"kioskhelper/internal/geometry"
	"kioskhelper/internal/models"
)

// ErrUnsupportedShape is returned for tensors that are not [1,C,N] or [1,N,C]
// with C in {5, 84, 85}.
var ErrUnsupportedShape = errors.New("unsupported detection tensor shape")

const (
	channelsSingleScore = 5  // cx,cy,w,h,score
	channelsClasses     = 84 // cx,cy,w,h + 80 class scores
	channelsObjectness  = 85 // cx,cy,w,h,obj + 80 class scores

	normalizedSampleSize  = 256
	normalizedSampleRatio = 0.8
)

// Tensor is a dense float32 detector output.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Layout describes how candidates and channels are arranged in a Tensor.
type Layout struct {
	Channels      int
	Candidates    int
	ChannelsFirst bool // [1,C,N]; otherwise [1,N,C]
}

// at returns channel c of candidate i.
func (l Layout) at(data []float32, i, c int) float64 {
	if l.ChannelsFirst {
		return float64(data[c*l.Candidates+i])
	}
	return float64(data[i*l.Channels+c])
}

// ValidateShape resolves the layout of a detector output shape.
func ValidateShape(shape []int) (Layout, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return Layout{}, fmt.Errorf("%w: %v", ErrUnsupportedShape, shape)
	}
	a, b := shape[1], shape[2]
	c, n := min(a, b), max(a, b)
	switch c {
	case channelsSingleScore, channelsClasses, channelsObjectness:
	default:
		return Layout{}, fmt.Errorf("%w: %v has %d channels", ErrUnsupportedShape, shape, c)
	}
	return Layout{Channels: c, Candidates: n, ChannelsFirst: a <= b}, nil
}

// Decoder converts a detector tensor into detections in normalized model space.
type Decoder struct {
	InputSize     int
	ConfThreshold float64
}

// Decode is deterministic for a given tensor and configuration.
func (d Decoder) Decode(t Tensor) ([]models.Detection, error) {
	layout, err := ValidateShape(t.Shape)
	if err != nil {
		return nil, err
	}
	if want := layout.Channels * layout.Candidates; len(t.Data) < want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrUnsupportedShape, want, len(t.Data))
	}

	scale := 1.0
	if !coordinatesNormalized(layout, t.Data) && d.InputSize > 0 {
		scale = float64(d.InputSize)
	}

	var classBuf []float64
	if layout.Channels != channelsSingleScore {
		classBuf = make([]float64, 80)
	}

	var out []models.Detection
	for i := 0; i < layout.Candidates; i++ {
		classID, score := d.score(layout, t.Data, i, classBuf)
		if score < d.ConfThreshold {
			continue
		}

		cx := layout.at(t.Data, i, 0) / scale
		cy := layout.at(t.Data, i, 1) / scale
		w := layout.at(t.Data, i, 2) / scale
		h := layout.at(t.Data, i, 3) / scale

		out = append(out, models.Detection{
			ClassID: classID,
			Score:   score,
			Rect: geometry.Rect{
				Left:   clamp01(cx - w/2),
				Top:    clamp01(cy - h/2),
				Right:  clamp01(cx + w/2),
				Bottom: clamp01(cy + h/2),
			},
		})
	}
	return out, nil
}

func (d Decoder) score(layout Layout, data []float32, i int, classBuf []float64) (int, float64) {
	switch layout.Channels {
	case channelsSingleScore:
		return 0, sigmoid(layout.at(data, i, 4))
	case channelsClasses:
		return bestClass(layout, data, i, 4, classBuf)
	default:
		objectness := sigmoid(layout.at(data, i, 4))
		classID, classScore := bestClass(layout, data, i, 5, classBuf)
		return classID, objectness * classScore
	}
}

// bestClass returns the argmax over the 80 class channels starting at first.
// Values already in [0,1] are taken as probabilities, anything else as a logit.
func bestClass(layout Layout, data []float32, i, first int, buf []float64) (int, float64) {
	for k := range buf {
		buf[k] = asProbability(layout.at(data, i, first+k))
	}
	idx := floats.MaxIdx(buf)
	return idx, buf[idx]
}

// coordinatesNormalized samples channel 0 and reports whether at least 80% of
// the samples already lie in [0,1].
func coordinatesNormalized(layout Layout, data []float32) bool {
	n := layout.Candidates
	if n == 0 {
		return true
	}
	step := 1
	if n > normalizedSampleSize {
		step = n / normalizedSampleSize
	}
	inside, total := 0, 0
	for i := 0; i < n; i += step {
		v := layout.at(data, i, 0)
		if v >= 0 && v <= 1 {
			inside++
		}
		total++
	}
	return float64(inside) >= normalizedSampleRatio*float64(total)
}

func asProbability(v float64) float64 {
	if v >= 0 && v <= 1 {
		return v
	}
	return sigmoid(v)
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }
