package vision

import (
	"errors"
	"math"
	"testing"

	"kioskhelper/internal/geometry"
)

// buildTensor lays out n candidates with the given channel count; value(i, c)
// supplies channel c of candidate i.
func buildTensor(channels, n int, channelsFirst bool, value func(i, c int) float32) Tensor {
	data := make([]float32, channels*n)
	for i := 0; i < n; i++ {
		for c := 0; c < channels; c++ {
			if channelsFirst {
				data[c*n+i] = value(i, c)
			} else {
				data[i*channels+c] = value(i, c)
			}
		}
	}
	shape := []int{1, n, channels}
	if channelsFirst {
		shape = []int{1, channels, n}
	}
	return Tensor{Shape: shape, Data: data}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-4 }

func rectNear(a, b geometry.Rect) bool {
	return near(a.Left, b.Left) && near(a.Top, b.Top) && near(a.Right, b.Right) && near(a.Bottom, b.Bottom)
}

// ========================================
// Shape validation
// ========================================

func TestValidateShape(t *testing.T) {
	tests := []struct {
		shape         []int
		ok            bool
		channels      int
		candidates    int
		channelsFirst bool
	}{
		{[]int{1, 84, 8400}, true, 84, 8400, true},
		{[]int{1, 8400, 84}, true, 84, 8400, false},
		{[]int{1, 5, 2100}, true, 5, 2100, true},
		{[]int{1, 25200, 85}, true, 85, 25200, false},
		{[]int{1, 6, 8400}, false, 0, 0, false},
		{[]int{2, 84, 8400}, false, 0, 0, false},
		{[]int{84, 8400}, false, 0, 0, false},
	}

	for _, tt := range tests {
		layout, err := ValidateShape(tt.shape)
		if tt.ok != (err == nil) {
			t.Errorf("ValidateShape(%v) err = %v, expected ok=%v", tt.shape, err, tt.ok)
			continue
		}
		if err != nil {
			if !errors.Is(err, ErrUnsupportedShape) {
				t.Errorf("ValidateShape(%v) should wrap ErrUnsupportedShape, got %v", tt.shape, err)
			}
			continue
		}
		if layout.Channels != tt.channels || layout.Candidates != tt.candidates || layout.ChannelsFirst != tt.channelsFirst {
			t.Errorf("ValidateShape(%v) = %+v", tt.shape, layout)
		}
	}
}

func TestDecode_ShortDataIsRejected(t *testing.T) {
	d := Decoder{InputSize: 640, ConfThreshold: 0.25}
	_, err := d.Decode(Tensor{Shape: []int{1, 5, 100}, Data: make([]float32, 10)})
	if !errors.Is(err, ErrUnsupportedShape) {
		t.Errorf("expected ErrUnsupportedShape, got %v", err)
	}
}

// ========================================
// Score encodings
// ========================================

func TestDecode_SingleScoreChannelsFirst(t *testing.T) {
	logits := map[int]float32{0: 2, 1: -3, 2: 0}
	tensor := buildTensor(5, 100, true, func(i, c int) float32 {
		switch c {
		case 0, 1:
			return 0.5
		case 2:
			return 0.2
		case 3:
			return 0.1
		default:
			if v, ok := logits[i]; ok {
				return v
			}
			return -10
		}
	})

	dets, err := Decoder{InputSize: 640, ConfThreshold: 0.25}.Decode(tensor)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("expected 2 detections, got %d: %+v", len(dets), dets)
	}
	if !near(dets[0].Score, 1/(1+math.Exp(-2))) {
		t.Errorf("score = %v, expected sigmoid(2)", dets[0].Score)
	}
	if dets[0].ClassID != 0 {
		t.Errorf("class = %d, expected 0", dets[0].ClassID)
	}
	if !near(dets[1].Score, 0.5) {
		t.Errorf("second score = %v, expected 0.5", dets[1].Score)
	}
	expected := geometry.Rect{Left: 0.4, Top: 0.45, Right: 0.6, Bottom: 0.55}
	if !rectNear(dets[0].Rect, expected) {
		t.Errorf("rect = %+v, expected %+v", dets[0].Rect, expected)
	}
}

func TestDecode_ClassScoresPixelCoordinates(t *testing.T) {
	// [1,N,84] with absolute pixel boxes: coordinates are divided by the input size.
	tensor := buildTensor(84, 100, false, func(i, c int) float32 {
		switch c {
		case 0:
			return 320
		case 1:
			return 160
		case 2:
			return 64
		case 3:
			return 32
		}
		class := c - 4
		switch {
		case i == 0 && class == 7:
			return 0.9 // already a probability
		case i == 1 && class == 3:
			return 5 // a logit
		case i == 1 && class == 4:
			return 0.95
		}
		return 0
	})

	dets, err := Decoder{InputSize: 640, ConfThreshold: 0.25}.Decode(tensor)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(dets))
	}
	if dets[0].ClassID != 7 || !near(dets[0].Score, 0.9) {
		t.Errorf("first detection = class %d score %v, expected class 7 score 0.9", dets[0].ClassID, dets[0].Score)
	}
	if dets[1].ClassID != 3 || !near(dets[1].Score, 1/(1+math.Exp(-5))) {
		t.Errorf("second detection = class %d score %v, expected class 3 sigmoid(5)", dets[1].ClassID, dets[1].Score)
	}
	expected := geometry.Rect{Left: 288.0 / 640, Top: 144.0 / 640, Right: 352.0 / 640, Bottom: 176.0 / 640}
	if !rectNear(dets[0].Rect, expected) {
		t.Errorf("rect = %+v, expected %+v", dets[0].Rect, expected)
	}
}

func TestDecode_ObjectnessTimesClass(t *testing.T) {
	tensor := buildTensor(85, 120, true, func(i, c int) float32 {
		switch c {
		case 0, 1:
			return 0.5
		case 2, 3:
			return 0.1
		case 4:
			if i == 0 {
				return 0 // sigmoid -> 0.5
			}
			return -8
		}
		if i == 0 && c == 5+2 {
			return 0.8
		}
		return 0
	})

	dets, err := Decoder{InputSize: 640, ConfThreshold: 0.25}.Decode(tensor)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(dets))
	}
	if dets[0].ClassID != 2 || !near(dets[0].Score, 0.4) {
		t.Errorf("detection = class %d score %v, expected class 2 score 0.4", dets[0].ClassID, dets[0].Score)
	}
}

func TestDecode_BoxesClampedToUnitSquare(t *testing.T) {
	tensor := buildTensor(5, 10, true, func(i, c int) float32 {
		switch c {
		case 0, 1:
			return 0.02
		case 2, 3:
			return 0.2
		}
		return 5
	})

	dets, err := Decoder{InputSize: 640, ConfThreshold: 0.25}.Decode(tensor)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	for _, d := range dets {
		if d.Rect.Left < 0 || d.Rect.Top < 0 || d.Rect.Right > 1 || d.Rect.Bottom > 1 {
			t.Errorf("rect %+v escapes [0,1]", d.Rect)
		}
	}
}

func TestDecode_Deterministic(t *testing.T) {
	tensor := buildTensor(84, 200, true, func(i, c int) float32 {
		if c < 4 {
			return float32((i*7+c*3)%100) / 100
		}
		return float32((i*13+c*5)%17) - 8
	})
	d := Decoder{InputSize: 640, ConfThreshold: 0.3}

	first, err := d.Decode(tensor)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	second, _ := d.Decode(tensor)
	if len(first) != len(second) {
		t.Fatalf("decode not deterministic: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("detection %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}
