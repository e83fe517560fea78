// Package pipeline runs one camera frame through detection, tracking and
// label fusion and keeps the latest button snapshot for readers.
package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"kioskhelper/internal/geometry"
	"kioskhelper/internal/models"
	"kioskhelper/internal/tracker"
)

var ErrEmptyFrame = errors.New("empty frame")

// Detector returns filtered button detections in source pixels.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]models.Detection, error)
}

// Labeler fills text and role into buttons; *labeling.Fusion implements it.
type Labeler interface {
	Refresh(ctx context.Context, frame image.Image, buttons []models.TrackedButton) []models.TrackedButton
}

type Logger interface {
	Info(format string, v ...interface{})
	Warning(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// Frame is one camera image plus how the kiosk screen shows it. A zero
// display size means the rotated source size.
type Frame struct {
	Image    image.Image
	Rotation int
	DisplayW int
	DisplayH int
}

// Pipeline is driven by a single worker. Buttons and ForceRedetect may be
// called from any goroutine.
type Pipeline struct {
	detector Detector
	tracker  *tracker.Tracker
	labeler  Labeler
	logger   Logger
	interval int

	frameCount int
	labels     map[int]models.TrackedButton

	redetect atomic.Bool

	mu      sync.RWMutex
	buttons []models.TrackedButton
	frameW  int
	frameH  int
}

// New builds a Pipeline. detectInterval runs the detector on every Nth frame;
// frames in between reuse the tracker's prediction. labeler may be nil.
func New(detector Detector, tr *tracker.Tracker, labeler Labeler, detectInterval int, logger Logger) *Pipeline {
	if detectInterval <= 0 {
		detectInterval = 1
	}
	return &Pipeline{
		detector: detector,
		tracker:  tr,
		labeler:  labeler,
		logger:   logger,
		interval: detectInterval,
		labels:   make(map[int]models.TrackedButton),
	}
}

// Process runs one frame and returns the new button snapshot. Detector errors
// are logged and the frame falls back to the tracker's prediction.
func (p *Pipeline) Process(ctx context.Context, f Frame) ([]models.TrackedButton, error) {
	if f.Image == nil || f.Image.Bounds().Empty() {
		return nil, ErrEmptyFrame
	}

	if p.redetect.Swap(false) {
		p.tracker.Reset()
		p.labels = make(map[int]models.TrackedButton)
		p.frameCount = 0
		p.logger.Info("🔄 Tracker reset, detecting from scratch")
	}

	var tracks []tracker.Track
	if p.frameCount%p.interval == 0 {
		dets, err := p.detector.Detect(ctx, f.Image)
		if err != nil {
			p.logger.Warning("Detection failed, using prediction: %v", err)
			tracks = p.tracker.Predict()
		} else {
			tracks = p.tracker.Update(dets)
		}
	} else {
		tracks = p.tracker.Predict()
	}
	p.frameCount++

	srcW, srcH := f.Image.Bounds().Dx(), f.Image.Bounds().Dy()
	dispW, dispH := displaySize(f, srcW, srcH)

	buttons := make([]models.TrackedButton, 0, len(tracks))
	for _, t := range tracks {
		b := models.TrackedButton{
			ID:          t.ID,
			RectSource:  t.Rect,
			RectDisplay: geometry.ToDisplaySpace(t.Rect, srcW, srcH, dispW, dispH, f.Rotation),
			Score:       t.Score,
		}
		// Etykiety przechodzą między klatkami po ID toru
		if prev, ok := p.labels[t.ID]; ok {
			b.Text = prev.Text
			b.Role = prev.Role
			b.LabelUpdatedAt = prev.LabelUpdatedAt
		}
		buttons = append(buttons, b)
	}

	if p.labeler != nil && len(buttons) > 0 {
		buttons = p.labeler.Refresh(ctx, f.Image, buttons)
	}

	p.labels = make(map[int]models.TrackedButton, len(buttons))
	for _, b := range buttons {
		p.labels[b.ID] = b
	}

	p.mu.Lock()
	p.buttons = buttons
	p.frameW, p.frameH = dispW, dispH
	p.mu.Unlock()

	return p.Buttons(), nil
}

// Buttons returns a copy of the latest snapshot.
func (p *Pipeline) Buttons() []models.TrackedButton {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.TrackedButton, len(p.buttons))
	copy(out, p.buttons)
	return out
}

// DisplaySize is the display size of the latest snapshot.
func (p *Pipeline) DisplaySize() (int, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frameW, p.frameH
}

// ForceRedetect drops every track before the next frame.
func (p *Pipeline) ForceRedetect() {
	p.redetect.Store(true)
}

func displaySize(f Frame, srcW, srcH int) (int, int) {
	if f.DisplayW > 0 && f.DisplayH > 0 {
		return f.DisplayW, f.DisplayH
	}
	rotation := ((f.Rotation % 360) + 360) % 360
	if rotation == 90 || rotation == 270 {
		return srcH, srcW
	}
	return srcW, srcH
}
