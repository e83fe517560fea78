// Package labeling attaches text and icon-role labels to tracked buttons.
package labeling

import (
	"context"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"kioskhelper/internal/models"
)

// TextResult is what an OCR engine returns for one crop. Scored is false for
// engines without a confidence signal, in which case any text is accepted.
type TextResult struct {
	Text       string
	Confidence float64
	Scored     bool
}

// TextRecognizer reads the printed label of a crop.
type TextRecognizer interface {
	Recognize(ctx context.Context, crop image.Image) (TextResult, error)
}

// RoleClassifier assigns one icon role to a crop.
type RoleClassifier interface {
	PredictRole(ctx context.Context, crop image.Image) (string, error)
}

// Warner receives non-fatal labeling failures.
type Warner interface {
	Warning(format string, v ...interface{})
}

type Options struct {
	TTL           time.Duration
	MinConfidence float64
	Workers       int
	Timeout       time.Duration // how long a pass waits for outstanding OCR
	Crop          CropOptions
}

func DefaultOptions() Options {
	return Options{
		TTL:           1500 * time.Millisecond,
		MinConfidence: 0.60,
		Workers:       4,
		Timeout:       800 * time.Millisecond,
		Crop:          DefaultCropOptions(),
	}
}

// Fusion refreshes button labels. Refresh is meant to be called from a single
// worker; OCR runs on goroutines that only touch their own arena slot.
type Fusion struct {
	ocr        TextRecognizer
	icons      RoleClassifier
	opts       Options
	warn       Warner
	now        func() time.Time
	sem        chan struct{}
	generation atomic.Uint64
}

// New builds a Fusion. icons may be nil when no classifier is configured.
func New(ocr TextRecognizer, icons RoleClassifier, opts Options, warn Warner) *Fusion {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Fusion{
		ocr:   ocr,
		icons: icons,
		opts:  opts,
		warn:  warn,
		now:   time.Now,
		sem:   make(chan struct{}, opts.Workers),
	}
}

// SetClock replaces the time source.
func (f *Fusion) SetClock(now func() time.Time) { f.now = now }

// Generation is the sequence number of the latest pass.
func (f *Fusion) Generation() uint64 { return f.generation.Load() }

// Invalidate makes every in-flight completion stale.
func (f *Fusion) Invalidate() { f.generation.Add(1) }

// NeedsRefresh reports whether b's label must be re-read at time now.
func (f *Fusion) NeedsRefresh(b models.TrackedButton, now time.Time) bool {
	return strings.TrimSpace(b.Text) == "" ||
		!b.HasLabelTimestamp() ||
		now.Sub(b.LabelUpdatedAt) > f.opts.TTL
}

// Refresh labels the buttons that need it and returns the updated slice; the
// input is not modified. Completions that arrive after the pass timed out or
// after a newer pass started are discarded.
func (f *Fusion) Refresh(ctx context.Context, frame image.Image, buttons []models.TrackedButton) []models.TrackedButton {
	out := make([]models.TrackedButton, len(buttons))
	copy(out, buttons)
	if f.ocr == nil || frame == nil || len(out) == 0 {
		return out
	}

	gen := f.generation.Add(1)
	now := f.now()
	slots := newArena(len(out))

	var wg sync.WaitGroup
	for i := range out {
		if !f.NeedsRefresh(out[i], now) {
			continue
		}
		crop := Crop(frame, out[i].RectSource, f.opts.Crop)
		hasRole := out[i].Role != ""
		id := out[i].ID

		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case f.sem <- struct{}{}:
				defer func() { <-f.sem }()
			case <-ctx.Done():
				return
			}
			if f.generation.Load() != gen {
				return
			}
			o := f.label(ctx, id, crop, hasRole)
			if f.generation.Load() != gen {
				return
			}
			slots.publish(i, o)
		}()
	}

	if !f.wait(ctx, &wg) {
		f.Invalidate()
	}

	for i := range out {
		o := slots.seal(i)
		if o == nil {
			continue
		}
		if o.text != "" {
			out[i].Text = o.text
		}
		if o.role != "" && out[i].Role == "" {
			out[i].Role = o.role
		}
		out[i].LabelUpdatedAt = now
	}
	return out
}

// wait reports whether every completion arrived in time.
func (f *Fusion) wait(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var timeout <-chan time.Time
	if f.opts.Timeout > 0 {
		timer := time.NewTimer(f.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-done:
		return true
	case <-timeout:
		f.warning("⏱️  Label pass timed out after %v, late results will be dropped", f.opts.Timeout)
		return false
	case <-ctx.Done():
		return false
	}
}

// label runs OCR and, if no usable text came back, the icon classifier.
func (f *Fusion) label(ctx context.Context, id int, crop image.Image, hasRole bool) *outcome {
	res, err := f.ocr.Recognize(ctx, crop)
	if err != nil {
		f.warning("OCR failed for button %d: %v", id, err)
	} else if text := strings.TrimSpace(res.Text); text != "" && (!res.Scored || res.Confidence >= f.opts.MinConfidence) {
		return &outcome{text: text}
	}

	o := &outcome{}
	if hasRole || f.icons == nil {
		return o
	}
	role, err := f.icons.PredictRole(ctx, crop)
	if err != nil {
		f.warning("Icon classification failed for button %d: %v", id, err)
		return o
	}
	o.role = role
	return o
}

func (f *Fusion) warning(format string, v ...interface{}) {
	if f.warn != nil {
		f.warn.Warning(format, v...)
	}
}
