// Package ocr reads button labels with Tesseract.
package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	"kioskhelper/internal/config"
	"kioskhelper/internal/labeling"
	"kioskhelper/internal/logger"
)

// Engine is a pool of Tesseract clients; a client serves one crop at a time.
type Engine struct {
	clients chan *gosseract.Client
	all     []*gosseract.Client
}

func NewEngine(config *config.Config, logger *logger.Logger) (*Engine, error) {
	workers := max(1, config.OCRWorkers)
	e := &Engine{clients: make(chan *gosseract.Client, workers)}

	for i := 0; i < workers; i++ {
		client := gosseract.NewClient()
		if err := client.SetLanguage(config.OCRLanguages...); err != nil {
			client.Close()
			e.Close()
			return nil, fmt.Errorf("failed to set OCR language: %w", err)
		}
		// Przycisk to zwykle jedna linia tekstu
		if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
			client.Close()
			e.Close()
			return nil, fmt.Errorf("failed to set PSM: %w", err)
		}
		e.all = append(e.all, client)
		e.clients <- client
	}

	logger.Info("🔤 OCR ready: %d client(s), languages %v", workers, config.OCRLanguages)
	return e, nil
}

// Recognize reads the text of a crop. Confidence is the mean word confidence
// scaled to [0,1].
func (e *Engine) Recognize(ctx context.Context, crop image.Image) (labeling.TextResult, error) {
	var client *gosseract.Client
	select {
	case client = <-e.clients:
	case <-ctx.Done():
		return labeling.TextResult{}, ctx.Err()
	}
	defer func() { e.clients <- client }()

	png, err := encodeGray(crop)
	if err != nil {
		return labeling.TextResult{}, err
	}
	if err := client.SetImageFromBytes(png); err != nil {
		return labeling.TextResult{}, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return labeling.TextResult{}, fmt.Errorf("OCR failed: %w", err)
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return labeling.TextResult{Scored: true}, nil
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		// Brak pewności: tekst przyjmujemy bez oceny
		return labeling.TextResult{Text: text}, nil
	}
	return labeling.TextResult{Text: text, Confidence: meanConfidence(boxes), Scored: true}, nil
}

func meanConfidence(boxes []gosseract.BoundingBox) float64 {
	if len(boxes) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range boxes {
		sum += b.Confidence
	}
	return min(max(sum/float64(len(boxes))/100, 0), 1)
}

func encodeGray(crop image.Image) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(crop)
	if err != nil {
		return nil, fmt.Errorf("failed to convert crop: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray); err != nil {
		return nil, fmt.Errorf("failed to convert image to grayscale: %w", err)
	}

	buf, err := gocv.IMEncode(gocv.PNGFileExt, gray)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases every client. It must not race with Recognize.
func (e *Engine) Close() error {
	var first error
	for _, c := range e.all {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	e.all = nil
	return first
}
