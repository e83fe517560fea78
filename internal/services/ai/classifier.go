package ai

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"

	"kioskhelper/internal/config"
	"kioskhelper/internal/logger"
	"kioskhelper/internal/vision"
)

// IconClassifier assigns one of vision.IconRoles to a button crop.
type IconClassifier struct {
	net       gocv.Net
	inputSize int
	roles     []string
	mu        sync.Mutex
}

// NewIconClassifier loads the classifier and checks that it scores exactly
// one value per icon role.
func NewIconClassifier(config *config.Config, logger *logger.Logger) (*IconClassifier, error) {
	net, err := loadNet(config.ClassifierModelPath)
	if err != nil {
		return nil, err
	}

	c := &IconClassifier{
		net:       net,
		inputSize: config.ClassifierInputSize,
		roles:     vision.IconRoles,
	}

	blank := gocv.NewMatWithSize(c.inputSize, c.inputSize, gocv.MatTypeCV8UC3)
	defer blank.Close()
	scores, err := c.scores(blank)
	if err != nil {
		net.Close()
		return nil, err
	}
	if len(scores) != len(c.roles) {
		net.Close()
		return nil, fmt.Errorf("classifier %s: expected %d scores, got %d", config.ClassifierModelPath, len(c.roles), len(scores))
	}

	logger.Info("🏷️  Icon classifier loaded: %s (%d roles)", config.ClassifierModelPath, len(c.roles))
	return c, nil
}

// PredictRole returns the highest scoring role for the crop.
func (c *IconClassifier) PredictRole(ctx context.Context, crop image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	mat, err := gocv.ImageToMatRGB(crop)
	if err != nil {
		return "", fmt.Errorf("failed to convert crop: %w", err)
	}
	defer mat.Close()

	boxed, _, err := letterbox(mat, c.inputSize)
	if err != nil {
		return "", err
	}
	defer boxed.Close()

	scores, err := c.scores(boxed)
	if err != nil {
		return "", err
	}
	if len(scores) != len(c.roles) {
		return "", fmt.Errorf("expected %d scores, got %d", len(c.roles), len(scores))
	}
	return c.roles[floats.MaxIdx(scores)], nil
}

func (c *IconClassifier) scores(boxed gocv.Mat) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.net.Empty() {
		return nil, ErrNetNotLoaded
	}

	blob := gocv.BlobFromImage(boxed, 1.0/127.5, image.Pt(c.inputSize, c.inputSize), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	if err := c.net.SetInput(blob, ""); err != nil {
		return nil, fmt.Errorf("failed to set network input: %w", err)
	}
	output := c.net.Forward("")
	defer output.Close()

	t, err := tensorFromMat(output)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, len(t.Data))
	for i, v := range t.Data {
		scores[i] = float64(v)
	}
	return scores, nil
}

func (c *IconClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}
