package ai

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"kioskhelper/internal/config"
	"kioskhelper/internal/logger"
	"kioskhelper/internal/models"
	"kioskhelper/internal/vision"
)

var ErrNetNotLoaded = errors.New("network not loaded")

// DetectorService runs the button detector on camera frames.
type DetectorService struct {
	net       gocv.Net
	inputSize int
	post      vision.Postprocessor
	layout    vision.Layout
	logger    *logger.Logger
	mu        sync.Mutex // gocv.Net nie jest bezpieczny dla wielu wątków
}

// NewDetectorService loads the detector model and checks its output shape with
// one forward pass on a blank input.
func NewDetectorService(config *config.Config, logger *logger.Logger) (*DetectorService, error) {
	net, err := loadNet(config.DetectorModelPath)
	if err != nil {
		return nil, err
	}

	service := &DetectorService{
		net:       net,
		inputSize: config.DetectorInputSize,
		post:      postprocessorFromConfig(config),
		logger:    logger,
	}

	shape, err := service.outputShape()
	if err != nil {
		net.Close()
		return nil, err
	}
	layout, err := vision.ValidateShape(shape)
	if err != nil {
		net.Close()
		return nil, fmt.Errorf("detector %s: %w", config.DetectorModelPath, err)
	}
	service.layout = layout

	logger.Info("🔍 Detector loaded: %s, output %v (%d channels, %d candidates)",
		config.DetectorModelPath, shape, layout.Channels, layout.Candidates)
	return service, nil
}

func loadNet(modelPath string) (gocv.Net, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return gocv.Net{}, fmt.Errorf("model file not found: %s", modelPath)
	}

	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return gocv.Net{}, fmt.Errorf("failed to load network from %s", modelPath)
	}
	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return gocv.Net{}, fmt.Errorf("failed to set preferable backend or target")
	}
	return net, nil
}

func postprocessorFromConfig(config *config.Config) vision.Postprocessor {
	params := vision.FilterParams{
		ScoreThreshold: config.FilterScoreThreshold,
		MinRelArea:     config.FilterMinRelArea,
		MaxRelArea:     config.FilterMaxRelArea,
		MinAspect:      config.FilterMinAspect,
		MaxAspect:      config.FilterMaxAspect,
		BorderPx:       float64(config.FilterBorderPx),
		NMSIoU:         config.FilterNMSIoU,
		KeepTopK:       config.FilterKeepTopK,
	}
	if len(config.FilterAllowClasses) > 0 {
		params.AllowClasses = make(map[int]bool, len(config.FilterAllowClasses))
		for _, c := range config.FilterAllowClasses {
			params.AllowClasses[c] = true
		}
	}

	return vision.Postprocessor{
		Decoder:  vision.Decoder{InputSize: config.DetectorInputSize, ConfThreshold: config.DetectorConfThreshold},
		Filter:   vision.Filter{Params: params},
		MinBoxPx: config.MinBoxPx,
	}
}

func (s *DetectorService) outputShape() ([]int, error) {
	blank := gocv.NewMatWithSize(s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	defer blank.Close()

	out, err := s.forward(blank)
	if err != nil {
		return nil, err
	}
	return out.Shape, nil
}

// Detect returns filtered button detections in source pixels of img.
func (s *DetectorService) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	boxed, lb, err := letterbox(mat, s.inputSize)
	if err != nil {
		return nil, err
	}
	defer boxed.Close()

	tensor, err := s.forward(boxed)
	if err != nil {
		return nil, err
	}
	return s.post.Process(tensor, lb, mat.Cols(), mat.Rows())
}

// forward runs the net on an already letterboxed BGR image.
func (s *DetectorService) forward(boxed gocv.Mat) (vision.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.net.Empty() {
		return vision.Tensor{}, ErrNetNotLoaded
	}

	blob := gocv.BlobFromImage(boxed, 1.0/255.0, image.Pt(s.inputSize, s.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	if err := s.net.SetInput(blob, ""); err != nil {
		return vision.Tensor{}, fmt.Errorf("failed to set network input: %w", err)
	}
	output := s.net.Forward("")
	defer output.Close()

	return tensorFromMat(output)
}

func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.net.Close()
}
