package app

import (
	"errors"
	"fmt"

	"kioskhelper/internal/config"
	"kioskhelper/internal/labeling"
	"kioskhelper/internal/logger"
	"kioskhelper/internal/matcher"
	"kioskhelper/internal/pipeline"
	"kioskhelper/internal/services/ai"
	"kioskhelper/internal/services/embedding"
	"kioskhelper/internal/services/ocr"
	"kioskhelper/internal/tracker"
)

// Perception is the model-backed part of the service: detector, labelers,
// pipeline and matcher. The server and the replay tool share it.
type Perception struct {
	Pipeline *pipeline.Pipeline
	Strategy matcher.Strategy

	detector   *ai.DetectorService
	classifier *ai.IconClassifier
	ocr        *ocr.Engine
	embedder   *embedding.MiniLM
}

// NewPerception loads every model. The detector and OCR are required; a
// missing icon classifier disables role fallback and a failing embedding
// model falls back to the lexical strategy.
func NewPerception(cfg *config.Config, logger *logger.Logger) (*Perception, error) {
	p := &Perception{}

	detector, err := ai.NewDetectorService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load detector: %w", err)
	}
	p.detector = detector

	engine, err := ocr.NewEngine(cfg, logger)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to start OCR: %w", err)
	}
	p.ocr = engine

	var icons labeling.RoleClassifier
	if classifier, err := ai.NewIconClassifier(cfg, logger); err != nil {
		logger.Warning("⚠️  Icon classifier disabled: %v", err)
	} else {
		p.classifier = classifier
		icons = classifier
	}

	fusion := labeling.New(engine, icons, labeling.Options{
		TTL:           cfg.LabelTTL,
		MinConfidence: cfg.OCRMinConfidence,
		Workers:       cfg.OCRWorkers,
		Timeout:       cfg.OCRTimeout,
		Crop:          labeling.DefaultCropOptions(),
	}, logger)

	p.Pipeline = pipeline.New(detector, tracker.New(cfg.TrackIoUThreshold, cfg.TrackMaxAge), fusion, cfg.DetectInterval, logger)

	strategy, err := p.newStrategy(cfg, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Strategy = strategy
	return p, nil
}

func (p *Perception) newStrategy(cfg *config.Config, logger *logger.Logger) (matcher.Strategy, error) {
	dict := matcher.BuiltinDictionary()
	fileDict, err := matcher.LoadDictionary(cfg.SynonymsPath)
	if err != nil {
		logger.Warning("⚠️  Synonym dictionary not loaded, using built-in roles only: %v", err)
	}
	for _, key := range fileDict.Skipped() {
		logger.Warning("Skipped malformed synonym entry %q", key)
	}
	dict = dict.Merge(fileDict)
	logger.Info("📖 Synonym dictionary: %d entries", dict.Len())

	name := cfg.MatchStrategy
	var embedder matcher.Embedder
	if name == config.StrategyEmbedding {
		m, err := embedding.NewMiniLM(cfg, logger)
		if err != nil {
			logger.Warning("⚠️  Embedding model unavailable, using %s matching: %v", config.StrategyLexical, err)
			name = config.StrategyLexical
		} else {
			p.embedder = m
			embedder = m
		}
	}

	strategy, err := matcher.New(name, dict, embedder, cfg.EmbeddingThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to build matcher: %w", err)
	}
	return strategy, nil
}

// Close releases the models.
func (p *Perception) Close() error {
	var errs []error
	if p.embedder != nil {
		errs = append(errs, p.embedder.Close())
	}
	if p.classifier != nil {
		errs = append(errs, p.classifier.Close())
	}
	if p.ocr != nil {
		errs = append(errs, p.ocr.Close())
	}
	if p.detector != nil {
		errs = append(errs, p.detector.Close())
	}
	return errors.Join(errs...)
}
