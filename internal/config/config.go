package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Matcher strategy names accepted by MATCH_STRATEGY.
const (
	StrategySynonym   = "synonym"
	StrategyLexical   = "lexical"
	StrategyEmbedding = "embedding"
)

type Config struct {
	Port          int
	CameraUDPPort int // 0 wyłącza odbiór klatek po UDP
	Password      string
	LogDirectory  string
	DBPath        string

	DetectorModelPath     string
	DetectorInputSize     int
	DetectorConfThreshold float64

	FilterScoreThreshold float64
	FilterMinRelArea     float64
	FilterMaxRelArea     float64
	FilterMinAspect      float64
	FilterMaxAspect      float64
	FilterBorderPx       int
	FilterNMSIoU         float64
	FilterKeepTopK       int
	FilterAllowClasses   []int
	MinBoxPx             float64

	TrackIoUThreshold float64
	TrackMaxAge       int
	DetectInterval    int // Detekcja co N-tą klatkę, pozostałe klatki używają predict()

	LabelTTL         time.Duration
	OCRMinConfidence float64
	OCRLanguages     []string
	OCRWorkers       int
	OCRTimeout       time.Duration

	ClassifierModelPath string
	ClassifierInputSize int

	MatchStrategy          string
	SynonymsPath           string
	EmbeddingModelPath     string
	EmbeddingTokenizerPath string
	OnnxRuntimeLibrary     string
	EmbeddingThreshold     float64
	EmbeddingMaxTokens     int

	DecisionBufferLimit   int
	DecisionFlushInterval time.Duration

	StreamAnnotated bool
}

// Load reads the optional .env file and then the process environment.
func Load() *Config {
	// Brak pliku .env nie jest błędem
	_ = godotenv.Load()

	return &Config{
		Port:          getEnvAsInt("PORT", 8080),
		CameraUDPPort: getEnvAsInt("CAMERA_UDP_PORT", 0),
		Password:      getEnv("PASSWORD", "kiosk"),
		LogDirectory:  getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DBPath:        getEnv("DB_PATH", filepath.Join(".", "data", "decisions.db")),

		DetectorModelPath:     getEnv("DETECTOR_MODEL_PATH", filepath.Join(".", "models", "buttons_yolov8n.onnx")),
		DetectorInputSize:     getEnvAsInt("DETECTOR_INPUT_SIZE", 640),
		DetectorConfThreshold: getEnvAsFloat("DETECTOR_CONF_THRESHOLD", 0.25),

		FilterScoreThreshold: getEnvAsFloat("FILTER_SCORE_THRESHOLD", 0.40),
		FilterMinRelArea:     getEnvAsFloat("FILTER_MIN_REL_AREA", 0.0012),
		FilterMaxRelArea:     getEnvAsFloat("FILTER_MAX_REL_AREA", 0.60),
		FilterMinAspect:      getEnvAsFloat("FILTER_MIN_ASPECT", 0.4),
		FilterMaxAspect:      getEnvAsFloat("FILTER_MAX_ASPECT", 2.5),
		FilterBorderPx:       getEnvAsInt("FILTER_BORDER_PX", 8),
		FilterNMSIoU:         getEnvAsFloat("FILTER_NMS_IOU", 0.50),
		FilterKeepTopK:       getEnvAsInt("FILTER_KEEP_TOP_K", 30),
		FilterAllowClasses:   getEnvAsIntList("FILTER_ALLOW_CLASSES"),
		MinBoxPx:             getEnvAsFloat("MIN_BOX_PX", 28),

		TrackIoUThreshold: getEnvAsFloat("TRACK_IOU_THRESHOLD", 0.3),
		TrackMaxAge:       getEnvAsInt("TRACK_MAX_AGE", 30),
		DetectInterval:    getEnvAsInt("DETECT_INTERVAL", 3),

		LabelTTL:         getEnvAsDuration("LABEL_TTL", 1500*time.Millisecond),
		OCRMinConfidence: getEnvAsFloat("OCR_MIN_CONFIDENCE", 0.60),
		OCRLanguages:     getEnvAsList("OCR_LANGUAGES", []string{"kor", "eng"}),
		OCRWorkers:       getEnvAsInt("OCR_WORKERS", 4),
		OCRTimeout:       getEnvAsDuration("OCR_TIMEOUT", 800*time.Millisecond),

		ClassifierModelPath: getEnv("CLASSIFIER_MODEL_PATH", filepath.Join(".", "models", "icon_roles.onnx")),
		ClassifierInputSize: getEnvAsInt("CLASSIFIER_INPUT_SIZE", 224),

		MatchStrategy:          strings.ToLower(getEnv("MATCH_STRATEGY", StrategySynonym)),
		SynonymsPath:           getEnv("SYNONYMS_PATH", filepath.Join(".", "configs", "kiosk_synonyms.json")),
		EmbeddingModelPath:     getEnv("EMBEDDING_MODEL_PATH", filepath.Join(".", "models", "minilm.onnx")),
		EmbeddingTokenizerPath: getEnv("EMBEDDING_TOKENIZER_PATH", filepath.Join(".", "models", "tokenizer.json")),
		OnnxRuntimeLibrary:     getEnv("ONNXRUNTIME_LIB", ""),
		EmbeddingThreshold:     getEnvAsFloat("EMBEDDING_THRESHOLD", 0.8),
		EmbeddingMaxTokens:     getEnvAsInt("EMBEDDING_MAX_TOKENS", 16),

		DecisionBufferLimit:   getEnvAsInt("DECISION_BUFFER_LIMIT", 64),
		DecisionFlushInterval: getEnvAsDuration("DECISION_FLUSH_INTERVAL", 10*time.Second),

		StreamAnnotated: getEnvAsBool("STREAM_ANNOTATED", false),
	}
}

// Validate reports the first setting that would make the pipeline misbehave.
func (c *Config) Validate() error {
	switch c.MatchStrategy {
	case StrategySynonym, StrategyLexical, StrategyEmbedding:
	default:
		return fmt.Errorf("unknown MATCH_STRATEGY %q", c.MatchStrategy)
	}
	if c.CameraUDPPort < 0 || c.CameraUDPPort > 65535 {
		return fmt.Errorf("CAMERA_UDP_PORT must be within [0,65535], got %d", c.CameraUDPPort)
	}
	if c.DetectorInputSize <= 0 {
		return fmt.Errorf("DETECTOR_INPUT_SIZE must be positive, got %d", c.DetectorInputSize)
	}
	if c.ClassifierInputSize <= 0 {
		return fmt.Errorf("CLASSIFIER_INPUT_SIZE must be positive, got %d", c.ClassifierInputSize)
	}
	if c.DetectInterval <= 0 {
		return fmt.Errorf("DETECT_INTERVAL must be positive, got %d", c.DetectInterval)
	}
	if c.TrackMaxAge <= 0 {
		return fmt.Errorf("TRACK_MAX_AGE must be positive, got %d", c.TrackMaxAge)
	}
	if c.DecisionBufferLimit <= 0 {
		return fmt.Errorf("DECISION_BUFFER_LIMIT must be positive, got %d", c.DecisionBufferLimit)
	}
	if c.DecisionFlushInterval <= 0 {
		return fmt.Errorf("DECISION_FLUSH_INTERVAL must be positive, got %v", c.DecisionFlushInterval)
	}
	if c.OCRWorkers <= 0 {
		return fmt.Errorf("OCR_WORKERS must be positive, got %d", c.OCRWorkers)
	}
	if c.FilterKeepTopK <= 0 {
		return fmt.Errorf("FILTER_KEEP_TOP_K must be positive, got %d", c.FilterKeepTopK)
	}
	if c.FilterMinAspect > c.FilterMaxAspect {
		return fmt.Errorf("FILTER_MIN_ASPECT %.2f exceeds FILTER_MAX_ASPECT %.2f", c.FilterMinAspect, c.FilterMaxAspect)
	}
	if c.FilterMinRelArea > c.FilterMaxRelArea {
		return fmt.Errorf("FILTER_MIN_REL_AREA %.4f exceeds FILTER_MAX_REL_AREA %.4f", c.FilterMinRelArea, c.FilterMaxRelArea)
	}
	for name, v := range map[string]float64{
		"DETECTOR_CONF_THRESHOLD": c.DetectorConfThreshold,
		"FILTER_SCORE_THRESHOLD":  c.FilterScoreThreshold,
		"FILTER_NMS_IOU":          c.FilterNMSIoU,
		"TRACK_IOU_THRESHOLD":     c.TrackIoUThreshold,
		"OCR_MIN_CONFIDENCE":      c.OCRMinConfidence,
		"EMBEDDING_THRESHOLD":     c.EmbeddingThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1], got %.3f", name, v)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("750ms") or a bare number of milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsIntList(key string) []int {
	var out []int
	for _, part := range getEnvAsList(key, nil) {
		if n, err := strconv.Atoi(part); err == nil {
			out = append(out, n)
		}
	}
	return out
}
