// Package embedding produces sentence vectors for the embedding matcher.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"kioskhelper/internal/config"
	"kioskhelper/internal/logger"
)

const (
	inputIDs      = "input_ids"
	attentionMask = "attention_mask"
	poolerOutput  = "pooler_output"
)

var errClosed = errors.New("embedder is closed")

// MiniLM embeds short texts with a BERT-style ONNX model. Inputs are cut or
// padded to a fixed length and the pooled output is L2-normalized.
type MiniLM struct {
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
	maxLen  int
	padID   int64
	mu      sync.Mutex
}

func NewMiniLM(config *config.Config, logger *logger.Logger) (*MiniLM, error) {
	for _, p := range []string{config.EmbeddingModelPath, config.EmbeddingTokenizerPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("embedding file not found: %s", p)
		}
	}

	tk, err := pretrained.FromFile(config.EmbeddingTokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	if config.OnnxRuntimeLibrary != "" {
		ort.SetSharedLibraryPath(config.OnnxRuntimeLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize onnxruntime: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(config.EmbeddingModelPath,
		[]string{inputIDs, attentionMask}, []string{poolerOutput}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding session: %w", err)
	}

	m := &MiniLM{
		tk:      tk,
		session: session,
		maxLen:  max(2, config.EmbeddingMaxTokens),
	}
	if id, ok := tk.TokenToId("[PAD]"); ok {
		m.padID = int64(id)
	}

	logger.Info("🧠 Embedding model loaded: %s (max %d tokens)", config.EmbeddingModelPath, m.maxLen)
	return m, nil
}

// Embed returns the unit-length sentence vector of text.
func (m *MiniLM) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enc, err := m.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize: %w", err)
	}
	ids, mask := fitLength(enc.Ids, m.maxLen, m.padID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, errClosed
	}

	shape := ort.NewShape(1, int64(len(ids)))
	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer idsTensor.Destroy()
	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("failed to create mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{idsTensor, maskTensor}, outputs); err != nil {
		return nil, fmt.Errorf("embedding inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	pooled, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected %s type %T", poolerOutput, outputs[0])
	}
	return l2Normalize(pooled.GetData()), nil
}

// fitLength truncates ids to n, keeping the final [SEP], and pads the rest.
func fitLength(ids []int, n int, pad int64) ([]int64, []int64) {
	outIDs := make([]int64, n)
	mask := make([]int64, n)

	if len(ids) > n {
		last := ids[len(ids)-1]
		ids = append(append([]int(nil), ids[:n-1]...), last)
	}
	for i := 0; i < n; i++ {
		if i < len(ids) {
			outIDs[i] = int64(ids[i])
			mask[i] = 1
		} else {
			outIDs[i] = pad
		}
	}
	return outIDs, mask
}

func l2Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := float32(math.Sqrt(sum))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

func (m *MiniLM) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}
