package matcher

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/floats"

	"kioskhelper/internal/models"
)

const (
	DefaultEmbeddingThreshold = 0.8

	embeddingGap  = 0.05
	maxCachedVecs = 512
)

// Embedder turns text into a sentence vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingStrategy ranks buttons by cosine similarity between the query and
// label embeddings. Any embedding error hands the query to the fallback.
type EmbeddingStrategy struct {
	embedder  Embedder
	threshold float64
	fallback  Strategy

	mu    sync.Mutex
	cache map[string][]float64
}

func NewEmbeddingStrategy(embedder Embedder, threshold float64, fallback Strategy) *EmbeddingStrategy {
	if threshold <= 0 {
		threshold = DefaultEmbeddingThreshold
	}
	return &EmbeddingStrategy{
		embedder:  embedder,
		threshold: threshold,
		fallback:  fallback,
		cache:     make(map[string][]float64),
	}
}

func (s *EmbeddingStrategy) Name() string { return StrategyEmbedding }

func (s *EmbeddingStrategy) Match(ctx context.Context, query string, buttons []models.TrackedButton) Result {
	q := normalize(query)
	if q == "" || len(buttons) == 0 {
		return noMatch(s.Name(), nil)
	}

	qv, err := s.vector(ctx, q, false)
	if err != nil {
		return s.fallbackMatch(ctx, query, buttons)
	}

	var cands []Candidate
	for _, b := range buttons {
		label := normalize(b.Label())
		if label == "" {
			continue
		}
		lv, err := s.vector(ctx, label, true)
		if err != nil {
			return s.fallbackMatch(ctx, query, buttons)
		}
		if sim := Cosine(qv, lv); sim >= s.threshold {
			cands = append(cands, Candidate{Button: b, Score: sim})
		}
	}
	rank(cands)

	switch {
	case len(cands) == 0:
		return noMatch(s.Name(), nil)
	case len(cands) == 1 || cands[0].Score-cands[1].Score >= embeddingGap:
		return Result{Kind: SingleMatch, Strategy: s.Name(), Button: cands[0].Button, Candidates: cands}
	default:
		return Result{Kind: AmbiguousMatch, Strategy: s.Name(), Button: cands[0].Button, Second: cands[1].Button, Candidates: cands}
	}
}

func (s *EmbeddingStrategy) fallbackMatch(ctx context.Context, query string, buttons []models.TrackedButton) Result {
	if s.fallback == nil {
		return noMatch(s.Name(), nil)
	}
	return s.fallback.Match(ctx, query, buttons)
}

// vector embeds text. Label vectors are cached.
func (s *EmbeddingStrategy) vector(ctx context.Context, text string, cache bool) ([]float64, error) {
	if cache {
		s.mu.Lock()
		v, ok := s.cache[text]
		s.mu.Unlock()
		if ok {
			return v, nil
		}
	}

	raw, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	v := make([]float64, len(raw))
	for i, x := range raw {
		v[i] = float64(x)
	}

	if cache {
		s.mu.Lock()
		if len(s.cache) >= maxCachedVecs {
			s.cache = make(map[string][]float64)
		}
		s.cache[text] = v
		s.mu.Unlock()
	}
	return v, nil
}

// Cosine returns the cosine similarity of a and b, or 0 for mismatched or
// zero vectors.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
