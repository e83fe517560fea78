// Package matcher decides which on-screen button a spoken query refers to.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"kioskhelper/internal/models"
)

var ErrUnknownStrategy = errors.New("unknown match strategy")

const (
	StrategySynonym   = "synonym"
	StrategyLexical   = "lexical"
	StrategyEmbedding = "embedding"
)

type Kind int

const (
	NoMatch Kind = iota
	SingleMatch
	AmbiguousMatch
	ScrollMatch
)

func (k Kind) String() string {
	switch k {
	case SingleMatch:
		return "single"
	case AmbiguousMatch:
		return "ambiguous"
	case ScrollMatch:
		return "scroll"
	default:
		return "none"
	}
}

// Candidate is one scored button. Score scales differ per strategy.
type Candidate struct {
	Button models.TrackedButton `json:"button"`
	Score  float64              `json:"score"`
}

// Result is a match decision. Button is the single match, the scroll target or
// the first of two ambiguous buttons; Second is only set for AmbiguousMatch.
type Result struct {
	Kind       Kind
	Strategy   string
	Button     models.TrackedButton
	Second     models.TrackedButton
	Candidates []Candidate
}

func (r Result) Ambiguous() bool { return r.Kind == AmbiguousMatch }

// Top returns the best two scores. With fewer than two candidates the missing
// score repeats the first one.
func (r Result) Top() (float64, float64) {
	switch len(r.Candidates) {
	case 0:
		return 0, 0
	case 1:
		return r.Candidates[0].Score, r.Candidates[0].Score
	default:
		return r.Candidates[0].Score, r.Candidates[1].Score
	}
}

// HighlightIDs lists the buttons the caller should highlight.
func (r Result) HighlightIDs() []int {
	switch r.Kind {
	case SingleMatch, ScrollMatch:
		return []int{r.Button.ID}
	case AmbiguousMatch:
		return []int{r.Button.ID, r.Second.ID}
	default:
		return nil
	}
}

// Strategy scores a query against the current buttons. Implementations never
// fail; problems degrade to NoMatch.
type Strategy interface {
	Name() string
	Match(ctx context.Context, query string, buttons []models.TrackedButton) Result
}

// New builds the named strategy. embedder is only used by the embedding
// strategy and may be nil otherwise.
func New(name string, dict *Dictionary, embedder Embedder, threshold float64) (Strategy, error) {
	switch name {
	case StrategySynonym, "":
		return NewSynonymStrategy(dict), nil
	case StrategyLexical:
		return NewLexicalStrategy(dict), nil
	case StrategyEmbedding:
		if embedder == nil {
			return nil, fmt.Errorf("embedding strategy needs an embedder")
		}
		return NewEmbeddingStrategy(embedder, threshold, NewLexicalStrategy(dict)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// rank sorts by score, highest first. Equal scores keep their input order.
func rank(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool { return c[i].Score > c[j].Score })
}

func noMatch(strategy string, c []Candidate) Result {
	return Result{Kind: NoMatch, Strategy: strategy, Candidates: c}
}
