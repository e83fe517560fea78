package matcher

import (
	"context"
	"strings"

	"kioskhelper/internal/models"
)

const (
	jaccardWeight  = 0.7
	containsWeight = 0.3

	confidentScore = 0.60
	confidentGap   = 0.08
)

// LexicalStrategy ranks buttons by token overlap between the query and a
// document built from the button's label, role and role synonyms.
type LexicalStrategy struct {
	dict *Dictionary
}

func NewLexicalStrategy(dict *Dictionary) *LexicalStrategy {
	return &LexicalStrategy{dict: dict}
}

func (s *LexicalStrategy) Name() string { return StrategyLexical }

func (s *LexicalStrategy) document(b models.TrackedButton) string {
	parts := []string{b.Text, b.Role}
	if b.Role != "" {
		parts = append(parts, s.dict.Synonyms(b.Role)...)
	}
	return normalize(strings.Join(parts, " "))
}

// Score is 0.7 Jaccard(tokens) plus 0.3 when the document contains the query.
func (s *LexicalStrategy) Score(query, doc string) float64 {
	qt, dt := tokenize(query), tokenize(doc)
	if len(qt) == 0 || len(dt) == 0 {
		return 0
	}

	set := make(map[string]uint8, len(qt)+len(dt))
	for _, t := range qt {
		set[t] |= 1
	}
	for _, t := range dt {
		set[t] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	score := jaccardWeight * float64(inter) / float64(len(set))
	if strings.Contains(doc, query) {
		score += containsWeight
	}
	return min(max(score, 0), 1)
}

func (s *LexicalStrategy) Match(ctx context.Context, query string, buttons []models.TrackedButton) Result {
	q := normalize(query)
	if q == "" || len(buttons) == 0 {
		return noMatch(s.Name(), nil)
	}

	cands := make([]Candidate, 0, len(buttons))
	for _, b := range buttons {
		cands = append(cands, Candidate{Button: b, Score: s.Score(q, s.document(b))})
	}
	rank(cands)

	t1, t2 := cands[0], cands[0]
	if len(cands) > 1 {
		t2 = cands[1]
	}
	if t1.Score <= 0 {
		return noMatch(s.Name(), cands)
	}

	res := Result{Kind: SingleMatch, Strategy: s.Name(), Button: t1.Button, Candidates: cands}
	if len(cands) == 1 {
		// Jedyny przycisk nie ma z kim konkurować; liczy się tylko próg.
		if t1.Score < confidentScore {
			return noMatch(s.Name(), cands)
		}
		return res
	}
	if !(t1.Score >= confidentScore && t1.Score-t2.Score >= confidentGap) {
		res.Kind = AmbiguousMatch
		res.Second = t2.Button
	}
	return res
}
