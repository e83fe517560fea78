package matcher

import (
	"context"
	"strings"

	"kioskhelper/internal/models"
	"kioskhelper/internal/vision"
)

// Rule scores of the synonym strategy.
const (
	scoreExact    = 200
	scoreSynonym  = 180
	scoreHypernym = 100
	scoreHyponym  = 70

	minScore    = 50
	secondFloor = 60
	marginRatio = 1.5
	scrollKey   = "스크롤"
	scrollTag   = "scroll"
)

// SynonymStrategy ranks buttons with substring and dictionary rules combined
// by maximum.
type SynonymStrategy struct {
	dict *Dictionary
}

func NewSynonymStrategy(dict *Dictionary) *SynonymStrategy {
	return &SynonymStrategy{dict: dict}
}

func (s *SynonymStrategy) Name() string { return StrategySynonym }

// Score applies the rules to an already normalized query and label.
func (s *SynonymStrategy) Score(query, label string) float64 {
	if query == "" || label == "" {
		return 0
	}
	score := 0

	if strings.Contains(query, label) {
		score = max(score, scoreExact)
		if len(query) > len(label) {
			score = max(score, scoreHypernym)
		}
	}

	for _, syn := range s.dict.Synonyms(label) {
		if strings.Contains(query, syn) {
			score = max(score, scoreSynonym)
			break
		}
	}
	for _, word := range strings.Fields(query) {
		for _, syn := range s.dict.Synonyms(word) {
			if strings.Contains(label, syn) {
				score = max(score, scoreSynonym)
			}
		}
	}

	if strings.Contains(label, query) {
		score = max(score, scoreHyponym)
	}
	return float64(score)
}

func (s *SynonymStrategy) Match(ctx context.Context, query string, buttons []models.TrackedButton) Result {
	q := normalize(query)
	if q == "" || len(buttons) == 0 {
		return noMatch(s.Name(), nil)
	}

	var cands []Candidate
	for _, b := range buttons {
		label := normalize(b.Label())
		if label == "" {
			continue
		}
		if score := s.Score(q, label); score > 0 {
			cands = append(cands, Candidate{Button: b, Score: score})
		}
	}
	rank(cands)

	if len(cands) == 0 || cands[0].Score < minScore {
		return noMatch(s.Name(), cands)
	}
	return s.decide(cands, buttons)
}

func (s *SynonymStrategy) decide(cands []Candidate, buttons []models.TrackedButton) Result {
	top := cands[0]
	var second *Candidate
	if len(cands) > 1 {
		second = &cands[1]
	}
	res := Result{Strategy: s.Name(), Candidates: cands, Button: top.Button}

	if top.Score >= scoreSynonym && (second == nil || top.Score > second.Score*marginRatio) {
		res.Kind = SingleMatch
		return res
	}
	if top.Score > scoreHyponym {
		if scroll, ok := s.scrollButton(buttons); ok {
			res.Kind = ScrollMatch
			res.Button = scroll
			return res
		}
		if second != nil && second.Score > secondFloor {
			res.Kind = AmbiguousMatch
			res.Second = second.Button
			return res
		}
	}
	if top.Score >= minScore {
		res.Kind = SingleMatch
		return res
	}
	return noMatch(s.Name(), cands)
}

// scrollButton finds the first button that scrolls the screen, by icon role or
// by a label registered as a scroll word.
func (s *SynonymStrategy) scrollButton(buttons []models.TrackedButton) (models.TrackedButton, bool) {
	scrollWords := s.dict.Synonyms(scrollKey)
	for _, b := range buttons {
		if vision.ScrollRoles[b.Role] {
			return b, true
		}
		text := normalize(b.Text)
		if text == "" {
			continue
		}
		if s.dict.HasTag(text, scrollTag) {
			return b, true
		}
		for _, w := range scrollWords {
			if text == w {
				return b, true
			}
		}
	}
	return models.TrackedButton{}, false
}
