package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"kioskhelper/internal/matcher"
	"kioskhelper/internal/models"
)

const DefaultLanguage = "ko-KR"

// Prompts shown and spoken to the user.
const (
	TipIdle             = "키오스크 화면을 비춰주세요."
	TipListening        = "듣고 있어요..."
	TipRecognizing      = "버튼을 인식 중이에요..."
	TipCancelled        = "분석을 취소했어요. 다시 시작하려면 버튼 탭하세요."
	TipHighlightOff     = "하이라이트를 취소했어요. 감지는 계속돼요."
	highlightingSuffix  = "버튼을 강조하고 있어요"
	fallbackButtonLabel = "해당 버튼"
)

type EventKind string

const (
	EventReady      EventKind = "ready"
	EventBegin      EventKind = "begin"
	EventRms        EventKind = "rms"
	EventEnd        EventKind = "end"
	EventError      EventKind = "error"
	EventPartial    EventKind = "partial"
	EventFinal      EventKind = "final"
	EventTTSStarted EventKind = "tts_started"
	EventTTSDone    EventKind = "tts_done"
)

// Event is one notification from the device's recognizer or synthesizer.
type Event struct {
	Kind    EventKind `json:"kind"`
	Text    string    `json:"text,omitempty"`
	Rms     float64   `json:"rms,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Highlighter shows the highlighted buttons. It must not call back into the
// Session.
type Highlighter interface {
	Highlight(sessionID string, ids []int, label string)
}

// DecisionFunc receives every finished utterance and its decision.
type DecisionFunc func(sessionID, query string, res matcher.Result)

type Warner interface {
	Warning(format string, v ...interface{})
}

// State is a snapshot of the session as the device UI shows it.
type State struct {
	ID               string `json:"id"`
	Listening        bool   `json:"listening"`
	Speaking         bool   `json:"speaking"`
	Tip              string `json:"tip"`
	PartialText      string `json:"partial_text"`
	FinalText        string `json:"final_text"`
	Error            string `json:"error,omitempty"`
	HighlightEnabled bool   `json:"highlight_enabled"`
	HighlightedIDs   []int  `json:"highlighted_ids"`
	HighlightLabel   string `json:"highlight_label,omitempty"`
}

// Session is safe for concurrent use; calls are serialized.
type Session struct {
	id         string
	voice      *Coordinator
	strategy   matcher.Strategy
	hl         Highlighter
	onDecision DecisionFunc
	warn       Warner

	// updates holds the newest button set not yet applied; see Offer.
	updates chan []models.TrackedButton

	mu          sync.Mutex
	lang        string
	state       State
	buttons     []models.TrackedButton
	lastPartial string
}

func NewSession(voice *Coordinator, strategy matcher.Strategy, hl Highlighter, onDecision DecisionFunc, warn Warner) *Session {
	id := uuid.NewString()
	return &Session{
		id:         id,
		voice:      voice,
		strategy:   strategy,
		hl:         hl,
		onDecision: onDecision,
		warn:       warn,
		updates:    make(chan []models.TrackedButton, 1),
		lang:       DefaultLanguage,
		state: State{
			ID:               id,
			Tip:              TipIdle,
			HighlightEnabled: true,
		},
	}
}

func (s *Session) ID() string { return s.id }

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.HighlightedIDs = append([]int(nil), s.state.HighlightedIDs...)
	st.Speaking = s.voice.Speaking()
	return st
}

// Toggle starts listening when idle and stops it otherwise.
func (s *Session) Toggle(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Listening {
		return s.stopLocked()
	}
	return s.startLocked(s.lang)
}

// Start begins a new utterance in lang; an empty lang keeps the previous one.
func (s *Session) Start(ctx context.Context, lang string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lang == "" {
		lang = s.lang
	}
	return s.startLocked(lang)
}

func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

// Cancel stops capture and speech and clears text and highlights.
func (s *Session) Cancel(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.voice.CancelListening(); err != nil {
		s.warning("Failed to cancel listening: %v", err)
	}
	if err := s.voice.StopSpeaking(); err != nil {
		s.warning("Failed to stop speaking: %v", err)
	}
	s.lastPartial = ""
	s.state.Listening = false
	s.state.PartialText = ""
	s.state.FinalText = ""
	s.state.Error = ""
	s.state.Tip = TipCancelled
	s.setHighlightLocked(nil, "")
}

// CancelHighlight turns highlighting off; detection and listening continue.
func (s *Session) CancelHighlight(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.HighlightEnabled = false
	s.state.Tip = TipHighlightOff
	s.setHighlightLocked(nil, "")
	if err := s.voice.StopSpeaking(); err != nil {
		s.warning("Failed to stop speaking: %v", err)
	}
}

// ResumeHighlight turns highlighting back on and re-matches the current text.
func (s *Session) ResumeHighlight(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.HighlightEnabled = true
	if q := s.currentQueryLocked(); q != "" {
		s.highlightLocked(ctx, q)
	}
}

// Offer queues a new button set for Run without waiting for the session lock,
// which may be held across device writes. Only the newest set is kept.
// Offer expects a single caller at a time.
func (s *Session) Offer(buttons []models.TrackedButton) {
	for {
		select {
		case s.updates <- buttons:
			return
		default:
		}
		// Starszy zestaw nie został jeszcze odebrany; wyrzuć go.
		select {
		case <-s.updates:
		default:
		}
	}
}

// Run applies offered button sets until ctx is done.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case buttons := <-s.updates:
			s.SetButtons(ctx, buttons)
		}
	}
}

// SetButtons installs a new button set and re-matches the current text
// while highlighting is on.
func (s *Session) SetButtons(ctx context.Context, buttons []models.TrackedButton) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buttons = buttons
	if !s.state.HighlightEnabled {
		return
	}
	if q := s.currentQueryLocked(); q != "" {
		s.highlightLocked(ctx, q)
	}
}

// Handle applies one device event.
func (s *Session) Handle(ctx context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case EventReady:
		s.state.Error = ""
	case EventPartial:
		if strings.TrimSpace(ev.Text) == "" {
			return
		}
		s.lastPartial = ev.Text
		s.state.PartialText = ev.Text
		s.state.Error = ""
		if s.state.HighlightEnabled {
			s.highlightLocked(ctx, ev.Text)
		}
	case EventFinal:
		s.finishLocked(ctx, ev.Text)
	case EventError:
		s.state.Error = ev.Message
		s.finishLocked(ctx, "")
	case EventEnd:
		s.finishLocked(ctx, "")
	case EventTTSStarted:
		s.voice.SpeechStarted()
	case EventTTSDone:
		s.voice.SpeechDone()
	case EventBegin, EventRms:
	default:
		s.warning("Unknown speech event %q in session %s", ev.Kind, s.id)
	}
}

func (s *Session) startLocked(lang string) error {
	if s.state.Listening {
		return nil
	}
	s.lang = lang
	s.lastPartial = ""
	s.state.Listening = true
	s.state.Error = ""
	s.state.Tip = TipListening
	s.state.PartialText = ""

	if err := s.voice.StartListening(lang); err != nil {
		s.state.Listening = false
		s.state.Tip = TipIdle
		return err
	}
	return nil
}

func (s *Session) stopLocked() error {
	if !s.state.Listening {
		return nil
	}
	s.state.Listening = false
	s.state.Tip = TipRecognizing
	return s.voice.StopListening()
}

// finishLocked closes the utterance with the final text, or the last partial
// when the recognizer ended without one.
func (s *Session) finishLocked(ctx context.Context, final string) {
	text := strings.TrimSpace(final)
	if text == "" {
		text = strings.TrimSpace(s.lastPartial)
	}
	s.lastPartial = ""
	s.state.PartialText = ""

	if s.state.Listening {
		s.state.Listening = false
		if err := s.voice.StopListening(); err != nil {
			s.warning("Failed to stop listening: %v", err)
		}
	}
	if text == "" {
		return
	}

	s.state.FinalText = text
	s.state.Tip = TipIdle
	if !s.state.HighlightEnabled {
		return
	}

	res := s.highlightLocked(ctx, text)
	if s.onDecision != nil {
		s.onDecision(s.id, text, res)
	}
	prompt := Prompt(text, res)
	if res.Kind != matcher.NoMatch {
		s.state.Tip = prompt
	}
	if err := s.voice.Speak(prompt); err != nil {
		s.warning("Failed to speak prompt: %v", err)
	}
}

func (s *Session) highlightLocked(ctx context.Context, query string) matcher.Result {
	res := s.strategy.Match(ctx, query, s.buttons)
	s.setHighlightLocked(res.HighlightIDs(), res.Button.Label())
	return res
}

func (s *Session) setHighlightLocked(ids []int, label string) {
	if len(ids) == 0 {
		label = ""
	}
	s.state.HighlightedIDs = ids
	s.state.HighlightLabel = label
	if s.hl != nil {
		s.hl.Highlight(s.id, ids, label)
	}
}

func (s *Session) currentQueryLocked() string {
	if q := strings.TrimSpace(s.state.PartialText); q != "" {
		return q
	}
	return strings.TrimSpace(s.state.FinalText)
}

func (s *Session) warning(format string, v ...interface{}) {
	if s.warn != nil {
		s.warn.Warning(format, v...)
	}
}

// Prompt is the sentence spoken after a decision.
func Prompt(query string, res matcher.Result) string {
	switch res.Kind {
	case matcher.SingleMatch:
		return fmt.Sprintf("‘%s’%s", labelOr(res.Button), highlightingSuffix)
	case matcher.AmbiguousMatch:
		return fmt.Sprintf("‘%s’와 ‘%s’ 중 어떤 버튼인가요?", labelOr(res.Button), labelOr(res.Second))
	case matcher.ScrollMatch:
		return "찾는 버튼이 화면에 없어요. 화면을 스크롤해 주세요."
	default:
		return fmt.Sprintf("'%s'에 해당하는 버튼이 없어요. 다시 말씀해 주세요.", query)
	}
}

func labelOr(b models.TrackedButton) string {
	if l := strings.TrimSpace(b.Label()); l != "" {
		return l
	}
	return fallbackButtonLabel
}
