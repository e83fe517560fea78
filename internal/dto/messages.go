// Package dto holds the JSON messages exchanged with the kiosk device, the
// viewers and the operator API.
package dto

import (
	"kioskhelper/internal/geometry"
	"kioskhelper/internal/matcher"
	"kioskhelper/internal/models"
	"kioskhelper/internal/speech"
)

// Message types on the viewer and speech sockets.
const (
	TypeButtons   = "buttons"
	TypeHighlight = "highlight"
	TypeCommand   = "command"
	TypeState     = "state"
	TypeError     = "error"
)

// ButtonView is a tracked button as drawn on the kiosk display.
type ButtonView struct {
	ID    int           `json:"id"`
	Rect  geometry.Rect `json:"rect"`
	Label string        `json:"label"`
	Text  string        `json:"text,omitempty"`
	Role  string        `json:"role,omitempty"`
	Score float64       `json:"score"`
}

func NewButtonView(b models.TrackedButton) ButtonView {
	return ButtonView{
		ID:    b.ID,
		Rect:  b.RectDisplay,
		Label: b.Label(),
		Text:  b.Text,
		Role:  b.Role,
		Score: b.Score,
	}
}

func NewButtonViews(buttons []models.TrackedButton) []ButtonView {
	out := make([]ButtonView, 0, len(buttons))
	for _, b := range buttons {
		out = append(out, NewButtonView(b))
	}
	return out
}

// OverlayMessage is broadcast to viewers after every processed frame. Image
// is a base64 JPEG and only set when annotated streaming is on.
type OverlayMessage struct {
	Type        string       `json:"type"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	Buttons     []ButtonView `json:"buttons"`
	Highlighted []int        `json:"highlighted"`
	Image       string       `json:"image,omitempty"`
}

type HighlightMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	IDs       []int  `json:"ids"`
	Label     string `json:"label,omitempty"`
}

type MatchRequest struct {
	Query string `json:"query"`
}

type CandidateView struct {
	Button ButtonView `json:"button"`
	Score  float64    `json:"score"`
}

// MatchResponse is the decision for one query.
type MatchResponse struct {
	Query      string          `json:"query"`
	Kind       string          `json:"kind"`
	Strategy   string          `json:"strategy"`
	Ambiguous  bool            `json:"ambiguous"`
	Button     *ButtonView     `json:"button,omitempty"`
	Second     *ButtonView     `json:"second,omitempty"`
	Candidates []CandidateView `json:"candidates"`
	Prompt     string          `json:"prompt"`
}

func NewMatchResponse(query string, res matcher.Result) MatchResponse {
	resp := MatchResponse{
		Query:      query,
		Kind:       res.Kind.String(),
		Strategy:   res.Strategy,
		Ambiguous:  res.Ambiguous(),
		Candidates: make([]CandidateView, 0, len(res.Candidates)),
		Prompt:     speech.Prompt(query, res),
	}
	if res.Kind != matcher.NoMatch {
		b := NewButtonView(res.Button)
		resp.Button = &b
	}
	if res.Kind == matcher.AmbiguousMatch {
		b := NewButtonView(res.Second)
		resp.Second = &b
	}
	for _, c := range res.Candidates {
		resp.Candidates = append(resp.Candidates, CandidateView{Button: NewButtonView(c.Button), Score: c.Score})
	}
	return resp
}

// Speech commands sent to the device.
const (
	CommandStartListening  = "start_listening"
	CommandStopListening   = "stop_listening"
	CommandCancelListening = "cancel_listening"
	CommandSpeak           = "speak"
	CommandStopSpeaking    = "stop_speaking"
)

type SpeechCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Lang    string `json:"lang,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Actions the device may send on the speech socket besides events.
const (
	ActionEvent           = "event"
	ActionToggle          = "toggle"
	ActionStart           = "start"
	ActionStop            = "stop"
	ActionCancel          = "cancel"
	ActionCancelHighlight = "cancel_highlight"
	ActionResumeHighlight = "resume_highlight"
)

// SpeechInbound is one message from the device.
type SpeechInbound struct {
	Action string       `json:"action"`
	Event  speech.Event `json:"event"`
	Lang   string       `json:"lang,omitempty"`
}

type SessionStateMessage struct {
	Type  string       `json:"type"`
	State speech.State `json:"state"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
