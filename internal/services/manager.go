package services

import (
	"context"
	"encoding/base64"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"kioskhelper/internal/dto"
	"kioskhelper/internal/logger"
	"kioskhelper/internal/matcher"
	"kioskhelper/internal/models"
	"kioskhelper/internal/pipeline"
	"kioskhelper/internal/speech"
)

// APISessionID owns the highlights requested through the match endpoint.
const APISessionID = "api"

// FrameTask is one JPEG frame from the kiosk camera.
type FrameTask struct {
	Data     []byte
	Rotation int
	DisplayW int
	DisplayH int
}

// DecodeFunc turns an encoded frame into an image.
type DecodeFunc func(data []byte) (image.Image, error)

// AnnotateFunc draws the buttons onto the frame and returns a JPEG.
type AnnotateFunc func(frame image.Image, buttons []models.TrackedButton, highlighted []int) ([]byte, error)

// Broadcaster sends a JSON message to every viewer.
type Broadcaster interface {
	BroadcastJSON(v interface{}) error
}

// DecisionSink stores match decisions; *storage.DecisionBuffer implements it.
type DecisionSink interface {
	Add(d models.MatchDecision) bool
}

type Manager struct {
	pipeline  *pipeline.Pipeline
	strategy  matcher.Strategy
	hub       Broadcaster
	decisions DecisionSink
	decode    DecodeFunc
	annotate  AnnotateFunc
	logger    *logger.Logger

	frames chan FrameTask // bez bufora: klatka jest przyjmowana tylko gdy worker czeka
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sessionsMu sync.RWMutex
	sessions   map[string]*sessionEntry

	highlightMu sync.RWMutex
	highlights  map[string][]int
}

// NewManager starts the frame worker. annotate may be nil, in which case
// viewers get the overlay without the frame. decisions may be nil.
func NewManager(p *pipeline.Pipeline, strategy matcher.Strategy, hub Broadcaster, decisions DecisionSink, decode DecodeFunc, annotate AnnotateFunc, logger *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		pipeline:   p,
		strategy:   strategy,
		hub:        hub,
		decisions:  decisions,
		decode:     decode,
		annotate:   annotate,
		logger:     logger,
		frames:     make(chan FrameTask),
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*sessionEntry),
		highlights: make(map[string][]int),
	}

	m.wg.Add(1)
	go m.processingWorker()

	m.logger.Info("🎬 Manager started - matcher strategy %s", strategy.Name())
	return m
}

// HandleFrame hands a frame to the worker. It reports false when the worker
// is busy and the frame was dropped.
func (m *Manager) HandleFrame(task FrameTask) bool {
	select {
	case m.frames <- task:
		return true
	default:
		return false
	}
}

// processingWorker przetwarza klatki jedna po drugiej
func (m *Manager) processingWorker() {
	defer m.wg.Done()

	m.logger.Info("🔧 Frame worker started")
	for {
		select {
		case <-m.ctx.Done():
			m.logger.Info("🔧 Frame worker stopped")
			return
		case task := <-m.frames:
			m.processFrame(task)
		}
	}
}

func (m *Manager) processFrame(task FrameTask) {
	img, err := m.decode(task.Data)
	if err != nil {
		m.logger.Warning("Failed to decode frame: %v", err)
		return
	}

	buttons, err := m.pipeline.Process(m.ctx, pipeline.Frame{
		Image:    img,
		Rotation: task.Rotation,
		DisplayW: task.DisplayW,
		DisplayH: task.DisplayH,
	})
	if err != nil {
		m.logger.Warning("Frame skipped: %v", err)
		return
	}

	for _, s := range m.sessionList() {
		s.Offer(buttons)
	}
	m.sendOverlay(img, buttons)
}

func (m *Manager) sendOverlay(img image.Image, buttons []models.TrackedButton) {
	w, h := m.pipeline.DisplaySize()
	highlighted := m.HighlightedIDs()
	msg := dto.OverlayMessage{
		Type:        dto.TypeButtons,
		Width:       w,
		Height:      h,
		Buttons:     dto.NewButtonViews(buttons),
		Highlighted: highlighted,
	}

	if m.annotate != nil && img != nil {
		jpg, err := m.annotate(img, buttons, highlighted)
		if err != nil {
			m.logger.Error("Failed to draw buttons: %v", err)
		} else {
			msg.Image = base64.StdEncoding.EncodeToString(jpg)
		}
	}

	if err := m.hub.BroadcastJSON(msg); err != nil {
		m.logger.Warning("Overlay not sent: %v", err)
	}
}

// Match runs the configured strategy against the current buttons, records the
// decision and highlights the result.
func (m *Manager) Match(ctx context.Context, query string) matcher.Result {
	res := m.strategy.Match(ctx, query, m.pipeline.Buttons())
	m.RecordDecision(APISessionID, query, res)
	m.Highlight(APISessionID, res.HighlightIDs(), res.Button.Label())
	return res
}

// RecordDecision queues one decision for the audit log.
func (m *Manager) RecordDecision(sessionID, query string, res matcher.Result) {
	if m.decisions == nil {
		return
	}
	// Bufor sam liczy odrzucone decyzje
	m.decisions.Add(NewDecision(sessionID, query, res, time.Now()))
}

// NewDecision flattens a match result into an audit row.
func NewDecision(sessionID, query string, res matcher.Result, at time.Time) models.MatchDecision {
	top, _ := res.Top()
	d := models.MatchDecision{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Query:      query,
		Strategy:   res.Strategy,
		Kind:       res.Kind.String(),
		Score:      top,
		Candidates: len(res.Candidates),
		CreatedAt:  at.UTC(),
	}
	if res.Kind != matcher.NoMatch {
		d.ButtonID = res.Button.ID
		d.Label = res.Button.Label()
	}
	if res.Kind == matcher.AmbiguousMatch {
		d.SecondID = res.Second.ID
	}
	return d
}

// Highlight implements speech.Highlighter. Empty ids clear the session's
// highlight.
func (m *Manager) Highlight(sessionID string, ids []int, label string) {
	m.highlightMu.Lock()
	if len(ids) == 0 {
		delete(m.highlights, sessionID)
	} else {
		m.highlights[sessionID] = append([]int(nil), ids...)
	}
	m.highlightMu.Unlock()

	msg := dto.HighlightMessage{Type: dto.TypeHighlight, SessionID: sessionID, IDs: ids, Label: label}
	if msg.IDs == nil {
		msg.IDs = []int{}
	}
	if err := m.hub.BroadcastJSON(msg); err != nil {
		m.logger.Warning("Highlight not sent: %v", err)
	}
}

// HighlightedIDs is the sorted union of every session's highlight.
func (m *Manager) HighlightedIDs() []int {
	m.highlightMu.RLock()
	defer m.highlightMu.RUnlock()

	seen := make(map[int]bool)
	out := []int{}
	for _, ids := range m.highlights {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Ints(out)
	return out
}

// sessionEntry is a live speech session and the stop func of its Run loop.
type sessionEntry struct {
	session *speech.Session
	cancel  context.CancelFunc
}

// NewSession opens a speech session on one device and seeds it with the
// current buttons. Later button sets reach it through its own goroutine, so
// a slow device never holds up the frame worker.
func (m *Manager) NewSession(rec speech.Recognizer, syn speech.Synthesizer) *speech.Session {
	s := speech.NewSession(speech.NewCoordinator(rec, syn), m.strategy, m, m.RecordDecision, m.logger)
	s.SetButtons(m.ctx, m.pipeline.Buttons())

	ctx, cancel := context.WithCancel(m.ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		s.Run(ctx)
	}()

	m.sessionsMu.Lock()
	m.sessions[s.ID()] = &sessionEntry{session: s, cancel: cancel}
	count := len(m.sessions)
	m.sessionsMu.Unlock()

	m.logger.Info("🎤 Speech session %s opened. Total: %d", s.ID(), count)
	return s
}

// RemoveSession forgets a session and clears its highlight.
func (m *Manager) RemoveSession(id string) {
	m.sessionsMu.Lock()
	entry, ok := m.sessions[id]
	delete(m.sessions, id)
	m.sessionsMu.Unlock()

	if ok {
		entry.cancel()
		m.Highlight(id, nil, "")
		m.logger.Info("🎤 Speech session %s closed", id)
	}
}

func (m *Manager) SessionCount() int {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) sessionList() []*speech.Session {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	out := make([]*speech.Session, 0, len(m.sessions))
	for _, e := range m.sessions {
		out = append(out, e.session)
	}
	return out
}

// Redetect resets tracking at the start of the next frame.
func (m *Manager) Redetect() {
	m.pipeline.ForceRedetect()
	m.logger.Info("🔄 Re-detect requested")
}

func (m *Manager) Buttons() []models.TrackedButton {
	return m.pipeline.Buttons()
}

func (m *Manager) DisplaySize() (int, int) {
	return m.pipeline.DisplaySize()
}

func (m *Manager) StrategyName() string {
	return m.strategy.Name()
}

// Stop zatrzymuje workera
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
	m.logger.Info("🛑 Manager stopped")
}
