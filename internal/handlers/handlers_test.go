package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"kioskhelper/internal/config"
	"kioskhelper/internal/dto"
	"kioskhelper/internal/geometry"
	"kioskhelper/internal/logger"
	"kioskhelper/internal/matcher"
	"kioskhelper/internal/middleware"
	"kioskhelper/internal/models"
	"kioskhelper/internal/pipeline"
	"kioskhelper/internal/services"
	"kioskhelper/internal/speech"
	"kioskhelper/internal/tracker"
)

type fakeDetector struct{}

func (fakeDetector) Detect(ctx context.Context, img image.Image) ([]models.Detection, error) {
	return []models.Detection{
		{Score: 0.9, Rect: geometry.Rect{Left: 50, Top: 50, Right: 200, Bottom: 120}},
		{Score: 0.8, Rect: geometry.Rect{Left: 300, Top: 50, Right: 450, Bottom: 120}},
	}, nil
}

type textLabeler map[int]string

func (l textLabeler) Refresh(ctx context.Context, frame image.Image, buttons []models.TrackedButton) []models.TrackedButton {
	out := make([]models.TrackedButton, len(buttons))
	copy(out, buttons)
	for i := range out {
		out[i].Text = l[out[i].ID]
	}
	return out
}

type nopHub struct{}

func (nopHub) BroadcastJSON(v interface{}) error { return nil }

type fakeRepo struct {
	mu       sync.Mutex
	limit    int
	cleared  bool
	failing  bool
	recorded []models.MatchDecision
}

func (r *fakeRepo) Insert(d *models.MatchDecision) error               { return nil }
func (r *fakeRepo) InsertBatch(ds []models.MatchDecision) error         { return nil }
func (r *fakeRepo) Stats() (*models.DecisionStats, error)               { return r.stats() }
func (r *fakeRepo) GetRecent(limit int) ([]models.MatchDecision, error) { return r.recent(limit) }

func (r *fakeRepo) recent(limit int) ([]models.MatchDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limit = limit
	if r.failing {
		return nil, errors.New("database locked")
	}
	return r.recorded, nil
}

func (r *fakeRepo) stats() (*models.DecisionStats, error) {
	if r.failing {
		return nil, errors.New("database locked")
	}
	return &models.DecisionStats{Total: 3, ByKind: map[string]int{"single": 2, "none": 1}}, nil
}

func (r *fakeRepo) DeleteAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = true
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "handlers_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	log := logger.NewLogger(&config.Config{LogDirectory: tempDir})
	t.Cleanup(func() {
		log.Close()
		os.RemoveAll(tempDir)
	})
	return log
}

func newTestManager(t *testing.T, log *logger.Logger) *services.Manager {
	t.Helper()
	p := pipeline.New(fakeDetector{}, tracker.New(tracker.DefaultIoUThreshold, tracker.DefaultMaxAge),
		textLabeler{1: "결제", 2: "취소"}, 1, log)
	strategy, err := matcher.New(matcher.StrategySynonym, matcher.BuiltinDictionary(), nil, 0)
	if err != nil {
		t.Fatalf("Failed to build strategy: %v", err)
	}
	decode := func(data []byte) (image.Image, error) {
		return image.NewRGBA(image.Rect(0, 0, 640, 480)), nil
	}
	m := services.NewManager(p, strategy, nopHub{}, nil, decode, nil, log)
	t.Cleanup(m.Stop)
	return m
}

// feedFrame pushes one frame through the worker and waits for the snapshot.
func feedFrame(t *testing.T, m *services.Manager) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !m.HandleFrame(services.FrameTask{Data: []byte{0xFF, 0xD8}}) {
		if time.Now().After(deadline) {
			t.Fatal("worker never accepted a frame")
		}
		time.Sleep(time.Millisecond)
	}
	for len(m.Buttons()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("frame was never processed")
		}
		time.Sleep(time.Millisecond)
	}
}

// ========================================
// Match API
// ========================================

func TestMatchHandler(t *testing.T) {
	log := testLogger(t)
	m := newTestManager(t, log)
	feedFrame(t, m)
	handler := MatchHandler(m, log)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/match", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, expected 405", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/match", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d, expected 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	body, _ := json.Marshal(dto.MatchRequest{Query: "결제할게요"})
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/match", bytes.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var resp dto.MatchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Kind != "single" || resp.Button == nil || resp.Button.ID != 1 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !strings.Contains(resp.Prompt, "결제") {
		t.Errorf("prompt should name the button, got %q", resp.Prompt)
	}
	if ids := m.HighlightedIDs(); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("match should highlight [1], got %v", ids)
	}
}

func TestMatchHandler_BlankQueryIsNoMatch(t *testing.T) {
	log := testLogger(t)
	m := newTestManager(t, log)
	feedFrame(t, m)

	rec := httptest.NewRecorder()
	MatchHandler(m, log)(rec, httptest.NewRequest(http.MethodPost, "/api/match", strings.NewReader(`{"query":"   "}`)))

	var resp dto.MatchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Kind != "none" || resp.Button != nil {
		t.Errorf("blank query should be no match, got %+v", resp)
	}
}

func TestButtonsHandler(t *testing.T) {
	log := testLogger(t)
	m := newTestManager(t, log)
	feedFrame(t, m)

	rec := httptest.NewRecorder()
	ButtonsHandler(m, log)(rec, httptest.NewRequest(http.MethodGet, "/api/buttons", nil))

	var overlay dto.OverlayMessage
	if err := json.NewDecoder(rec.Body).Decode(&overlay); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if overlay.Width != 640 || overlay.Height != 480 || len(overlay.Buttons) != 2 {
		t.Errorf("unexpected snapshot: %+v", overlay)
	}
	if overlay.Buttons[1].Label != "취소" {
		t.Errorf("expected second label 취소, got %q", overlay.Buttons[1].Label)
	}
}

func TestRedetectHandler(t *testing.T) {
	log := testLogger(t)
	m := newTestManager(t, log)

	rec := httptest.NewRecorder()
	RedetectHandler(m, log)(rec, httptest.NewRequest(http.MethodPost, "/api/redetect", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, expected 202", rec.Code)
	}
}

// ========================================
// Decision log API
// ========================================

func TestGetDecisionsHandler_Limit(t *testing.T) {
	log := testLogger(t)
	repo := &fakeRepo{}
	handler := GetDecisionsHandler(repo, log)

	tests := []struct {
		query    string
		expected int
	}{
		{"", 50},
		{"?limit=10", 10},
		{"?limit=-3", 50},
		{"?limit=abc", 50},
		{"?limit=100000", maxDecisionsLimit},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/api/decisions"+tt.query, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%q: status = %d", tt.query, rec.Code)
		}
		if repo.limit != tt.expected {
			t.Errorf("%q: limit = %d, expected %d", tt.query, repo.limit, tt.expected)
		}
	}
}

func TestDecisionHandlers_Errors(t *testing.T) {
	log := testLogger(t)
	repo := &fakeRepo{failing: true}

	rec := httptest.NewRecorder()
	GetDecisionsHandler(repo, log)(rec, httptest.NewRequest(http.MethodGet, "/api/decisions", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("decisions status = %d, expected 500", rec.Code)
	}

	rec = httptest.NewRecorder()
	DecisionStatsHandler(repo, log)(rec, httptest.NewRequest(http.MethodGet, "/api/decisions/stats", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("stats status = %d, expected 500", rec.Code)
	}
}

func TestDecisionStatsAndClear(t *testing.T) {
	log := testLogger(t)
	repo := &fakeRepo{}

	rec := httptest.NewRecorder()
	DecisionStatsHandler(repo, log)(rec, httptest.NewRequest(http.MethodGet, "/api/decisions/stats", nil))
	var stats models.DecisionStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Total != 3 || stats.ByKind["single"] != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	rec = httptest.NewRecorder()
	ClearDecisionsHandler(repo, log)(rec, httptest.NewRequest(http.MethodGet, "/api/decisions/clear", nil))
	if rec.Code != http.StatusMethodNotAllowed || repo.cleared {
		t.Errorf("GET should not clear, status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	ClearDecisionsHandler(repo, log)(rec, httptest.NewRequest(http.MethodPost, "/api/decisions/clear", nil))
	if rec.Code != http.StatusOK || !repo.cleared {
		t.Errorf("POST should clear, status %d", rec.Code)
	}
}

// ========================================
// Auth and logs
// ========================================

func TestLoginHandler(t *testing.T) {
	log := testLogger(t)
	sessions := middleware.NewSessions()
	handler := LoginHandler(&config.Config{Password: "secret"}, sessions, log)

	form := func(pw string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(url.Values{"password": {pw}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	rec := httptest.NewRecorder()
	handler(rec, form("wrong"))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, expected 401", rec.Code)
	}
	if cookies := rec.Result().Cookies(); len(cookies) != 0 {
		t.Errorf("wrong password should not set a cookie, got %+v", cookies)
	}

	rec = httptest.NewRecorder()
	handler(rec, form("secret"))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, expected 303", rec.Code)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != middleware.AuthCookie {
		t.Fatalf("expected auth cookie, got %+v", cookies)
	}
	if cookies[0].Value == "true" || !sessions.Valid(cookies[0].Value) {
		t.Errorf("cookie %q is not an issued token", cookies[0].Value)
	}
}

func TestLogoutHandler(t *testing.T) {
	sessions := middleware.NewSessions()
	token := sessions.Issue()

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AuthCookie, Value: token})
	rec := httptest.NewRecorder()
	LogoutHandler(sessions)(rec, req)

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Errorf("expected an expired cookie, got %+v", cookies)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Errorf("redirect = %q, expected /login", loc)
	}
	if sessions.Valid(token) {
		t.Errorf("token should be revoked after logout")
	}
}

func TestLogsHandlers(t *testing.T) {
	log := testLogger(t)
	log.Warning("kiosk camera offline")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /logs/{level}", ShowLogsHandler(log))
	mux.HandleFunc("POST /logs/{level}/clear", ClearLogsHandler(log))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/warning", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "kiosk camera offline") {
		t.Errorf("warning log not served: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/logs/debug", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown level status = %d, expected 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/logs/warning/clear", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("clear status = %d, expected 204", rec.Code)
	}
	data, err := os.ReadFile(log.Path(logger.LevelWarning))
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("warning log should be empty after clear, got %q", data)
	}
}

// ========================================
// UDP frame assembly
// ========================================

func TestFrameAssembler(t *testing.T) {
	a := newFrameAssembler(16)

	if _, ok := a.Push("10.0.0.2", []byte{0x01, 0x02}); ok {
		t.Error("data before a JPEG header should be discarded")
	}
	if _, ok := a.Push("10.0.0.2", []byte{0xFF, 0xD8, 0x01}); ok {
		t.Error("frame without footer should not be complete")
	}
	if _, ok := a.Push("10.0.0.3", []byte{0xFF, 0xD8, 0x07}); ok {
		t.Error("other sender should not complete")
	}
	frame, ok := a.Push("10.0.0.2", []byte{0x02, 0xFF, 0xD9})
	if !ok {
		t.Fatal("frame should complete on footer")
	}
	if !bytes.Equal(frame, []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}) {
		t.Errorf("unexpected frame %x", frame)
	}

	// Oversized frames are dropped.
	a.Push("10.0.0.4", append([]byte{0xFF, 0xD8}, make([]byte, 10)...))
	if _, ok := a.Push("10.0.0.4", append(make([]byte, 10), 0xFF, 0xD9)); ok {
		t.Error("frame over the size limit should be dropped")
	}
}

// ========================================
// Speech socket
// ========================================

type socketMessage struct {
	Type    string       `json:"type"`
	Command string       `json:"command"`
	Lang    string       `json:"lang"`
	Text    string       `json:"text"`
	State   speech.State `json:"state"`
	Message string       `json:"message"`
}

func readSocket(t *testing.T, conn *websocket.Conn) socketMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg socketMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read socket message: %v", err)
	}
	return msg
}

func TestSpeechWebsocket(t *testing.T) {
	log := testLogger(t)
	m := newTestManager(t, log)
	feedFrame(t, m)

	server := httptest.NewServer(SpeechWebsocketHandler(m, log))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	if msg := readSocket(t, conn); msg.Type != dto.TypeState || msg.State.Listening {
		t.Fatalf("expected idle state first, got %+v", msg)
	}

	conn.WriteJSON(dto.SpeechInbound{Action: dto.ActionToggle})
	if msg := readSocket(t, conn); msg.Command != dto.CommandStartListening || msg.Lang != speech.DefaultLanguage {
		t.Fatalf("expected start_listening, got %+v", msg)
	}
	if msg := readSocket(t, conn); !msg.State.Listening {
		t.Fatalf("expected listening state, got %+v", msg)
	}

	conn.WriteJSON(dto.SpeechInbound{Action: dto.ActionEvent, Event: speech.Event{Kind: speech.EventFinal, Text: "결제할게요"}})
	if msg := readSocket(t, conn); msg.Command != dto.CommandStopListening {
		t.Fatalf("expected stop_listening, got %+v", msg)
	}
	msg := readSocket(t, conn)
	if msg.Command != dto.CommandSpeak || !strings.Contains(msg.Text, "결제") {
		t.Fatalf("expected spoken prompt, got %+v", msg)
	}
	msg = readSocket(t, conn)
	if len(msg.State.HighlightedIDs) != 1 || msg.State.HighlightedIDs[0] != 1 || msg.State.FinalText != "결제할게요" {
		t.Errorf("unexpected final state: %+v", msg.State)
	}

	conn.WriteJSON(dto.SpeechInbound{Action: "dance"})
	if msg := readSocket(t, conn); msg.Type != dto.TypeError {
		t.Errorf("unknown action should produce an error, got %+v", msg)
	}

	if m.SessionCount() != 1 {
		t.Errorf("expected 1 open session, got %d", m.SessionCount())
	}
}
