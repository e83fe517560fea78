package handlers

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"kioskhelper/internal/dto"
	"kioskhelper/internal/logger"
	"kioskhelper/internal/services"
	wshub "kioskhelper/internal/services/websocket"
	"kioskhelper/internal/speech"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
	maxFrameSize = 8 << 20
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// CameraWebsocketHandler przyjmuje klatki JPEG z kiosku. Parametry zapytania
// rotation, width i height opisują ekran, na którym rysowane są przyciski.
func CameraWebsocketHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rotation := atoiDefault(q.Get("rotation"), 0)
		displayW := atoiDefault(q.Get("width"), 0)
		displayH := atoiDefault(q.Get("height"), 0)

		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()
		connection.SetReadLimit(maxFrameSize)
		keepAlive(connection)

		logger.Info("📷 Camera connected: rotation=%d display=%dx%d", rotation, displayW, displayH)

		var received, dropped int
		for {
			msgType, msg, err := connection.ReadMessage()
			if err != nil {
				logger.Info("📷 Camera disconnected after %d frames (%d dropped): %v", received, dropped, err)
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			connection.SetReadDeadline(time.Now().Add(readTimeout))
			received++

			if !manager.HandleFrame(services.FrameTask{
				Data:     msg,
				Rotation: rotation,
				DisplayW: displayW,
				DisplayH: displayH,
			}) {
				dropped++
			}
		}
	}
}

// ViewWebsocketHandler rejestruje widza; wiadomości wysyła tylko hub.
func ViewWebsocketHandler(hub *wshub.HubService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)
		keepAlive(connection)

		hub.Register(connection)
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				return
			}
		}
	}
}

// SpeechWebsocketHandler binds one kiosk device to a speech session. The
// device sends recognizer events and UI actions and receives speech commands
// and session state.
func SpeechWebsocketHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()
		connection.SetReadLimit(64 << 10)
		keepAlive(connection)

		device := &speechDevice{conn: connection}
		session := manager.NewSession(device, device)
		defer manager.RemoveSession(session.ID())

		ctx := r.Context()
		device.sendState(session)

		for {
			var in dto.SpeechInbound
			if err := connection.ReadJSON(&in); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warning("Speech device %s: %v", session.ID(), err)
				}
				return
			}
			connection.SetReadDeadline(time.Now().Add(readTimeout))

			var actionErr error
			switch in.Action {
			case dto.ActionEvent, "":
				session.Handle(ctx, in.Event)
			case dto.ActionToggle:
				actionErr = session.Toggle(ctx)
			case dto.ActionStart:
				actionErr = session.Start(ctx, in.Lang)
			case dto.ActionStop:
				actionErr = session.Stop(ctx)
			case dto.ActionCancel:
				session.Cancel(ctx)
			case dto.ActionCancelHighlight:
				session.CancelHighlight(ctx)
			case dto.ActionResumeHighlight:
				session.ResumeHighlight(ctx)
			default:
				device.sendError("unknown action " + strconv.Quote(in.Action))
				continue
			}

			if actionErr != nil {
				logger.Warning("Speech action %s failed in session %s: %v", in.Action, session.ID(), actionErr)
				device.sendError(actionErr.Error())
			}
			if err := device.sendState(session); err != nil {
				logger.Warning("Speech device %s: %v", session.ID(), err)
				return
			}
		}
	}
}

// speechDevice forwards recognizer and synthesizer commands to the kiosk.
type speechDevice struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (d *speechDevice) send(v interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return d.conn.WriteJSON(v)
}

func (d *speechDevice) command(name, lang, text string) error {
	return d.send(dto.SpeechCommand{Type: dto.TypeCommand, Command: name, Lang: lang, Text: text})
}

func (d *speechDevice) StartListening(lang string) error {
	return d.command(dto.CommandStartListening, lang, "")
}

func (d *speechDevice) StopListening() error {
	return d.command(dto.CommandStopListening, "", "")
}

func (d *speechDevice) CancelListening() error {
	return d.command(dto.CommandCancelListening, "", "")
}

func (d *speechDevice) Speak(text string) error {
	return d.command(dto.CommandSpeak, "", text)
}

func (d *speechDevice) StopSpeaking() error {
	return d.command(dto.CommandStopSpeaking, "", "")
}

func (d *speechDevice) sendState(s *speech.Session) error {
	return d.send(dto.SessionStateMessage{Type: dto.TypeState, State: s.State()})
}

func (d *speechDevice) sendError(msg string) error {
	return d.send(dto.ErrorMessage{Type: dto.TypeError, Message: msg})
}

func keepAlive(connection *websocket.Conn) {
	connection.SetReadDeadline(time.Now().Add(readTimeout))
	connection.SetPongHandler(func(appData string) error {
		connection.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
}
