package routes

import (
	"net/http"
	"os"
	"path/filepath"

	"kioskhelper/internal/config"
	"kioskhelper/internal/handlers"
	"kioskhelper/internal/logger"
	"kioskhelper/internal/middleware"
	"kioskhelper/internal/repository"
	"kioskhelper/internal/services"
	wshub "kioskhelper/internal/services/websocket"
)

// dynamicHTMLHandler serves /path as /static/path.html if the file exists; otherwise 404.
func dynamicHTMLHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	if path == "/" {
		path = "/index"
	}

	filePath := filepath.Join("static", filepath.Clean("/"+path)+".html")

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.NotFound(w, r)
		return
	}

	http.ServeFile(w, r, filePath)
}

// SetupRoutes registers the device sockets, the operator API and the log
// endpoints, and wraps the mux with the authentication middleware.
func SetupRoutes(manager *services.Manager, hub *wshub.HubService, decisions repository.DecisionRepository, cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()
	sessions := middleware.NewSessions()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	// Kiosk device
	mux.HandleFunc("/camera", handlers.CameraWebsocketHandler(manager, logger))
	mux.HandleFunc("/speech", handlers.SpeechWebsocketHandler(manager, logger))

	// API endpoints
	mux.HandleFunc("/api/view", handlers.ViewWebsocketHandler(hub, logger))
	mux.HandleFunc("/api/match", handlers.MatchHandler(manager, logger))
	mux.HandleFunc("GET /api/buttons", handlers.ButtonsHandler(manager, logger))
	mux.HandleFunc("/api/redetect", handlers.RedetectHandler(manager, logger))
	mux.HandleFunc("GET /api/decisions", handlers.GetDecisionsHandler(decisions, logger))
	mux.HandleFunc("GET /api/decisions/stats", handlers.DecisionStatsHandler(decisions, logger))
	mux.HandleFunc("/api/decisions/clear", handlers.ClearDecisionsHandler(decisions, logger))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handlers.ShowLogsHandler(logger))
	mux.HandleFunc("POST /logs/{level}/clear", handlers.ClearLogsHandler(logger))

	// Auth endpoints
	mux.HandleFunc("/auth/login", handlers.LoginHandler(cfg, sessions, logger))
	mux.HandleFunc("/auth/logout", handlers.LogoutHandler(sessions))

	// Automatic HTML handler mapping for example: /settings -> /static/settings.html
	mux.HandleFunc("/", dynamicHTMLHandler)

	// Apply middleware
	return middleware.AuthMiddleware(sessions, mux)
}
