package handlers

import (
	"net/http"
	"os"

	"kioskhelper/internal/logger"
)

// ShowLogsHandler serves /logs/{level} as plain text.
func ShowLogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level, ok := logger.ParseLevel(r.PathValue("level"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		serveLogFile(w, r, log.Path(level))
	}
}

// ClearLogsHandler truncates /logs/{level}/clear.
func ClearLogsHandler(log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level, ok := logger.ParseLevel(r.PathValue("level"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		if err := log.Clean(level); err != nil {
			log.Error("Failed to clear logs: %v", err)
			http.Error(w, "Failed to clear logs", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func serveLogFile(w http.ResponseWriter, r *http.Request, filePath string) {
	// Sprawdź czy plik istnieje
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.Error(w, "Log file not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, filePath)
}
