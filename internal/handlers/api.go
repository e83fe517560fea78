package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"kioskhelper/internal/dto"
	"kioskhelper/internal/logger"
	"kioskhelper/internal/services"
)

const maxQueryBody = 4 << 10

// MatchHandler dopasowuje zapytanie do aktualnych przycisków i podświetla wynik.
func MatchHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req dto.MatchRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBody)).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}

		res := manager.Match(r.Context(), req.Query)
		logger.Info("🔎 Match %q -> %s (%s)", req.Query, res.Kind, res.Strategy)
		writeJSON(w, http.StatusOK, dto.NewMatchResponse(req.Query, res), logger)
	}
}

// ButtonsHandler returns the latest button snapshot in display coordinates.
func ButtonsHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		width, height := manager.DisplaySize()
		writeJSON(w, http.StatusOK, dto.OverlayMessage{
			Type:        dto.TypeButtons,
			Width:       width,
			Height:      height,
			Buttons:     dto.NewButtonViews(manager.Buttons()),
			Highlighted: manager.HighlightedIDs(),
		}, logger)
	}
}

func RedetectHandler(manager *services.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		manager.Redetect()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "redetect"}, logger)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

func atoiDefault(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
