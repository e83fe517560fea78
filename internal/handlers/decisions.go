package handlers

import (
	"net/http"

	"kioskhelper/internal/logger"
	"kioskhelper/internal/repository"
)

const maxDecisionsLimit = 500

// GetDecisionsHandler returns the most recent match decisions, newest first.
func GetDecisionsHandler(repo repository.DecisionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := atoiDefault(r.URL.Query().Get("limit"), 50)
		if limit <= 0 {
			limit = 50
		}
		if limit > maxDecisionsLimit {
			limit = maxDecisionsLimit
		}

		decisions, err := repo.GetRecent(limit)
		if err != nil {
			logger.Error("Error querying decisions: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"decisions": decisions,
			"limit":     limit,
		}, logger)
	}
}

// DecisionStatsHandler returns decision counts per kind.
func DecisionStatsHandler(repo repository.DecisionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := repo.Stats()
		if err != nil {
			logger.Error("Failed to get stats: %v", err)
			http.Error(w, "Failed to retrieve stats", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats, logger)
	}
}

func ClearDecisionsHandler(repo repository.DecisionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := repo.DeleteAll(); err != nil {
			logger.Error("Error clearing decisions: %v", err)
			http.Error(w, "Failed to clear decisions", http.StatusInternalServerError)
			return
		}
		logger.Info("🧹 Decision log cleared")
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"}, logger)
	}
}
