package repository

import "kioskhelper/internal/models"

// DecisionRepository stores the match audit log.
type DecisionRepository interface {
	// Create operations
	Insert(d *models.MatchDecision) error
	InsertBatch(decisions []models.MatchDecision) error

	// Read operations
	GetRecent(limit int) ([]models.MatchDecision, error)
	Stats() (*models.DecisionStats, error)

	// Delete operations
	DeleteAll() error
}
