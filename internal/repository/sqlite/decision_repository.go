package sqlite

import (
	"fmt"

	"kioskhelper/internal/models"
)

const insertDecision = `
	INSERT INTO match_decisions (id, session_id, query, strategy, kind, button_id, second_id, label, score, candidates, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// DecisionRepository implements repository.DecisionRepository for SQLite.
type DecisionRepository struct {
	db *DB
}

// NewDecisionRepository creates a new SQLite decision repository.
func NewDecisionRepository(db *DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// Insert adds a single decision.
func (r *DecisionRepository) Insert(d *models.MatchDecision) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(insertDecision,
		d.ID, d.SessionID, d.Query, d.Strategy, d.Kind, d.ButtonID, d.SecondID, d.Label, d.Score, d.Candidates, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// InsertBatch adds multiple decisions in a single transaction.
func (r *DecisionRepository) InsertBatch(decisions []models.MatchDecision) error {
	if len(decisions) == 0 {
		return nil
	}

	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertDecision)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range decisions {
		if _, err := stmt.Exec(d.ID, d.SessionID, d.Query, d.Strategy, d.Kind, d.ButtonID, d.SecondID, d.Label, d.Score, d.Candidates, d.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert decision: %w", err)
		}
	}

	return tx.Commit()
}

// GetRecent returns up to limit decisions, newest first.
func (r *DecisionRepository) GetRecent(limit int) ([]models.MatchDecision, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Conn().Query(`
		SELECT id, session_id, query, strategy, kind, button_id, second_id, label, score, candidates, created_at
		FROM match_decisions ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	decisions := make([]models.MatchDecision, 0)
	for rows.Next() {
		var d models.MatchDecision
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Query, &d.Strategy, &d.Kind, &d.ButtonID, &d.SecondID, &d.Label, &d.Score, &d.Candidates, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, d)
	}

	return decisions, rows.Err()
}

// Stats counts decisions per kind.
func (r *DecisionRepository) Stats() (*models.DecisionStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`SELECT kind, COUNT(*) FROM match_decisions GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to query decision stats: %w", err)
	}
	defer rows.Close()

	stats := &models.DecisionStats{ByKind: make(map[string]int)}
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan decision stats: %w", err)
		}
		stats.ByKind[kind] = count
		stats.Total += count
	}

	return stats, rows.Err()
}

// DeleteAll removes every decision.
func (r *DecisionRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM match_decisions`); err != nil {
		return fmt.Errorf("failed to delete decisions: %w", err)
	}
	return nil
}
