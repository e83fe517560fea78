package models

import "time"

// MatchDecision is one row of the match audit log.
type MatchDecision struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	Query      string    `json:"query"`
	Strategy   string    `json:"strategy"`
	Kind       string    `json:"kind"`
	ButtonID   int       `json:"button_id"`
	SecondID   int       `json:"second_id"`
	Label      string    `json:"label"`
	Score      float64   `json:"score"`
	Candidates int       `json:"candidates"`
	CreatedAt  time.Time `json:"created_at"`
}

// DecisionStats summarizes the audit log.
type DecisionStats struct {
	Total  int            `json:"total"`
	ByKind map[string]int `json:"by_kind"`
}
