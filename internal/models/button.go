package models

import (
	"strings"
	"time"

	"kioskhelper/internal/geometry"
)

// TrackedButton is a detected UI element with a stable track id and the labels
// fused into it so far. Empty Text or Role means not known yet.
type TrackedButton struct {
	ID             int           `json:"id"`
	RectSource     geometry.Rect `json:"rect_source"`
	RectDisplay    geometry.Rect `json:"rect_display"`
	Score          float64       `json:"score"`
	Text           string        `json:"text,omitempty"`
	Role           string        `json:"role,omitempty"`
	LabelUpdatedAt time.Time     `json:"label_updated_at,omitempty"`
}

// Label is the text when present, otherwise the role.
func (b TrackedButton) Label() string {
	if t := strings.TrimSpace(b.Text); t != "" {
		return t
	}
	return b.Role
}

// HasLabelTimestamp reports whether a label refresh was ever recorded.
func (b TrackedButton) HasLabelTimestamp() bool {
	return !b.LabelUpdatedAt.IsZero()
}
