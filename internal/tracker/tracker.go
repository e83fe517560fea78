// Package tracker keeps stable ids for detections across frames using greedy
// IoU association. A Tracker is not safe for concurrent use; the frame worker
// owns it.
package tracker

import (
	"kioskhelper/internal/geometry"
	"kioskhelper/internal/models"
)

const (
	DefaultIoUThreshold = 0.3
	DefaultMaxAge       = 30
)

// Track is one identity. Age counts consecutive updates without a match.
type Track struct {
	ID      int
	ClassID int
	Rect    geometry.Rect
	Score   float64
	Age     int
}

type Tracker struct {
	iouThreshold float64
	maxAge       int
	nextID       int
	tracks       []Track
}

func New(iouThreshold float64, maxAge int) *Tracker {
	if iouThreshold <= 0 {
		iouThreshold = DefaultIoUThreshold
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Tracker{
		iouThreshold: iouThreshold,
		maxAge:       maxAge,
		nextID:       1,
	}
}

// Update associates detections with existing tracks, spawns tracks for the
// leftovers and evicts tracks that went unmatched for maxAge updates.
func (t *Tracker) Update(dets []models.Detection) []Track {
	used := make([]bool, len(dets))

	for i := range t.tracks {
		track := &t.tracks[i]
		best, bestIoU := -1, 0.0
		for j, d := range dets {
			if used[j] {
				continue
			}
			if iou := geometry.IoU(track.Rect, d.Rect); iou > bestIoU {
				best, bestIoU = j, iou
			}
		}

		if best >= 0 && bestIoU >= t.iouThreshold {
			track.Rect = dets[best].Rect
			track.Score = dets[best].Score
			track.ClassID = dets[best].ClassID
			track.Age = 0
			used[best] = true
		} else {
			track.Age++
		}
	}

	for j, d := range dets {
		if used[j] {
			continue
		}
		t.tracks = append(t.tracks, Track{
			ID:      t.nextID,
			ClassID: d.ClassID,
			Rect:    d.Rect,
			Score:   d.Score,
		})
		t.nextID++
	}

	alive := t.tracks[:0]
	for _, track := range t.tracks {
		if track.Age < t.maxAge {
			alive = append(alive, track)
		}
	}
	t.tracks = alive

	return t.Predict()
}

// Predict returns a copy of the current tracks without changing them.
func (t *Tracker) Predict() []Track {
	out := make([]Track, len(t.tracks))
	copy(out, t.tracks)
	return out
}

// Reset drops every track and restarts ids at 1.
func (t *Tracker) Reset() {
	t.tracks = nil
	t.nextID = 1
}

// Len returns the number of live tracks.
func (t *Tracker) Len() int { return len(t.tracks) }
