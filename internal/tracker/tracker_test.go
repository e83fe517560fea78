package tracker

import (
	"testing"

	"kioskhelper/internal/geometry"
	"kioskhelper/internal/models"
)

func box(l, t, r, b, score float64) models.Detection {
	return models.Detection{Score: score, Rect: geometry.Rect{Left: l, Top: t, Right: r, Bottom: b}}
}

// ========================================
// Identity
// ========================================

func TestTracker_StableIDWhileMovingSlowly(t *testing.T) {
	tr := New(DefaultIoUThreshold, DefaultMaxAge)

	var id int
	for frame := 0; frame < 20; frame++ {
		x := float64(frame * 3)
		tracks := tr.Update([]models.Detection{box(100+x, 100, 200+x, 160, 0.8)})
		if len(tracks) != 1 {
			t.Fatalf("frame %d: expected 1 track, got %d", frame, len(tracks))
		}
		if frame == 0 {
			id = tracks[0].ID
		}
		if tracks[0].ID != id {
			t.Fatalf("frame %d: id changed from %d to %d", frame, id, tracks[0].ID)
		}
		if tracks[0].Age != 0 {
			t.Errorf("frame %d: matched track should have age 0, got %d", frame, tracks[0].Age)
		}
	}
}

func TestTracker_NewIDsAreMonotonic(t *testing.T) {
	tr := New(DefaultIoUThreshold, DefaultMaxAge)

	first := tr.Update([]models.Detection{box(0, 0, 50, 50, 0.9), box(100, 0, 150, 50, 0.9)})
	if first[0].ID != 1 || first[1].ID != 2 {
		t.Fatalf("expected ids 1,2, got %d,%d", first[0].ID, first[1].ID)
	}

	// A far away detection spawns id 3 while both old tracks age.
	second := tr.Update([]models.Detection{box(500, 500, 550, 550, 0.9)})
	if len(second) != 3 {
		t.Fatalf("expected 3 tracks, got %d", len(second))
	}
	if second[2].ID != 3 {
		t.Errorf("expected new id 3, got %d", second[2].ID)
	}
	if second[0].Age != 1 || second[1].Age != 1 {
		t.Errorf("unmatched tracks should age to 1, got %d and %d", second[0].Age, second[1].Age)
	}
}

func TestTracker_GreedyPicksBestIoU(t *testing.T) {
	tr := New(DefaultIoUThreshold, DefaultMaxAge)
	tr.Update([]models.Detection{box(100, 100, 200, 200, 0.9)})

	tracks := tr.Update([]models.Detection{
		box(140, 100, 240, 200, 0.5), // IoU 0.43
		box(105, 100, 205, 200, 0.7), // IoU 0.90
	})

	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].ID != 1 || tracks[0].Rect.Left != 105 {
		t.Errorf("track 1 should take the best overlap, got %+v", tracks[0])
	}
	if tracks[1].ID != 2 || tracks[1].Rect.Left != 140 {
		t.Errorf("leftover detection should become track 2, got %+v", tracks[1])
	}
}

func TestTracker_BelowThresholdIsNotMatched(t *testing.T) {
	tr := New(DefaultIoUThreshold, DefaultMaxAge)
	tr.Update([]models.Detection{box(0, 0, 100, 100, 0.9)})

	// IoU = 2500 / 17500 = 0.14
	tracks := tr.Update([]models.Detection{box(50, 50, 150, 150, 0.9)})
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].Age != 1 {
		t.Errorf("original track should age, got age %d", tracks[0].Age)
	}
}

func TestTracker_UnsetThresholdUsesDefault(t *testing.T) {
	for _, threshold := range []float64{0, -1} {
		tr := New(threshold, 0)
		tr.Update([]models.Detection{box(0, 0, 100, 100, 0.9)})

		// IoU = 0.14, below the default threshold
		tracks := tr.Update([]models.Detection{box(50, 50, 150, 150, 0.9)})
		if len(tracks) != 2 {
			t.Errorf("threshold %v: expected 2 tracks, got %d", threshold, len(tracks))
		}
	}
}

// ========================================
// Aging and eviction
// ========================================

func TestTracker_EvictsAfterMaxAge(t *testing.T) {
	tr := New(DefaultIoUThreshold, DefaultMaxAge)
	tr.Update([]models.Detection{box(0, 0, 100, 100, 0.9)})

	for i := 1; i < DefaultMaxAge; i++ {
		tracks := tr.Update(nil)
		if len(tracks) != 1 {
			t.Fatalf("update %d: track evicted too early", i)
		}
		if tracks[0].Age != i {
			t.Errorf("update %d: age = %d", i, tracks[0].Age)
		}
	}

	if tracks := tr.Update(nil); len(tracks) != 0 {
		t.Errorf("track should be evicted after %d empty updates, still have %d", DefaultMaxAge, len(tracks))
	}
}

func TestTracker_MatchResetsAge(t *testing.T) {
	tr := New(DefaultIoUThreshold, DefaultMaxAge)
	d := box(0, 0, 100, 100, 0.9)
	tr.Update([]models.Detection{d})

	for i := 0; i < 10; i++ {
		tr.Update(nil)
	}
	tracks := tr.Update([]models.Detection{d})
	if tracks[0].Age != 0 || tracks[0].ID != 1 {
		t.Errorf("expected track 1 with age 0, got %+v", tracks[0])
	}
}

// ========================================
// Predict / Reset
// ========================================

func TestTracker_PredictDoesNotMutate(t *testing.T) {
	tr := New(DefaultIoUThreshold, DefaultMaxAge)
	tr.Update([]models.Detection{box(0, 0, 100, 100, 0.9)})

	p := tr.Predict()
	p[0].Age = 99
	p[0].Rect.Left = 500

	again := tr.Predict()
	if again[0].Age != 0 || again[0].Rect.Left != 0 {
		t.Errorf("Predict must return a copy, got %+v", again[0])
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := New(DefaultIoUThreshold, DefaultMaxAge)
	tr.Update([]models.Detection{box(0, 0, 100, 100, 0.9), box(200, 0, 300, 100, 0.9)})

	tr.Reset()
	if tr.Len() != 0 {
		t.Fatalf("expected no tracks after Reset, got %d", tr.Len())
	}

	tracks := tr.Update([]models.Detection{box(0, 0, 100, 100, 0.9)})
	if tracks[0].ID != 1 {
		t.Errorf("ids should restart at 1 after Reset, got %d", tracks[0].ID)
	}
}
