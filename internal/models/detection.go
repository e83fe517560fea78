package models

import "kioskhelper/internal/geometry"

// Detection is one candidate box produced by the detector. Right after
// decoding Rect is normalized to the model input; after postprocessing it is
// in source-frame pixels.
type Detection struct {
	ClassID int           `json:"class_id"`
	Score   float64       `json:"score"`
	Rect    geometry.Rect `json:"rect"`
}
