package telemetry

import (
	"math"
	"time"
)

// ReactionSpeedDelta is the absolute speed change that counts as the
// driver's corrective reaction to a hazard.
const ReactionSpeedDelta = 15.0

// HazardState carries what the detector remembers between samples.
type HazardState struct {
	LastSeverity  int
	LastSpeed     float64
	LastTimestamp int64

	// HazardOnset is non-nil only while a reaction stopwatch is running.
	HazardOnset *time.Time
	// LastReactionMs is the most recent measured reaction, nil until one exists.
	LastReactionMs *float64
}

// Detection is the outcome of Detect for one sample.
type Detection struct {
	HazardEvent bool
	// Onset is set when this sample started the reaction stopwatch.
	Onset bool
	// ReactionMs is non-nil when this sample completed a measurement.
	ReactionMs *float64
}

// Detect classifies sample as a hazard event and measures reaction time.
// The upstream pothole flag always wins; otherwise a smooth to non-zero
// severity edge is a hazard. now is the local arrival instant.
func (s *HazardState) Detect(sample Sample, derived Derived, now time.Time) Detection {
	var det Detection

	edge := sample.Severity > 0 && s.LastSeverity == SeveritySmooth
	det.HazardEvent = sample.PotholeEvent || edge

	if edge {
		onset := now
		s.HazardOnset = &onset
		det.Onset = true
	}

	if s.HazardOnset != nil && math.Abs(sample.Speed-s.LastSpeed) >= ReactionSpeedDelta {
		ms := float64(now.Sub(*s.HazardOnset)) / float64(time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		s.HazardOnset = nil
		s.LastReactionMs = &ms
		det.ReactionMs = &ms
	}

	s.LastSeverity = sample.Severity
	s.LastSpeed = sample.Speed
	s.LastTimestamp = sample.Timestamp
	return det
}
