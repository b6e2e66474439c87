package dashboard

import (
	"math"

	"github.com/banshee-data/pothole.report/internal/telemetry"
)

// SessionStats are the process-wide running maxima. Every field only ever
// grows.
type SessionStats struct {
	PotholeCount uint64  `json:"potholes"`
	PeakShock    float64 `json:"peakShock"`
	MaxSeverity  int     `json:"maxSeverity"`
}

// Observe folds one processed sample into the stats.
func (s *SessionStats) Observe(sample telemetry.Sample, derived telemetry.Derived) {
	if sample.PotholeCount > s.PotholeCount {
		s.PotholeCount = sample.PotholeCount
	}
	s.PeakShock = math.Max(s.PeakShock, derived.Shock)
	if sample.Severity > s.MaxSeverity {
		s.MaxSeverity = sample.Severity
	}
}
