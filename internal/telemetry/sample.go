// Package telemetry defines the road telemetry sample, its lenient parser,
// and the per-sample signal derivation and hazard detection.
package telemetry

// Severity classes reported by the vehicle controller.
const (
	SeverityCalibrating = -1
	SeveritySmooth      = 0
	SeveritySmall       = 1
	SeverityMedium      = 2
	SeverityDeep        = 3
)

// Sample is one telemetry record as consumed by the dashboard. Acceleration
// and Shock are nil unless the upstream supplied them explicitly.
type Sample struct {
	Distance     float64
	Speed        float64
	Severity     int
	RoadScore    float64
	Timestamp    int64 // ms since the Unix epoch
	PotholeCount uint64
	PotholeEvent bool
	Acceleration *float64
	Shock        *float64
}

// Reading is what the vehicle controller itself reports, before the relay
// stamps pothole counts and a timestamp onto it.
type Reading struct {
	Distance  float64 `json:"distance"`
	Speed     float64 `json:"speed"`
	Severity  int     `json:"severity"`
	RoadScore float64 `json:"roadScore"`
}

// Record is the wire form of a sample as stored in the feed.
type Record struct {
	Distance     float64  `json:"distance"`
	Speed        float64  `json:"speed"`
	Severity     int      `json:"severity"`
	RoadScore    float64  `json:"roadScore"`
	Potholes     uint64   `json:"potholes"`
	PotholeEvent bool     `json:"potholeEvent"`
	Timestamp    int64    `json:"timestamp"`
	Acceleration *float64 `json:"acceleration,omitempty"`
	Shock        *float64 `json:"shock,omitempty"`
}

// Stamp attaches relay bookkeeping to a reading.
func (r Reading) Stamp(potholes uint64, event bool, timestampMs int64) Record {
	return Record{
		Distance:     r.Distance,
		Speed:        r.Speed,
		Severity:     r.Severity,
		RoadScore:    r.RoadScore,
		Potholes:     potholes,
		PotholeEvent: event,
		Timestamp:    timestampMs,
	}
}

// SeverityName returns the display label for a severity class.
func SeverityName(sev int) string {
	switch sev {
	case SeverityCalibrating:
		return "CAL"
	case SeveritySmooth:
		return "SMOOTH"
	case SeveritySmall:
		return "SMALL"
	case SeverityMedium:
		return "MEDIUM"
	default:
		return "DEEP"
	}
}

// SeverityColor returns the palette colour for a severity class.
func SeverityColor(sev int) string {
	switch sev {
	case SeverityCalibrating:
		return "#94a3b8"
	case SeveritySmooth:
		return "#22c55e"
	case SeveritySmall:
		return "#facc15"
	case SeverityMedium:
		return "#fb923c"
	default:
		return "#ef4444"
	}
}

// ScoreColor maps a road score onto the four-tier colour scale.
func ScoreColor(score float64) string {
	switch {
	case score >= 85:
		return "#22c55e"
	case score >= 65:
		return "#facc15"
	case score >= 45:
		return "#fb923c"
	default:
		return "#ef4444"
	}
}
