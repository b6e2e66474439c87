package dashboard

import (
	"time"

	"github.com/banshee-data/pothole.report/internal/telemetry"
)

// Marker timings. The ring pulses briefly, the dot dims a little later and
// stays until the marker expires.
const (
	markerRingLife = 1000 * time.Millisecond
	markerDimAfter = 1200 * time.Millisecond
	markerLaneY    = 102
)

// Marker is a hazard location dropped on the road scene.
type Marker struct {
	ID        uint64    `json:"id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Severity  int       `json:"severity"`
	Color     string    `json:"color"`
	Created   time.Time `json:"created"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newMarker(id uint64, x float64, sev int, now time.Time, ttl time.Duration) Marker {
	return Marker{
		ID:        id,
		X:         x,
		Y:         markerLaneY,
		Severity:  sev,
		Color:     telemetry.SeverityColor(sev),
		Created:   now,
		ExpiresAt: now.Add(ttl),
	}
}

// RingVisible reports whether the pulse ring is still shown at now.
func (m Marker) RingVisible(now time.Time) bool {
	return now.Sub(m.Created) < markerRingLife
}

// Dimmed reports whether the dot has faded to its resting opacity.
func (m Marker) Dimmed(now time.Time) bool {
	return now.Sub(m.Created) >= markerDimAfter
}

// Expired reports whether the marker should be swept at now.
func (m Marker) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// Flash is the threshold-gated highlight on the shock gauge.
type Flash struct {
	Strength float64
	Until    time.Time
}

// Active reports whether the flash is still showing at now.
func (f Flash) Active(now time.Time) bool {
	return !f.Until.IsZero() && !now.After(f.Until)
}

// sweepMarkers drops expired markers in place, keeping order.
func sweepMarkers(markers []Marker, now time.Time) []Marker {
	kept := markers[:0]
	for _, m := range markers {
		if !m.Expired(now) {
			kept = append(kept, m)
		}
	}
	for i := len(kept); i < len(markers); i++ {
		markers[i] = Marker{}
	}
	return kept
}
