package telemetry

import (
	"math"

	"github.com/banshee-data/pothole.report/internal/monitoring"
)

// Derivation limits.
const (
	FallbackDt      = 0.06  // seconds, used when the real dt is unusable
	MinDt           = 0.05  // seconds
	MaxDt           = 1.0   // seconds
	RestSpeed       = 5.0   // |speed| below this counts as stationary
	MaxAcceleration = 800.0 // units/s
	MaxShock        = 2000.0
)

// Derived holds the kinematic signals computed for one sample.
type Derived struct {
	Acceleration float64
	Shock        float64
	// Dt is the interval used for the acceleration estimate, in seconds.
	Dt float64
	// DtFallback is set when Dt had to be replaced by FallbackDt even
	// though a previous sample existed.
	DtFallback bool
}

// Derive computes acceleration and shock for sample given the previous one
// (nil when there is no history). It is pure apart from a debug log line
// for timestamp anomalies.
func Derive(sample Sample, previous *Sample) Derived {
	var d Derived

	if sample.Acceleration != nil {
		d.Acceleration = finiteOrZero(*sample.Acceleration)
		d.Dt = FallbackDt
	} else {
		d.Dt = FallbackDt
		prevSpeed := 0.0
		if previous != nil {
			prevSpeed = previous.Speed
			dt := float64(sample.Timestamp-previous.Timestamp) / 1000
			if dt <= 0 || dt < MinDt || dt > MaxDt {
				d.DtFallback = true
				monitoring.Debugf("[Derive] dt %.3fs outside [%.2f, %.2f], using %.2fs", dt, MinDt, MaxDt, FallbackDt)
			} else {
				d.Dt = dt
			}
		}

		accel := (sample.Speed - prevSpeed) / d.Dt
		if math.Abs(sample.Speed) < RestSpeed && math.Abs(prevSpeed) < RestSpeed {
			accel = 0
		}
		d.Acceleration = clamp(accel, -MaxAcceleration, MaxAcceleration)
	}

	if sample.Shock != nil {
		d.Shock = finiteOrZero(*sample.Shock)
	} else {
		shock := math.Abs(d.Acceleration) * float64(sample.Severity+1)
		if math.Abs(sample.Speed) < RestSpeed && sample.Severity <= 0 {
			shock = 0
		}
		d.Shock = shock
	}
	// explicit upstream values are held to the same range, after an explicit
	// acceleration has fed the shock unclamped
	d.Acceleration = clamp(d.Acceleration, -MaxAcceleration, MaxAcceleration)
	d.Shock = clamp(d.Shock, 0, MaxShock)

	return d
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
