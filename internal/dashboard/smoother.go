package dashboard

import (
	"math"
	"time"
)

// DefaultApproachFactor is the fraction of the remaining gap a Smoother
// closes on each render tick.
const DefaultApproachFactor = 0.18

// ReferenceTick is the frame interval DefaultApproachFactor was tuned at.
// StepScaled uses it to convert a per-tick factor into a decay rate.
const ReferenceTick = time.Second / 60

// Smoother eases a displayed value toward the latest observed target so that
// irregular sample arrivals still produce continuous motion on screen.
// The zero value is ready to use and holds no value until SetTarget.
type Smoother struct {
	current float64
	target  float64
	seeded  bool
}

// SetTarget records a new destination. The first target also seeds the
// current value so the display does not ease in from zero.
func (s *Smoother) SetTarget(v float64) {
	if !s.seeded {
		s.current = v
		s.seeded = true
	}
	s.target = v
}

// Step moves the current value factor of the way to the target and returns
// it. ok is false until a target has been set.
func (s *Smoother) Step(factor float64) (value float64, ok bool) {
	if !s.seeded {
		return 0, false
	}
	s.current += (s.target - s.current) * factor
	return s.current, true
}

// StepScaled is Step with the factor rescaled for the elapsed time, so the
// perceived easing speed does not depend on the frame rate. A tick of
// ReferenceTick behaves exactly like Step(factor).
func (s *Smoother) StepScaled(factor float64, dt time.Duration) (float64, bool) {
	if dt <= 0 {
		return s.Value()
	}
	scaled := 1 - math.Pow(1-factor, dt.Seconds()/ReferenceTick.Seconds())
	return s.Step(scaled)
}

// Value returns the current value without advancing it.
func (s *Smoother) Value() (float64, bool) {
	return s.current, s.seeded
}

// Target returns the last destination set.
func (s *Smoother) Target() (float64, bool) {
	return s.target, s.seeded
}
