package dashboard

import (
	"math"
	"time"
)

// RoadConfig sizes the road scene.
type RoadConfig struct {
	TrackWidth       float64
	BrakeDuration    time.Duration
	MinSeparation    float64
	SeparationOffset float64
}

// DefaultRoadConfig returns the standard 900-unit scene.
func DefaultRoadConfig() RoadConfig {
	return RoadConfig{
		TrackWidth:       900,
		BrakeDuration:    1400 * time.Millisecond,
		MinSeparation:    65,
		SeparationOffset: 42,
	}
}

// Rate limits for the lead vehicle, in scene units per second.
const (
	MinLeadRate  = 70.0
	LeadRateSpan = 260.0
	MaxControl   = 255.0
)

// Follower tuning.
const (
	brakeRatio     = 0.42
	brakeFloor     = 40.0
	cruiseRatio    = 0.84
	cruiseFloor    = 60.0
	followResponse = 3.0 // per second
)

// Wrap margins relative to the track.
const (
	wrapRightMargin = 120.0
	wrapRightReset  = -100.0
	wrapLeftLimit   = -140.0
	wrapLeftReset   = 80.0
)

// VehicleKinematics is the state of the two vehicles in the road scene.
type VehicleKinematics struct {
	FrontX     float64   `json:"frontX"`
	RearX      float64   `json:"rearX"`
	FrontV     float64   `json:"frontV"`
	RearV      float64   `json:"rearV"`
	BrakeUntil time.Time `json:"brakeUntil"`
}

// ControlToRate maps a 0-255 control signal onto the lead vehicle's rate.
// Zero input still moves at MinLeadRate.
func ControlToRate(signal float64) float64 {
	if math.IsNaN(signal) {
		signal = 0
	}
	clamped := math.Max(0, math.Min(MaxControl, signal))
	return MinLeadRate + clamped/MaxControl*LeadRateSpan
}

// RoadSimulator advances a lead vehicle and a follower across a wrapping
// track. It is a presentation model: the follower brakes visibly on hazards
// and is pushed back whenever it gets too close, nothing more.
type RoadSimulator struct {
	cfg RoadConfig
	k   VehicleKinematics
}

// NewRoadSimulator places the lead just ahead of the follower, both at rest.
func NewRoadSimulator(cfg RoadConfig) *RoadSimulator {
	def := DefaultRoadConfig()
	if cfg.TrackWidth <= 0 {
		cfg.TrackWidth = def.TrackWidth
	}
	if cfg.BrakeDuration <= 0 {
		cfg.BrakeDuration = def.BrakeDuration
	}
	if cfg.MinSeparation <= 0 {
		cfg.MinSeparation = def.MinSeparation
	}
	if cfg.SeparationOffset <= 0 {
		cfg.SeparationOffset = def.SeparationOffset
	}
	return &RoadSimulator{
		cfg: cfg,
		k:   VehicleKinematics{FrontX: 90, RearX: 10},
	}
}

// Config returns the scene configuration in use.
func (r *RoadSimulator) Config() RoadConfig { return r.cfg }

// Command sets the lead vehicle's velocity from a control signal.
func (r *RoadSimulator) Command(signal float64) {
	r.k.FrontV = ControlToRate(signal)
}

// TriggerBrake opens the follower's braking window at now.
func (r *RoadSimulator) TriggerBrake(now time.Time) {
	r.k.BrakeUntil = now.Add(r.cfg.BrakeDuration)
}

// Braking reports whether the braking window is open at now.
func (r *RoadSimulator) Braking(now time.Time) bool {
	return now.Before(r.k.BrakeUntil)
}

// RearTarget is the velocity the follower is easing toward at now.
func (r *RoadSimulator) RearTarget(now time.Time) float64 {
	if r.Braking(now) {
		return math.Max(brakeFloor, r.k.FrontV*brakeRatio)
	}
	return math.Max(cruiseFloor, r.k.FrontV*cruiseRatio)
}

// Advance moves both vehicles by dt seconds and restores the minimum
// separation if the follower ended up too close.
func (r *RoadSimulator) Advance(now time.Time, dt float64) {
	if dt < 0 || math.IsNaN(dt) {
		dt = 0
	}

	r.k.FrontX = r.wrap(r.k.FrontX + r.k.FrontV*dt)

	target := r.RearTarget(now)
	r.k.RearV += (target - r.k.RearV) * math.Min(1, dt*followResponse)
	r.k.RearX = r.wrap(r.k.RearX + r.k.RearV*dt)

	for math.Abs(r.k.FrontX-r.k.RearX) < r.cfg.MinSeparation {
		r.k.RearX -= r.cfg.SeparationOffset
	}
}

func (r *RoadSimulator) wrap(x float64) float64 {
	w := r.cfg.TrackWidth
	if x > w+wrapRightMargin {
		return wrapRightReset
	}
	if x < wrapLeftLimit {
		return w + wrapLeftReset
	}
	return x
}

// Kinematics returns a copy of the vehicle state.
func (r *RoadSimulator) Kinematics() VehicleKinematics { return r.k }

// MarkerX is where a hazard marker is dropped: ahead of the lead vehicle,
// kept inside the track.
func (r *RoadSimulator) MarkerX() float64 {
	return math.Min(r.cfg.TrackWidth-30, r.k.FrontX+150)
}
