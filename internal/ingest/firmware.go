package ingest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/banshee-data/pothole.report/internal/monitoring"
	"github.com/banshee-data/pothole.report/internal/telemetry"
	"github.com/banshee-data/pothole.report/internal/timeutil"
)

// Controller constants, matching the vehicle firmware.
const (
	CalibrationPeriod = 2 * time.Second
	CalibrationDelay  = 50 * time.Millisecond
	LoopDelay         = 60 * time.Millisecond

	DistanceAlpha   = 0.85
	CalibrationPWM  = 110
	FastPWM         = 170
	ScoreRecoveryK  = 0.20
	ScoreDropK      = 0.35
	dropoutDistance = 0.1
)

// SeverityFromRaise grades how far the road surface rose above the baseline.
func SeverityFromRaise(heightCm float64) int {
	switch {
	case heightCm < 0.5:
		return 0
	case heightCm < 1.5:
		return 1
	case heightCm < 3.0:
		return 2
	default:
		return 3
	}
}

// PWMForSeverity is the motor duty the controller drives at for a sensed
// severity.
func PWMForSeverity(sev int) int {
	switch sev {
	case 1:
		return 140
	case 2:
		return 110
	case 3:
		return 70
	default:
		return FastPWM
	}
}

// SeverityFromPWM is the severity the controller reports, graded by how far
// below the fast duty it is running.
func SeverityFromPWM(pwm int) int {
	delta := FastPWM - pwm
	switch {
	case delta <= 5:
		return 0
	case delta <= 30:
		return 1
	case delta <= 60:
		return 2
	default:
		return 3
	}
}

// FirmwareOutput is what one controller loop iteration produced.
type FirmwareOutput struct {
	Lines   []string
	Reading *telemetry.Reading // set when the controller would upload
	Delay   time.Duration      // how long the controller sleeps afterwards
}

// Firmware reproduces the vehicle controller's loop: filter the ultrasonic
// distance, learn a baseline, derive a drive duty from the raised height and
// report severity and road score only when they change.
type Firmware struct {
	filtered float64

	calibStart int64
	calibSum   float64
	calibCount int
	baseline   float64
	ready      bool

	score     float64
	lastSev   int
	lastScore int
}

// NewFirmware returns a controller that has not calibrated yet.
func NewFirmware() *Firmware {
	return &Firmware{calibStart: -1, score: 100, lastSev: -1, lastScore: -1}
}

// Baseline returns the learned baseline distance and whether calibration
// has finished.
func (f *Firmware) Baseline() (float64, bool) { return f.baseline, f.ready }

// Step runs one loop iteration with a raw sensor distance in cm taken at
// nowMs (controller uptime).
func (f *Firmware) Step(rawCm float64, nowMs int64) FirmwareOutput {
	d := rawCm
	if d <= dropoutDistance {
		d = 0
		if f.filtered > 0 {
			d = f.filtered
		}
	}
	if f.filtered == 0 {
		f.filtered = d
	}
	f.filtered = (1-DistanceAlpha)*f.filtered + DistanceAlpha*d

	if !f.ready {
		if f.calibStart < 0 {
			f.calibStart = nowMs
		}
		f.calibSum += f.filtered
		f.calibCount++
		if nowMs-f.calibStart >= CalibrationPeriod.Milliseconds() {
			f.baseline = f.calibSum / float64(f.calibCount)
			f.ready = true
		}
		return FirmwareOutput{
			Lines: []string{fmt.Sprintf("%.2f,%d,%d,%d", f.filtered, CalibrationPWM, telemetry.SeverityCalibrating, 100)},
			Delay: CalibrationDelay,
		}
	}

	height := math.Max(0, f.baseline-f.filtered)
	pwm := PWMForSeverity(SeverityFromRaise(height))
	sev := SeverityFromPWM(pwm)
	score := f.updateScore(pwm)

	out := FirmwareOutput{Delay: LoopDelay}
	if sev != f.lastSev || score != f.lastScore {
		out.Lines = append(out.Lines, fmt.Sprintf("Severity changed to: %d | RoadScore: %d", sev, score))
		out.Reading = &telemetry.Reading{
			Distance:  math.Round(d*100) / 100,
			Speed:     float64(pwm),
			Severity:  sev,
			RoadScore: float64(score),
		}
		f.lastSev = sev
		f.lastScore = score
	}
	return out
}

// updateScore eases the continuous score toward the duty-derived target,
// dropping faster than it recovers, and returns it rounded.
func (f *Firmware) updateScore(pwm int) int {
	norm := math.Min(1, math.Max(0, float64(pwm)/FastPWM))
	target := 100 * norm
	k := ScoreDropK
	if target > f.score {
		k = ScoreRecoveryK
	}
	f.score = (1-k)*f.score + k*target
	f.score = math.Min(100, math.Max(0, f.score))
	return int(f.score + 0.5)
}

// RoadProfile gives the sensor distance in cm at a point in the run.
type RoadProfile func(elapsed time.Duration) float64

// BumpProfile is a flat road at baseCm with a raised patch every period,
// cycling through increasingly tall bumps. The first period is left flat so
// calibration sees clean road.
func BumpProfile(baseCm float64, period, width time.Duration, heightsCm ...float64) RoadProfile {
	if len(heightsCm) == 0 {
		heightsCm = []float64{1, 2, 3.5}
	}
	return func(elapsed time.Duration) float64 {
		if elapsed < period {
			return baseCm
		}
		n := int(elapsed / period)
		if elapsed%period >= width {
			return baseCm
		}
		return baseCm - heightsCm[(n-1)%len(heightsCm)]
	}
}

// DefaultProfile is the profile the simulator uses when none is given.
var DefaultProfile = BumpProfile(20, 4*time.Second, 600*time.Millisecond)

// Simulator drives a Firmware from a road profile in (simulated) real time.
type Simulator struct {
	Firmware *Firmware
	Profile  RoadProfile
	// Noise is the standard deviation of sensor noise in cm.
	Noise float64
	// Dropout is the probability of a zero (timed out) echo.
	Dropout float64
	// OnLine receives every console line the controller prints.
	OnLine func(string)

	clock timeutil.Clock
	rng   *rand.Rand
	c     counters
}

// NewSimulator returns a simulator over profile. A nil clock uses real time.
func NewSimulator(profile RoadProfile, clock timeutil.Clock, seed int64) *Simulator {
	if profile == nil {
		profile = DefaultProfile
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Simulator{
		Firmware: NewFirmware(),
		Profile:  profile,
		clock:    clock,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// sense samples the profile with noise and dropouts applied.
func (s *Simulator) sense(elapsed time.Duration) float64 {
	if s.Dropout > 0 && s.rng.Float64() < s.Dropout {
		return 0
	}
	d := s.Profile(elapsed)
	if s.Noise > 0 {
		d += s.rng.NormFloat64() * s.Noise
	}
	return d
}

// StepAt runs one controller iteration at elapsed uptime and forwards any
// upload to ing.
func (s *Simulator) StepAt(elapsed time.Duration, ing Ingester) FirmwareOutput {
	out := s.Firmware.Step(s.sense(elapsed), elapsed.Milliseconds())
	for _, line := range out.Lines {
		if s.OnLine != nil {
			s.OnLine(line)
		}
	}
	if out.Reading != nil && ing != nil {
		if _, err := ing.Ingest(*out.Reading); err != nil {
			s.c.failed.Add(1)
			monitoring.Logf("[Firmware] upload failed: %v", err)
		} else {
			s.c.accepted.Add(1)
		}
	}
	return out
}

// Run loops until ctx is done, sleeping the controller's delay between
// iterations.
func (s *Simulator) Run(ctx context.Context, ing Ingester) error {
	start := s.clock.Now()
	monitoring.Logf("[Firmware] simulated controller running")
	for {
		out := s.StepAt(s.clock.Since(start), ing)
		if !sleepCtx(ctx, out.Delay) {
			return ctx.Err()
		}
	}
}

// Stats counts uploads.
func (s *Simulator) Stats() Stats { return s.c.snapshot() }
