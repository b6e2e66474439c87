package dashboard

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestControlToRate(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-10, 70},
		{0, 70},
		{127.5, 200},
		{255, 330},
		{400, 330},
		{math.NaN(), 70},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ControlToRate(tt.in), 1e-9, "ControlToRate(%v)", tt.in)
	}
}

func TestRoadSimulator_BrakingTargetIsSlower(t *testing.T) {
	now := time.Unix(0, 0)
	for _, signal := range []float64{0, 50, 120, 200, 255} {
		r := NewRoadSimulator(DefaultRoadConfig())
		r.Command(signal)
		cruise := r.RearTarget(now)

		r.TriggerBrake(now)
		assert.True(t, r.Braking(now))
		braking := r.RearTarget(now)
		assert.Less(t, braking, cruise, "signal %v", signal)

		after := now.Add(DefaultRoadConfig().BrakeDuration)
		assert.False(t, r.Braking(after), "window closes after the brake duration")
		assert.Equal(t, cruise, r.RearTarget(after))
	}
}

func TestRoadSimulator_BrakingSlowsFollower(t *testing.T) {
	now := time.Unix(0, 0)
	cruising := NewRoadSimulator(DefaultRoadConfig())
	braking := NewRoadSimulator(DefaultRoadConfig())
	cruising.Command(200)
	braking.Command(200)
	braking.TriggerBrake(now)

	for i := 0; i < 30; i++ {
		now = now.Add(16 * time.Millisecond)
		cruising.Advance(now, 0.016)
		braking.Advance(now, 0.016)
	}
	assert.Less(t, braking.Kinematics().RearV, cruising.Kinematics().RearV)
}

func TestRoadSimulator_NeverEndsTickOverlapped(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	cfg := DefaultRoadConfig()
	r := NewRoadSimulator(cfg)
	now := time.Unix(0, 0)

	for i := 0; i < 5000; i++ {
		if i%40 == 0 {
			r.Command(rng.Float64() * 300)
		}
		if i%97 == 0 {
			r.TriggerBrake(now)
		}
		dt := rng.Float64() * 0.25
		now = now.Add(time.Duration(dt * float64(time.Second)))
		r.Advance(now, dt)

		k := r.Kinematics()
		if sep := math.Abs(k.FrontX - k.RearX); sep < cfg.MinSeparation {
			t.Fatalf("tick %d: separation %v < %v (front %v rear %v)", i, sep, cfg.MinSeparation, k.FrontX, k.RearX)
		}
	}
}

func TestRoadSimulator_Wrap(t *testing.T) {
	r := NewRoadSimulator(RoadConfig{TrackWidth: 500})
	assert.Equal(t, -100.0, r.wrap(621))
	assert.Equal(t, 620.0, r.wrap(620))
	assert.Equal(t, 580.0, r.wrap(-141))
	assert.Equal(t, -140.0, r.wrap(-140))
}

func TestRoadSimulator_FrontAdvances(t *testing.T) {
	r := NewRoadSimulator(DefaultRoadConfig())
	r.Command(0)
	r.Advance(time.Unix(0, 0), 0.5)
	assert.InDelta(t, 90+35, r.Kinematics().FrontX, 1e-9)
}

func TestRoadSimulator_MarkerX(t *testing.T) {
	r := NewRoadSimulator(DefaultRoadConfig())
	assert.Equal(t, 240.0, r.MarkerX())

	r.k.FrontX = 880
	assert.Equal(t, 870.0, r.MarkerX(), "marker stays on the track")
}
