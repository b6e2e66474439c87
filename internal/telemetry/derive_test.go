package telemetry

import (
	"math"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestDerive_NoHistoryUsesFallbackDt(t *testing.T) {
	d := Derive(Sample{Speed: 30, Severity: 1, Timestamp: 1000}, nil)

	if d.Dt != FallbackDt {
		t.Errorf("Dt = %v, want %v", d.Dt, FallbackDt)
	}
	if d.DtFallback {
		t.Error("DtFallback should only flag anomalies with history present")
	}
	want := 30 / FallbackDt
	if math.Abs(d.Acceleration-want) > 1e-9 {
		t.Errorf("Acceleration = %v, want %v", d.Acceleration, want)
	}
	if math.IsInf(d.Acceleration, 0) || math.IsNaN(d.Acceleration) {
		t.Error("acceleration must be finite without history")
	}
}

func TestDerive_DtGuard(t *testing.T) {
	tests := []struct {
		name         string
		deltaMs      int64
		wantDt       float64
		wantFallback bool
	}{
		{"negative", -20, FallbackDt, true},
		{"zero", 0, FallbackDt, true},
		{"too small", 40, FallbackDt, true},
		{"lower bound", 50, 0.05, false},
		{"typical", 100, 0.1, false},
		{"upper bound", 1000, 1.0, false},
		{"too large", 1500, FallbackDt, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := Sample{Speed: 20, Timestamp: 10_000}
			cur := Sample{Speed: 30, Timestamp: 10_000 + tt.deltaMs}
			d := Derive(cur, &prev)
			if math.Abs(d.Dt-tt.wantDt) > 1e-12 {
				t.Errorf("Dt = %v, want %v", d.Dt, tt.wantDt)
			}
			if d.DtFallback != tt.wantFallback {
				t.Errorf("DtFallback = %v, want %v", d.DtFallback, tt.wantFallback)
			}
			want := clamp(10/tt.wantDt, -MaxAcceleration, MaxAcceleration)
			if math.Abs(d.Acceleration-want) > 1e-9 {
				t.Errorf("Acceleration = %v, want %v", d.Acceleration, want)
			}
		})
	}
}

func TestDerive_RestDeadzone(t *testing.T) {
	prev := Sample{Speed: 4, Timestamp: 0}
	d := Derive(Sample{Speed: -4, Severity: 2, Timestamp: 100}, &prev)
	if d.Acceleration != 0 {
		t.Errorf("Acceleration = %v, want 0 inside the rest deadzone", d.Acceleration)
	}
	if d.Shock != 0 {
		t.Errorf("Shock = %v, want 0 when acceleration is 0", d.Shock)
	}
}

func TestDerive_Clamps(t *testing.T) {
	prev := Sample{Speed: 0, Timestamp: 0}
	d := Derive(Sample{Speed: 255, Severity: 3, Timestamp: 60}, &prev)
	if d.Acceleration != MaxAcceleration {
		t.Errorf("Acceleration = %v, want clamp %v", d.Acceleration, MaxAcceleration)
	}
	if d.Shock != MaxShock {
		t.Errorf("Shock = %v, want cap %v", d.Shock, MaxShock)
	}

	d = Derive(Sample{Speed: 0, Severity: 3, Timestamp: 60}, &Sample{Speed: 255})
	if d.Acceleration != -MaxAcceleration {
		t.Errorf("Acceleration = %v, want clamp %v", d.Acceleration, -MaxAcceleration)
	}
	if d.Shock < 0 || d.Shock > MaxShock {
		t.Errorf("Shock = %v out of range", d.Shock)
	}
}

func TestDerive_ShockAtRest(t *testing.T) {
	prev := Sample{Speed: 40, Timestamp: 0}

	// stationary and smooth forces zero shock even with a large deceleration
	d := Derive(Sample{Speed: 2, Severity: 0, Timestamp: 100}, &prev)
	if d.Shock != 0 {
		t.Errorf("Shock = %v, want 0 at rest on a smooth road", d.Shock)
	}

	// stationary on a pothole keeps the shock
	d = Derive(Sample{Speed: 2, Severity: 1, Timestamp: 100}, &prev)
	want := math.Abs(d.Acceleration) * 2
	if d.Shock != want {
		t.Errorf("Shock = %v, want %v", d.Shock, want)
	}
}

func TestDerive_ExplicitValues(t *testing.T) {
	prev := Sample{Speed: 100, Timestamp: 0}

	d := Derive(Sample{Speed: 0, Timestamp: 10, Acceleration: ptr(12.5), Shock: ptr(99)}, &prev)
	if d.Acceleration != 12.5 {
		t.Errorf("Acceleration = %v, want explicit 12.5", d.Acceleration)
	}
	if d.Shock != 99 {
		t.Errorf("Shock = %v, want explicit 99", d.Shock)
	}

	d = Derive(Sample{Acceleration: ptr(math.NaN()), Shock: ptr(math.Inf(1))}, nil)
	if d.Acceleration != 0 || d.Shock != 0 {
		t.Errorf("non-finite explicit values should become 0, got %+v", d)
	}

	// explicit acceleration still feeds the computed shock
	d = Derive(Sample{Speed: 50, Severity: 1, Acceleration: ptr(-30)}, nil)
	if d.Shock != 60 {
		t.Errorf("Shock = %v, want 60", d.Shock)
	}

	// an out-of-range explicit acceleration is capped for display only
	d = Derive(Sample{Speed: 50, Acceleration: ptr(1000)}, nil)
	if d.Acceleration != MaxAcceleration {
		t.Errorf("Acceleration = %v, want clamp %v", d.Acceleration, MaxAcceleration)
	}
	if d.Shock != 1000 {
		t.Errorf("Shock = %v, want 1000 from the unclamped explicit value", d.Shock)
	}
}

func TestDerive_BoundsHoldForAnyInput(t *testing.T) {
	speeds := []float64{-500, -5, 0, 3, 4.99, 5, 60, 255, 1e6}
	deltas := []int64{-1000, 0, 1, 49, 50, 999, 1000, 1001, 1e6}
	for _, sp := range speeds {
		for _, dt := range deltas {
			for sev := -1; sev <= 3; sev++ {
				prev := Sample{Speed: -sp, Timestamp: 5000}
				d := Derive(Sample{Speed: sp, Severity: sev, Timestamp: 5000 + dt}, &prev)
				if math.Abs(d.Acceleration) > MaxAcceleration {
					t.Fatalf("|accel| %v > %v for speed=%v dt=%v", d.Acceleration, MaxAcceleration, sp, dt)
				}
				if d.Shock < 0 || d.Shock > MaxShock {
					t.Fatalf("shock %v out of [0, %v] for speed=%v dt=%v sev=%d", d.Shock, MaxShock, sp, dt, sev)
				}
			}
		}
	}
}
