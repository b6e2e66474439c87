package telemetry

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSample_Clean(t *testing.T) {
	payload := []byte(`{"distance":12.5,"speed":140,"severity":2,"roadScore":71.5,
		"potholes":4,"potholeEvent":true,"timestamp":1700000000123}`)

	s, report, err := ParseSample(payload, Defaults{NowMs: 1, PotholeCount: 9})
	require.NoError(t, err)
	assert.True(t, report.Empty(), "unexpected issues: %v", report.Fields())

	want := Sample{
		Distance:     12.5,
		Speed:        140,
		Severity:     2,
		RoadScore:    71.5,
		Timestamp:    1700000000123,
		PotholeCount: 4,
		PotholeEvent: true,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("sample mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSample_Defaults(t *testing.T) {
	s, report, err := ParseSample([]byte(`{"speed":"fast","severity":null}`), Defaults{NowMs: 5555, PotholeCount: 7})
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.Distance)
	assert.Equal(t, 0.0, s.Speed)
	assert.Equal(t, 0, s.Severity)
	assert.Equal(t, 0.0, s.RoadScore)
	assert.Equal(t, int64(5555), s.Timestamp)
	assert.Equal(t, uint64(7), s.PotholeCount, "pothole count keeps the last known value")
	assert.False(t, s.PotholeEvent)
	assert.Nil(t, s.Acceleration)
	assert.Nil(t, s.Shock)

	assert.ElementsMatch(t, []string{"distance", "speed", "roadScore", "severity", "timestamp"}, report.Fields())
	for _, is := range report.Issues {
		if is.Field == "speed" {
			assert.Equal(t, "not numeric", is.Reason)
			assert.Equal(t, "fast", is.Raw)
		}
	}
}

func TestParseSample_Coercion(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, s Sample)
	}{
		{
			name:    "numeric strings",
			payload: `{"speed":" 42.5 ","distance":"3"}`,
			check: func(t *testing.T, s Sample) {
				assert.Equal(t, 42.5, s.Speed)
				assert.Equal(t, 3.0, s.Distance)
			},
		},
		{
			name:    "booleans",
			payload: `{"speed":true,"severity":false}`,
			check: func(t *testing.T, s Sample) {
				assert.Equal(t, 1.0, s.Speed)
				assert.Equal(t, 0, s.Severity)
			},
		},
		{
			name:    "severity clamped",
			payload: `{"severity":9}`,
			check: func(t *testing.T, s Sample) {
				assert.Equal(t, SeverityDeep, s.Severity)
			},
		},
		{
			name:    "negative severity clamped",
			payload: `{"severity":-4}`,
			check: func(t *testing.T, s Sample) {
				assert.Equal(t, SeverityCalibrating, s.Severity)
			},
		},
		{
			name:    "potholeCount alias",
			payload: `{"potholeCount":12}`,
			check: func(t *testing.T, s Sample) {
				assert.Equal(t, uint64(12), s.PotholeCount)
			},
		},
		{
			name:    "event flag strings",
			payload: `{"potholeEvent":"false"}`,
			check: func(t *testing.T, s Sample) {
				assert.False(t, s.PotholeEvent)
			},
		},
		{
			name:    "event flag number",
			payload: `{"potholeEvent":1}`,
			check: func(t *testing.T, s Sample) {
				assert.True(t, s.PotholeEvent)
			},
		},
		{
			name:    "explicit signals",
			payload: `{"acceleration":-12,"shock":"abc"}`,
			check: func(t *testing.T, s Sample) {
				require.NotNil(t, s.Acceleration)
				require.NotNil(t, s.Shock)
				assert.Equal(t, -12.0, *s.Acceleration)
				assert.Equal(t, 0.0, *s.Shock)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, err := ParseSample([]byte(tt.payload), Defaults{NowMs: 1})
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestParseSample_NotTelemetry(t *testing.T) {
	for _, payload := range []string{"", "   ", "null", "[1,2]", "hello", `{"speed":`} {
		_, _, err := ParseSample([]byte(payload), Defaults{})
		if !errors.Is(err, ErrNotTelemetry) {
			t.Errorf("ParseSample(%q) err = %v, want ErrNotTelemetry", payload, err)
		}
	}
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line    string
		want    Reading
		wantErr bool
	}{
		{line: "18.20,150,2,73.5", want: Reading{Distance: 18.2, Speed: 150, Severity: 2, RoadScore: 73.5}},
		{line: " 0.00, 110, -1, 64.7\r\n", want: Reading{Speed: 110, Severity: -1, RoadScore: 64.7}},
		{line: `{"distance":3,"speed":70,"severity":3,"roadScore":41}`, want: Reading{Distance: 3, Speed: 70, Severity: 3, RoadScore: 41}},
		{line: "Severity changed to: 2", wantErr: true},
		{line: "1,2,3", wantErr: true},
		{line: "a,b,c,d", wantErr: true},
		{line: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseLine(tt.line)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrNotTelemetry, "line %q", tt.line)
			continue
		}
		require.NoError(t, err, "line %q", tt.line)
		assert.Equal(t, tt.want, got, "line %q", tt.line)
	}
}

func TestPalette(t *testing.T) {
	labels := map[int]string{-1: "CAL", 0: "SMOOTH", 1: "SMALL", 2: "MEDIUM", 3: "DEEP"}
	seen := map[string]bool{}
	for sev, label := range labels {
		assert.Equal(t, label, SeverityName(sev))
		c := SeverityColor(sev)
		assert.False(t, seen[c], "colour %s reused", c)
		seen[c] = true
	}

	assert.Equal(t, "#22c55e", ScoreColor(85))
	assert.Equal(t, "#facc15", ScoreColor(84.9))
	assert.Equal(t, "#facc15", ScoreColor(65))
	assert.Equal(t, "#fb923c", ScoreColor(45))
	assert.Equal(t, "#ef4444", ScoreColor(44.99))
}

func TestReadingStamp(t *testing.T) {
	r := Reading{Distance: 1, Speed: 2, Severity: 3, RoadScore: 4}
	rec := r.Stamp(5, true, 6)
	assert.Equal(t, Record{Distance: 1, Speed: 2, Severity: 3, RoadScore: 4, Potholes: 5, PotholeEvent: true, Timestamp: 6}, rec)
}
