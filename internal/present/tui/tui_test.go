package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pothole.report/internal/dashboard"
)

func testFrame() dashboard.Frame {
	road := dashboard.RoadView{TrackWidth: 900, FrontGlow: "rgba(251,146,60,0.55)"}
	road.FrontX, road.RearX = 450, 90
	return dashboard.Frame{
		Seq:          4,
		Status:       dashboard.StatusView{State: "live", Text: "Live", Color: "#22c55e"},
		Speed:        dashboard.Gauge{Value: 142, Text: "142", Ready: true},
		Distance:     dashboard.Gauge{Value: 18.2, Text: "18.20", Ready: true},
		Acceleration: dashboard.Gauge{Value: -150, Text: "-150.00", Ready: true},
		Shock:        dashboard.Gauge{Value: 620, Text: "620.00", Ready: true},
		RoadScore:    dashboard.Gauge{Value: 88, Text: "88", Ready: true},
		ScoreColor:   "#22c55e",
		Severity:     dashboard.SeverityView{Level: 2, Label: "MEDIUM", Text: "MEDIUM (2)", Pill: "SEV MEDIUM", Color: "#fb923c"},
		Stats:        dashboard.SessionStats{PotholeCount: 3, PeakShock: 620, MaxSeverity: 2},
		ReactionText: "120 ms",
		Charts: map[string][]float64{
			dashboard.ChartSpeed: {170, 140, 110, 70},
			dashboard.ChartShock: {5},
		},
		Road: road,
		Markers: []dashboard.MarkerView{
			{Marker: dashboard.Marker{X: 600, Color: "#ef4444"}, Ring: true},
			{Marker: dashboard.Marker{X: 300, Color: "#facc15"}, Dimmed: true},
		},
	}
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", Sparkline(nil, 10))
	assert.Equal(t, "▁█", Sparkline([]float64{0, 10}, 10))
	assert.Equal(t, "▁▁▁", Sparkline([]float64{4, 4, 4}, 10), "flat series sits on the floor")
	// only the newest width values are drawn
	assert.Equal(t, "▁▅█", Sparkline([]float64{100, 0, 5, 10}, 3))
}

func TestCharts(t *testing.T) {
	out := Charts(testFrame(), 20)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "speed     █▆▄▁", lines[0])
	assert.Equal(t, "distance  ", lines[1])
	assert.Equal(t, "shock     ", lines[2], "one point is not a chart")
}

func TestRoad(t *testing.T) {
	out := Road(testFrame(), 30)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)

	assert.Contains(t, lines[0], "[#ef4444]▼[-]")
	assert.Contains(t, lines[0], "[gray]▼[-]")
	assert.True(t, strings.HasPrefix(lines[1], "···[white]R[-]"), lines[1])
	assert.Contains(t, lines[1], "[#fb923c]F[-]")
	assert.Equal(t, strings.Repeat("─", 30), lines[2])

	braking := testFrame()
	braking.Road.Braking = true
	assert.Contains(t, Road(braking, 30), "[red]R[-]")
}

func TestRoad_ClampsOffTrack(t *testing.T) {
	f := testFrame()
	f.Road.FrontX = 5000
	f.Road.RearX = -20
	lane := strings.Split(Road(f, 10), "\n")[1]
	assert.True(t, strings.HasPrefix(lane, "[white]R[-]"))
	assert.True(t, strings.HasSuffix(lane, "[#fb923c]F[-]"))
}

func TestTextBlocks(t *testing.T) {
	f := testFrame()
	assert.Contains(t, Header(f), "SEV MEDIUM")
	assert.NotContains(t, Header(f), "JOLT")
	f.Flash = true
	assert.Contains(t, Header(f), "JOLT")

	g := Gauges(f)
	assert.Contains(t, g, "Speed         142")
	assert.Contains(t, g, "[#22c55e]88[-]")

	s := Summary(f)
	assert.Contains(t, s, "Potholes      3")
	assert.Contains(t, s, "Reaction      120 ms")
}

func screenText(s tcell.SimulationScreen) string {
	cells, w, _ := s.GetContents()
	var b strings.Builder
	for i, c := range cells {
		if len(c.Runes) > 0 {
			b.WriteRune(c.Runes[0])
		} else {
			b.WriteRune(' ')
		}
		if (i+1)%w == 0 {
			b.WriteRune('\n')
		}
	}
	return b.String()
}

func TestView_RendersOnScreen(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	app := tview.NewApplication().SetScreen(screen)
	screen.SetSize(100, 30)
	v := NewView(app)
	resumed := make(chan struct{}, 1)
	v.OnResume(func() { resumed <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Run(ctx) }()

	v.Present(testFrame())
	require.Eventually(t, func() bool { return v.applied.Load() > 0 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return strings.Contains(screenText(screen), "MEDIUM (2)") }, 2*time.Second, 10*time.Millisecond)

	screen.InjectKey(tcell.KeyRune, 'r', tcell.ModNone)
	select {
	case <-resumed:
	case <-time.After(2 * time.Second):
		t.Fatal("r did not resume")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}
