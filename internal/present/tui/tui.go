// Package tui draws the dashboard in a terminal with tview.
package tui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/banshee-data/pothole.report/internal/dashboard"
	"github.com/banshee-data/pothole.report/internal/monitoring"
)

// View is a Presenter that renders frames into a tview application. Frames
// arriving faster than the terminal redraws are coalesced.
type View struct {
	app *tview.Application

	layout  *tview.Flex
	header  *tview.TextView
	gauges  *tview.TextView
	charts  *tview.TextView
	road    *tview.TextView
	summary *tview.TextView
	footer  *tview.TextView

	onResume func()
	metrics  *monitoring.Metrics

	mu      sync.Mutex
	latest  dashboard.Frame
	pending atomic.Bool
	applied atomic.Uint64
}

// NewView builds the layout on app.
func NewView(app *tview.Application) *View {
	v := &View{app: app}
	v.createComponents()
	v.setupInputHandler()
	return v
}

// OnResume sets what the r key does, typically re-subscribing to the feed.
func (v *View) OnResume(fn func()) { v.onResume = fn }

// SetMetrics reports coalesced frames under the "tui" presenter label.
func (v *View) SetMetrics(m *monitoring.Metrics) { v.metrics = m }

func (v *View) createComponents() {
	text := func(title string) *tview.TextView {
		tv := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
		if title != "" {
			tv.SetBorder(true).SetTitle(" " + title + " ")
		}
		return tv
	}
	v.header = text("")
	v.gauges = text("Telemetry")
	v.charts = text("Last samples")
	v.road = text("Road")
	v.summary = text("Session")
	v.footer = text("")
	v.footer.SetText("[gray]q[-] quit   [gray]r[-] resume feed")

	middle := tview.NewFlex().
		AddItem(v.gauges, 0, 1, false).
		AddItem(v.summary, 0, 1, false)

	v.layout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(v.header, 1, 0, false).
		AddItem(middle, 7, 0, false).
		AddItem(v.charts, 5, 0, false).
		AddItem(v.road, 5, 0, false).
		AddItem(v.footer, 1, 0, false)
	v.app.SetRoot(v.layout, true)
}

func (v *View) setupInputHandler() {
	v.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			v.app.Stop()
			return nil
		case tcell.KeyRune:
			switch event.Rune() {
			case 'q':
				v.app.Stop()
				return nil
			case 'r':
				if v.onResume != nil {
					go v.onResume()
				}
				return nil
			}
		}
		return event
	})
}

// Present keeps frame as the latest and schedules a redraw if none is
// pending.
func (v *View) Present(frame dashboard.Frame) {
	v.mu.Lock()
	v.latest = frame
	v.mu.Unlock()
	if !v.pending.CompareAndSwap(false, true) {
		if v.metrics != nil {
			v.metrics.FramesDropped.WithLabelValues("tui").Inc()
		}
		return
	}
	go v.app.QueueUpdateDraw(func() {
		v.pending.Store(false)
		v.mu.Lock()
		frame := v.latest
		v.mu.Unlock()
		v.apply(frame)
	})
}

// Run runs the application until ctx is done or the user quits.
func (v *View) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		v.app.Stop()
	}()
	return v.app.Run()
}

// apply writes frame into the widgets. It must run on the draw goroutine.
func (v *View) apply(f dashboard.Frame) {
	width := 60
	if _, _, w, _ := v.road.GetInnerRect(); w > 0 {
		width = w
	}
	v.header.SetText(Header(f))
	v.gauges.SetText(Gauges(f))
	v.summary.SetText(Summary(f))
	v.charts.SetText(Charts(f, width-10))
	v.road.SetText(Road(f, width))
	v.applied.Add(1)
}

// Header is the status dot, status text and severity pill.
func Header(f dashboard.Frame) string {
	flash := ""
	if f.Flash {
		flash = "  [white:red] JOLT [-:-]"
	}
	return fmt.Sprintf("[%s]●[-] %s   [black:%s] %s [-:-]%s",
		f.Status.Color, tview.Escape(f.Status.Text), f.Severity.Color, f.Severity.Pill, flash)
}

// Gauges lists the numeric readouts.
func Gauges(f dashboard.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Speed         %s\n", f.Speed.Text)
	fmt.Fprintf(&b, "Distance      %s\n", f.Distance.Text)
	fmt.Fprintf(&b, "Acceleration  %s\n", f.Acceleration.Text)
	fmt.Fprintf(&b, "Shock         %s\n", f.Shock.Text)
	fmt.Fprintf(&b, "Road score    [%s]%s[-]", f.ScoreColor, f.RoadScore.Text)
	return b.String()
}

// Summary lists the session totals.
func Summary(f dashboard.Frame) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Severity      [%s]%s[-]\n", f.Severity.Color, f.Severity.Text)
	fmt.Fprintf(&b, "Potholes      %d\n", f.Stats.PotholeCount)
	fmt.Fprintf(&b, "Peak shock    %s\n", f.PeakShockText)
	fmt.Fprintf(&b, "Reaction      %s\n", f.ReactionText)
	fmt.Fprintf(&b, "Last sample   %s", f.LastText)
	return b.String()
}

// Charts draws one labelled sparkline row per rolling buffer.
func Charts(f dashboard.Frame, width int) string {
	rows := make([]string, 0, len(dashboard.ChartNames))
	for _, name := range dashboard.ChartNames {
		values, _ := f.Chart(name)
		rows = append(rows, fmt.Sprintf("%-9s %s", name, Sparkline(values, width)))
	}
	return strings.Join(rows, "\n")
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders the newest width values as block characters scaled to
// the range of what is shown.
func Sparkline(values []float64, width int) string {
	if width <= 0 || len(values) == 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}
	norm := dashboard.Normalize(values)
	out := make([]rune, len(norm))
	for i, n := range norm {
		idx := int(math.Round(n * float64(len(sparkRunes)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkRunes) {
			idx = len(sparkRunes) - 1
		}
		out[i] = sparkRunes[idx]
	}
	return string(out)
}

// Road draws the lane: hazard markers above, the two vehicles on the lane
// and the lane edge below. Positions are scaled from the track width to
// width columns.
func Road(f dashboard.Frame, width int) string {
	if width < 8 {
		width = 8
	}
	track := f.Road.TrackWidth
	if track <= 0 {
		track = dashboard.DefaultRoadConfig().TrackWidth
	}
	col := func(x float64) int {
		c := int(x / track * float64(width))
		if c < 0 {
			return 0
		}
		if c >= width {
			return width - 1
		}
		return c
	}

	markers := []rune(strings.Repeat(" ", width))
	markerColor := make(map[int]string)
	for _, m := range f.Markers {
		c := col(m.X)
		markers[c] = '▼'
		if m.Dimmed {
			markerColor[c] = "gray"
		} else {
			markerColor[c] = m.Color
		}
	}

	lane := []rune(strings.Repeat("·", width))
	laneColor := make(map[int]string)
	rear, front := col(f.Road.RearX), col(f.Road.FrontX)
	lane[rear] = 'R'
	if f.Road.Braking {
		laneColor[rear] = "red"
	} else {
		laneColor[rear] = "white"
	}
	lane[front] = 'F'
	laneColor[front] = f.Severity.Color
	if f.Severity.Color == "" {
		laneColor[front] = "white"
	}

	return colorize(markers, markerColor) + "\n" + colorize(lane, laneColor) + "\n" + strings.Repeat("─", width)
}

func colorize(runes []rune, colors map[int]string) string {
	var b strings.Builder
	for i, r := range runes {
		if c, ok := colors[i]; ok {
			fmt.Fprintf(&b, "[%s]%c[-]", c, r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
