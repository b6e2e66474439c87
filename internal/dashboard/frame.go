package dashboard

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/pothole.report/internal/telemetry"
)

// Placeholder is shown for values that do not exist yet.
const Placeholder = "--"

// Chart names, also used in URLs.
const (
	ChartSpeed    = "speed"
	ChartDistance = "distance"
	ChartShock    = "shock"
)

// ChartNames lists the charts in display order.
var ChartNames = []string{ChartSpeed, ChartDistance, ChartShock}

// Gauge is one numeric readout. Text is already formatted for display.
type Gauge struct {
	Value float64 `json:"value"`
	Text  string  `json:"text"`
	Ready bool    `json:"ready"`
}

// StatusView is the connectivity indicator.
type StatusView struct {
	State string `json:"state"`
	Text  string `json:"text"`
	Color string `json:"color"`
}

// SeverityView is the severity readout and pill.
type SeverityView struct {
	Level int    `json:"level"`
	Label string `json:"label"`
	Text  string `json:"text"`
	Pill  string `json:"pill"`
	Color string `json:"color"`
}

// RoadView is the road scene for one frame.
type RoadView struct {
	VehicleKinematics
	TrackWidth float64 `json:"trackWidth"`
	Braking    bool    `json:"braking"`
	FrontGlow  string  `json:"frontGlow"`
	RearGlow   string  `json:"rearGlow"`
}

// MarkerView is a hazard marker with its animation phase resolved.
type MarkerView struct {
	Marker
	Ring   bool `json:"ring"`
	Dimmed bool `json:"dimmed"`
}

// Frame is an immutable snapshot of everything a presenter draws. Slices are
// copies owned by the frame.
type Frame struct {
	Seq    uint64     `json:"seq"`
	At     time.Time  `json:"at"`
	Status StatusView `json:"status"`

	Speed        Gauge  `json:"speed"`
	Distance     Gauge  `json:"distance"`
	Acceleration Gauge  `json:"acceleration"`
	Shock        Gauge  `json:"shock"`
	RoadScore    Gauge  `json:"roadScore"`
	ScoreColor   string `json:"scoreColor"`

	Severity SeverityView `json:"severity"`

	Stats         SessionStats `json:"stats"`
	PeakShockText string       `json:"peakShockText"`
	ReactionText  string       `json:"reactionText"`
	LastText      string       `json:"lastText"`

	Charts  map[string][]float64 `json:"charts"`
	Road    RoadView             `json:"road"`
	Markers []MarkerView         `json:"markers"`
	Flash   bool                 `json:"flash"`
}

// Chart returns the named chart values and whether the chart has enough
// points to draw.
func (f Frame) Chart(name string) ([]float64, bool) {
	v, ok := f.Charts[name]
	return v, ok && len(v) >= 2
}

func integerGauge(v float64, ok bool) Gauge {
	if !ok {
		return Gauge{Text: Placeholder}
	}
	return Gauge{Value: v, Text: strconv.FormatFloat(math.Round(v), 'f', 0, 64), Ready: true}
}

func decimalGauge(v float64, ok bool) Gauge {
	if !ok {
		return Gauge{Text: Placeholder}
	}
	return Gauge{Value: v, Text: fmt2(v), Ready: true}
}

func fmt2(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	if s == "-0.00" {
		return "0.00"
	}
	return s
}

func severityView(sev int) SeverityView {
	name := telemetry.SeverityName(sev)
	return SeverityView{
		Level: sev,
		Label: name,
		Text:  fmt.Sprintf("%s (%d)", name, sev),
		Pill:  "SEV " + name,
		Color: telemetry.SeverityColor(sev),
	}
}

// hexToRGBA turns "#rrggbb" into a css rgba() string.
func hexToRGBA(hex string, alpha float64) string {
	h := strings.TrimPrefix(hex, "#")
	if len(h) != 6 {
		return hex
	}
	var rgb [3]uint64
	for i := range rgb {
		v, err := strconv.ParseUint(h[i*2:i*2+2], 16, 8)
		if err != nil {
			return hex
		}
		rgb[i] = v
	}
	return fmt.Sprintf("rgba(%d,%d,%d,%s)", rgb[0], rgb[1], rgb[2], strconv.FormatFloat(alpha, 'f', -1, 64))
}

func frontGlow(sev int) string {
	alpha := 0.22
	if sev > 0 {
		alpha = 0.55
	}
	return hexToRGBA(telemetry.SeverityColor(sev), alpha)
}

func rearGlow(braking bool) string {
	if braking {
		return "rgba(239,68,68,0.3)"
	}
	return "rgba(148,163,184,0.16)"
}
