package web

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/pothole.report/internal/dashboard"
)

// chartStyle is the title, unit and line colour for each rolling chart.
var chartStyle = map[string]struct {
	title string
	unit  string
	color color.RGBA
}{
	dashboard.ChartSpeed:    {"Speed", "pwm", color.RGBA{R: 0x38, G: 0xbd, B: 0xf8, A: 0xff}},
	dashboard.ChartDistance: {"Distance", "cm", color.RGBA{R: 0xa7, G: 0x8b, B: 0xfa, A: 0xff}},
	dashboard.ChartShock:    {"Shock", "", color.RGBA{R: 0xf8, G: 0x71, B: 0x71, A: 0xff}},
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// renderChartPage writes an echarts page with one line chart per rolling
// buffer in frame.
func renderChartPage(w io.Writer, frame dashboard.Frame) error {
	page := components.NewPage()
	page.PageTitle = "pothole.report charts"

	for _, name := range dashboard.ChartNames {
		style := chartStyle[name]
		values := frame.Charts[name]

		x := make([]int, len(values))
		data := make([]opts.LineData, len(values))
		for i, v := range values {
			x[i] = i
			data[i] = opts.LineData{Value: v}
		}

		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Theme: "dark", Width: "100%", Height: "260px"}),
			charts.WithTitleOpts(opts.Title{Title: style.title, Subtitle: fmt.Sprintf("last %d samples", len(values))}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
			charts.WithYAxisOpts(opts.YAxis{Name: style.unit, Scale: opts.Bool(true)}),
		)
		line.SetXAxis(x).AddSeries(name, data,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true), ShowSymbol: opts.Bool(false)}),
			charts.WithLineStyleOpts(opts.LineStyle{Color: hexColor(style.color), Width: 2}),
		)
		page.AddCharts(line)
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Chart image size bounds, in pixels.
const (
	defaultPNGWidth  = 480
	defaultPNGHeight = 160
	maxPNGSide       = 2000
)

// renderSparklinePNG draws values as a normalised sparkline the same way
// the dashboard lays it out, scaled to a w by h pixel image.
func renderSparklinePNG(w io.Writer, name string, values []float64, width, height int) error {
	style, ok := chartStyle[name]
	if !ok {
		return fmt.Errorf("unknown chart %q", name)
	}

	p := plot.New()
	p.Title.Text = style.title
	p.Title.TextStyle.Color = color.White
	p.BackgroundColor = color.RGBA{R: 0x0b, G: 0x12, B: 0x20, A: 0xff}
	p.HideAxes()
	p.X.Min, p.X.Max = 0, float64(width)
	p.Y.Min, p.Y.Max = 0, float64(height)

	points := dashboard.Sparkline(values, float64(width), float64(height))
	if len(points) >= 2 {
		xys := make(plotter.XYs, len(points))
		for i, pt := range points {
			// sparkline y grows downward like a canvas
			xys[i] = plotter.XY{X: pt.X, Y: float64(height) - pt.Y}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("failed to build line: %w", err)
		}
		line.Color = style.color
		line.Width = vg.Points(1.5)
		p.Add(line)
	}

	// at 72dpi one point is one pixel
	c := vgimg.NewWith(vgimg.UseWH(vg.Length(width), vg.Length(height)), vgimg.UseDPI(72))
	p.Draw(draw.New(c))
	_, err := vgimg.PngCanvas{Canvas: c}.WriteTo(w)
	return err
}

// chartFromPath extracts "speed" from "/charts/speed.png".
func chartFromPath(path string) (string, bool) {
	name := strings.TrimPrefix(path, "/charts/")
	if !strings.HasSuffix(name, ".png") {
		return "", false
	}
	name = strings.TrimSuffix(name, ".png")
	_, ok := chartStyle[name]
	return name, ok
}
