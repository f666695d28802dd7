// Package render draws AQI series onto raster or vector charts with go-chart.
// Threshold bands are computed by the aqi package and executed here against
// the chart's canvas box.
package render

import (
	"io"
	"math"

	"github.com/rotisserie/eris"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"aqi-service/aqi"
	"aqi-service/metrics"
)

// Format selects the output encoding.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ContentType returns the HTTP content type for f.
func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (f Format) provider() chart.RendererProvider {
	if f == SVG {
		return chart.SVG
	}
	return chart.PNG
}

// ErrNoData is returned when a series has no points to draw.
var ErrNoData = eris.New("render: series has no points")

var (
	lineColor     = drawing.ColorFromHex("6B7280")
	forecastColor = drawing.ColorFromHex("2563EB")
)

// Chart describes one rendering of a combined series.
type Chart struct {
	Title  string
	Width  int
	Height int
	Series aqi.CombinedSeries
}

// Render writes the chart to w and returns the band commands it executed.
func (c Chart) Render(w io.Writer, format Format) ([]aqi.DrawCommand, error) {
	if len(c.Series.Points) == 0 {
		return nil, ErrNoData
	}

	axisMax := aqi.AxisMax(c.Series.Values())
	var drawn []aqi.DrawCommand

	if err := c.graph(axisMax, &drawn).Render(format.provider(), w); err != nil {
		return nil, eris.Wrap(err, "render: draw chart")
	}
	metrics.RecordBands(len(drawn))
	return drawn, nil
}

// graph builds the go-chart chart. The band series comes first so the fills
// and guide lines sit beneath the data.
func (c Chart) graph(axisMax float64, drawn *[]aqi.DrawCommand) chart.Chart {
	return chart.Chart{
		Title:      c.Title,
		Width:      c.Width,
		Height:     c.Height,
		Background: chart.Style{Padding: chart.Box{Top: 24, Left: 16, Right: 16, Bottom: 12}},
		XAxis: chart.XAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: math.Max(1, float64(len(c.Series.Points)-1))},
			ValueFormatter: dateFormatter(c.Series.Points),
		},
		YAxis: chart.YAxis{
			Name:  "AQI",
			Range: &chart.ContinuousRange{Min: 0, Max: axisMax},
		},
		Series: append([]chart.Series{bandSeries{axisMax: axisMax, drawn: drawn}}, seriesFor(c.Series)...),
	}
}

// bandSeries is a value-less series that executes the threshold bands
type bandSeries struct {
	axisMax float64
	drawn   *[]aqi.DrawCommand
}

func (b bandSeries) GetName() string { return "Thresholds" }
func (b bandSeries) GetYAxis() chart.YAxisType { return chart.YAxisPrimary }
func (b bandSeries) GetStyle() chart.Style { return chart.Style{} }
func (b bandSeries) Validate() error { return nil }

func (b bandSeries) Render(r chart.Renderer, canvasBox chart.Box, _, _ chart.Range, _ chart.Style) {
	cmds := DrawBands(b.axisMax)(r, canvasBox)
	if b.drawn != nil {
		*b.drawn = cmds
	}
}

// DrawBands returns a function that computes threshold bands for a canvas
// box on a 0..axisMax value axis, executes them and returns the commands.
func DrawBands(axisMax float64) func(r chart.Renderer, canvasBox chart.Box) []aqi.DrawCommand {
	return func(r chart.Renderer, canvasBox chart.Box) []aqi.DrawCommand {
		cmds := aqi.RenderBands(aqi.Thresholds(), Geometry(canvasBox, axisMax))
		Execute(r, cmds)
		return cmds
	}
}

// Geometry maps a go-chart canvas box onto plot-space geometry for a value
// axis running from 0 at the bottom to axisMax at the top.
func Geometry(canvasBox chart.Box, axisMax float64) aqi.ChartGeometry {
	plot := aqi.PlotArea{
		Left:   float64(canvasBox.Left),
		Right:  float64(canvasBox.Right),
		Top:    float64(canvasBox.Top),
		Bottom: float64(canvasBox.Bottom),
	}
	return aqi.ChartGeometry{
		Plot:         plot,
		ValueToPixel: aqi.LinearScale(0, axisMax, plot.Bottom, plot.Top),
	}
}

// Execute draws commands onto r in order.
func Execute(r chart.Renderer, cmds []aqi.DrawCommand) {
	for _, cmd := range cmds {
		color := parseColor(cmd.Color).WithAlpha(alpha(cmd.Opacity))

		switch cmd.Kind {
		case aqi.FillRect:
			x0, y0 := round(cmd.X), round(cmd.Y)
			x1, y1 := round(cmd.X+cmd.Width), round(cmd.Y+cmd.Height)

			r.SetFillColor(color)
			r.SetStrokeColor(drawing.ColorTransparent)
			r.SetStrokeWidth(0)
			r.SetStrokeDashArray(nil)
			r.MoveTo(x0, y0)
			r.LineTo(x1, y0)
			r.LineTo(x1, y1)
			r.LineTo(x0, y1)
			r.Close()
			r.Fill()

		case aqi.DashedLine:
			r.SetStrokeColor(color)
			r.SetStrokeWidth(cmd.LineWidth)
			r.SetStrokeDashArray(cmd.Dash)
			r.MoveTo(round(cmd.X1), round(cmd.Y1))
			r.LineTo(round(cmd.X2), round(cmd.Y2))
			r.Stroke()
			r.SetStrokeDashArray(nil)
		}
	}
}

func seriesFor(series aqi.CombinedSeries) []chart.Series {
	points := series.Points
	history := series.History()

	dotColor := func(_, _ chart.Range, index int, _, _ float64) drawing.Color {
		if index < 0 || index >= len(points) {
			return lineColor
		}
		return parseColor(points[index].Color)
	}

	out := make([]chart.Series, 0, 2)
	if len(history) > 0 {
		xs, ys := make([]float64, len(history)), make([]float64, len(history))
		for i, p := range history {
			xs[i], ys[i] = float64(i), p.Value
		}
		out = append(out, chart.ContinuousSeries{
			Name:    "Historical AQI",
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor:      lineColor,
				StrokeWidth:      2,
				DotWidth:         3,
				DotColorProvider: dotColor,
			},
		})
	}

	if series.HasForecast {
		last := len(points) - 1
		xs, ys := []float64{float64(last)}, []float64{points[last].Value}
		if len(history) > 0 {
			xs = []float64{float64(last - 1), float64(last)}
			ys = []float64{history[len(history)-1].Value, points[last].Value}
		}
		forecastPoint := points[last]
		out = append(out, chart.ContinuousSeries{
			Name:    "Forecast",
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeColor:     forecastColor,
				StrokeWidth:     2,
				StrokeDashArray: []float64{5, 5},
				DotWidth:        5,
				DotColorProvider: func(_, _ chart.Range, index int, _, _ float64) drawing.Color {
					if index == len(xs)-1 {
						return parseColor(forecastPoint.Color)
					}
					return parseColor(history[len(history)-1].Color)
				},
			},
		})
	}
	return out
}

func dateFormatter(points []aqi.Point) chart.ValueFormatter {
	return func(v interface{}) string {
		f, ok := v.(float64)
		if !ok {
			return ""
		}
		i := int(math.Round(f))
		if i < 0 || i >= len(points) || math.Abs(f-float64(i)) > 0.01 {
			return ""
		}
		date := points[i].Date
		if len(date) == len(aqi.DateLayout) {
			return date[5:]
		}
		return date
	}
}

// parseColor accepts "#RRGGBB" or "#RGB" and falls back to the neutral color.
func parseColor(hex string) drawing.Color {
	raw := hex
	if len(raw) > 0 && raw[0] == '#' {
		raw = raw[1:]
	}
	if len(raw) != 3 && len(raw) != 6 {
		raw = aqi.NeutralColor[1:]
	}
	return drawing.ColorFromHex(raw)
}

func alpha(opacity float64) uint8 {
	if math.IsNaN(opacity) || opacity <= 0 {
		return 0
	}
	if opacity >= 1 {
		return 255
	}
	return uint8(math.Round(opacity * 255))
}

func round(v float64) int {
	return int(math.Round(v))
}
