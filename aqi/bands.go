package aqi

import "math"

// Band styling.
const (
	BandFillOpacity = 0.08
	GuideOpacity    = 0.40
	GuideLineWidth  = 1.3
)

// GuideDash is the on/off dash pattern of threshold guide lines.
var GuideDash = []float64{6, 4}

// PlotArea is the chart's drawable region in pixels. Y grows downward.
type PlotArea struct {
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

// Width of the plot area.
func (a PlotArea) Width() float64 { return a.Right - a.Left }

// Height of the plot area.
func (a PlotArea) Height() float64 { return a.Bottom - a.Top }

// ChartGeometry couples a plot area with the vertical value-to-pixel mapping.
type ChartGeometry struct {
	Plot         PlotArea
	ValueToPixel func(float64) float64
}

// LinearScale maps the value domain [v0, v1] onto pixel range [p0, p1].
func LinearScale(v0, v1, p0, p1 float64) func(float64) float64 {
	span := v1 - v0
	return func(v float64) float64 {
		if span == 0 {
			return p0
		}
		return p0 + (v-v0)/span*(p1-p0)
	}
}

// Threshold is a boundary value on the AQI axis with the color of the
// category starting there.
type Threshold struct {
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// Thresholds returns the ascending band boundaries derived from the category
// table: zero, then the upper bound of every category except the last.
func Thresholds() []Threshold {
	out := make([]Threshold, 0, len(categories))
	for i, c := range categories {
		v := 0.0
		if i > 0 {
			v = float64(categories[i-1].High)
		}
		out = append(out, Threshold{Value: v, Color: c.Color})
	}
	return out
}

// CommandKind distinguishes draw commands.
type CommandKind string

const (
	FillRect   CommandKind = "fillRect"
	DashedLine CommandKind = "dashedLine"
)

// DrawCommand is a drawing instruction in plot pixel space. FillRect uses
// X, Y, Width and Height; DashedLine uses X1, Y1, X2, Y2, LineWidth and Dash.
type DrawCommand struct {
	Kind      CommandKind `json:"kind"`
	Color     string      `json:"color"`
	Opacity   float64     `json:"opacity"`
	X         float64     `json:"x,omitempty"`
	Y         float64     `json:"y,omitempty"`
	Width     float64     `json:"width,omitempty"`
	Height    float64     `json:"height,omitempty"`
	X1        float64     `json:"x1,omitempty"`
	Y1        float64     `json:"y1,omitempty"`
	X2        float64     `json:"x2,omitempty"`
	Y2        float64     `json:"y2,omitempty"`
	LineWidth float64     `json:"lineWidth,omitempty"`
	Dash      []float64   `json:"dash,omitempty"`
}

// RenderBands computes the threshold fill bands and guide lines for geom.
//
// Each adjacent pair of thresholds yields a full-width fill in the lower
// boundary's color, clipped to the plot area and omitted when nothing of it
// remains visible. Every threshold above the lowest yields a dashed guide line,
// omitted when its pixel row is off the plot. The function only computes; the
// caller executes the commands.
func RenderBands(thresholds []Threshold, geom ChartGeometry) []DrawCommand {
	if geom.ValueToPixel == nil || len(thresholds) == 0 {
		return nil
	}
	plot := geom.Plot
	cmds := make([]DrawCommand, 0, 2*len(thresholds))

	for i := 0; i+1 < len(thresholds); i++ {
		cur, next := thresholds[i], thresholds[i+1]
		y0 := geom.ValueToPixel(next.Value)
		y1 := geom.ValueToPixel(cur.Value)
		top, bottom := math.Min(y0, y1), math.Max(y0, y1)
		if !finite(top) || !finite(bottom) {
			continue
		}
		if bottom < plot.Top || top > plot.Bottom {
			continue
		}
		top = math.Max(top, plot.Top)
		bottom = math.Min(bottom, plot.Bottom)
		if bottom <= top {
			continue
		}

		cmds = append(cmds, DrawCommand{
			Kind:    FillRect,
			Color:   cur.Color,
			Opacity: BandFillOpacity,
			X:       plot.Left,
			Y:       top,
			Width:   plot.Width(),
			Height:  bottom - top,
		})
	}

	for _, th := range thresholds[1:] {
		y := geom.ValueToPixel(th.Value)
		if !finite(y) || y < plot.Top || y > plot.Bottom {
			continue
		}
		cmds = append(cmds, DrawCommand{
			Kind:      DashedLine,
			Color:     th.Color,
			Opacity:   GuideOpacity,
			X1:        plot.Left,
			Y1:        y,
			X2:        plot.Right,
			Y2:        y,
			LineWidth: GuideLineWidth,
			Dash:      append([]float64(nil), GuideDash...),
		})
	}
	return cmds
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
