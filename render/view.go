package render

import (
	"bytes"
	"io"
	"sync"

	"aqi-service/aqi"
)

// ChartView is a long-lived chart for one county. New data replaces the
// series in place; the view is never torn down and rebuilt between updates.
type ChartView struct {
	mu      sync.RWMutex
	title   string
	width   int
	height  int
	series  aqi.CombinedSeries
	bands   []aqi.DrawCommand
	version uint64
}

// NewChartView creates an empty view with the given size.
func NewChartView(title string, width, height int) *ChartView {
	return &ChartView{title: title, width: width, height: height}
}

// Update replaces the plotted series and returns the new version.
func (v *ChartView) Update(series aqi.CombinedSeries) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.series = series
	v.version++
	return v.version
}

// Resize changes the output size. Non-positive values keep the current size.
func (v *ChartView) Resize(width, height int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if width > 0 {
		v.width = width
	}
	if height > 0 {
		v.height = height
	}
}

// Version counts updates since creation.
func (v *ChartView) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Series returns the currently plotted series.
func (v *ChartView) Series() aqi.CombinedSeries {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.series
}

// Bands returns the draw commands executed by the last successful render of
// the current version.
func (v *ChartView) Bands() []aqi.DrawCommand {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]aqi.DrawCommand, len(v.bands))
	copy(out, v.bands)
	return out
}

// Render draws the current series to w.
func (v *ChartView) Render(w io.Writer, format Format) error {
	v.mu.RLock()
	c, version := v.snapshot()
	v.mu.RUnlock()

	return v.draw(c, version, w, format)
}

// Draw replaces the series and size and renders that exact state to w. A
// concurrent Draw cannot change what this call renders.
func (v *ChartView) Draw(series aqi.CombinedSeries, width, height int, w io.Writer, format Format) error {
	v.mu.Lock()
	if width > 0 {
		v.width = width
	}
	if height > 0 {
		v.height = height
	}
	v.series = series
	v.version++
	c, version := v.snapshot()
	v.mu.Unlock()

	return v.draw(c, version, w, format)
}

// snapshot must be called with v.mu held.
func (v *ChartView) snapshot() (Chart, uint64) {
	return Chart{Title: v.title, Width: v.width, Height: v.height, Series: v.series}, v.version
}

func (v *ChartView) draw(c Chart, version uint64, w io.Writer, format Format) error {
	// A failed draw leaves w untouched.
	var buf bytes.Buffer
	bands, err := c.Render(&buf, format)
	if err != nil {
		return err
	}

	v.mu.Lock()
	if version == v.version {
		v.bands = bands
	}
	v.mu.Unlock()

	_, err = buf.WriteTo(w)
	return err
}
