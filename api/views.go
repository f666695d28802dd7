package api

import (
	"sync"

	"aqi-service/render"
)

// ViewRegistry holds one chart view per county so repeated chart requests
// update the same view instead of building a new one each time
type ViewRegistry struct {
	views  map[string]map[string]*render.ChartView // key is state, then county
	width  int
	height int
	mutex  sync.RWMutex
}

// NewViewRegistry creates an empty registry whose views default to the given size
func NewViewRegistry(width, height int) *ViewRegistry {
	return &ViewRegistry{
		views:  make(map[string]map[string]*render.ChartView),
		width:  width,
		height: height,
	}
}

// Get returns the view for a county, creating it on first use
func (v *ViewRegistry) Get(county, state string) *render.ChartView {
	v.mutex.RLock()
	view, exists := v.views[state][county]
	v.mutex.RUnlock()
	if exists {
		return view
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	// Check if we already have views for this state
	if _, exists := v.views[state]; !exists {
		v.views[state] = make(map[string]*render.ChartView)
	}
	if view, exists := v.views[state][county]; exists {
		return view
	}
	view = render.NewChartView(county+", "+state, v.width, v.height)
	v.views[state][county] = view
	return view
}

// Len returns the number of views held
func (v *ViewRegistry) Len() int {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	n := 0
	for _, byCounty := range v.views {
		n += len(byCounty)
	}
	return n
}
