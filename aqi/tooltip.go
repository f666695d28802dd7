package aqi

import "sync"

// TooltipGap is the spacing kept between an anchor and its tooltip.
const TooltipGap = 16

// Side is where a tooltip is placed relative to its anchor.
type Side string

const (
	SideRight Side = "right"
	SideLeft  Side = "left"
	SideTop   Side = "top"
)

// Rect is an element's bounding box in viewport pixels.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Size is a measured element size.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Place picks the tooltip side, preferring right, then left, then top. Top is
// the fallback and is not checked for horizontal overflow.
func Place(anchor Rect, tooltip Size, viewportWidth float64) Side {
	if anchor.Right+tooltip.Width+TooltipGap <= viewportWidth {
		return SideRight
	}
	if anchor.Left-tooltip.Width-TooltipGap >= 0 {
		return SideLeft
	}
	return SideTop
}

// TooltipPhase is the lifecycle state of a tooltip.
type TooltipPhase string

const (
	Hidden     TooltipPhase = "hidden"
	Measuring  TooltipPhase = "measuring"
	Positioned TooltipPhase = "positioned"
)

// Tooltip tracks a hover/focus tooltip through Hidden, Measuring and
// Positioned. Each Enter starts a fresh activation; a measurement delivered
// for an older activation is dropped.
type Tooltip struct {
	mu         sync.Mutex
	phase      TooltipPhase
	side       Side
	activation uint64
}

// NewTooltip returns a hidden tooltip.
func NewTooltip() *Tooltip {
	return &Tooltip{phase: Hidden}
}

// Enter moves to Measuring and returns the activation token that Measure must
// present.
func (t *Tooltip) Enter() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activation++
	t.phase = Measuring
	t.side = ""
	return t.activation
}

// Measure completes the layout pass for activation. It returns the chosen side
// and true, or false when the activation is stale or the tooltip is not
// measuring.
func (t *Tooltip) Measure(activation uint64, anchor Rect, tooltip Size, viewportWidth float64) (Side, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if activation != t.activation || t.phase != Measuring {
		return "", false
	}
	t.side = Place(anchor, tooltip, viewportWidth)
	t.phase = Positioned
	return t.side, true
}

// Leave hides the tooltip and invalidates any pending measurement.
func (t *Tooltip) Leave() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activation++
	t.phase = Hidden
	t.side = ""
}

// State returns the current phase and, when positioned, the side.
func (t *Tooltip) State() (TooltipPhase, Side) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.phase == "" {
		return Hidden, ""
	}
	return t.phase, t.side
}
