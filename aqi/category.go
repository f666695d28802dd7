// Package aqi holds the pure dashboard logic: category classification, series
// composition and statistics, threshold band geometry, tooltip placement and
// multi-day forecast aggregation. Nothing in this package performs I/O or keeps
// state between calls.
package aqi

import "math"

// Category is the name of an AQI severity bucket.
type Category string

const (
	Good                        Category = "Good"
	Moderate                    Category = "Moderate"
	UnhealthyForSensitiveGroups Category = "Unhealthy for Sensitive Groups"
	Unhealthy                   Category = "Unhealthy"
	VeryUnhealthy               Category = "Very Unhealthy"
	Hazardous                   Category = "Hazardous"

	// Unknown is returned for negative or non-finite input. It is not part of
	// the category table.
	Unknown Category = "Unknown"
)

// Neutral styling used for Unknown and unrecognized category names.
const (
	NeutralColor      = "#6B7280"
	NeutralTextColor  = "#FFFFFF"
	NeutralStyleToken = "bg-slate-400 text-white"
)

// CategoryInfo describes one row of the severity table.
type CategoryInfo struct {
	Name       Category `json:"name"`
	Low        int      `json:"low"`
	High       int      `json:"high"`
	Color      string   `json:"color"`
	TextColor  string   `json:"textColor"`
	StyleToken string   `json:"styleToken"`
}

// categories is evaluated in order; the first matching row wins.
var categories = []CategoryInfo{
	{Good, 0, 50, "#00E400", "#000000", "bg-aqi-good text-black"},
	{Moderate, 51, 100, "#FFFF00", "#000000", "bg-aqi-moderate text-black"},
	{UnhealthyForSensitiveGroups, 101, 150, "#FF7E00", "#000000", "bg-aqi-ufs text-black"},
	{Unhealthy, 151, 200, "#FF0000", "#FFFFFF", "bg-aqi-unhealthy text-white"},
	{VeryUnhealthy, 201, 300, "#8F3F97", "#FFFFFF", "bg-aqi-veryunhealthy text-white"},
	{Hazardous, 301, 500, "#7E0023", "#FFFFFF", "bg-aqi-hazardous text-white"},
}

// Categories returns a copy of the ordered category table.
func Categories() []CategoryInfo {
	out := make([]CategoryInfo, len(categories))
	copy(out, categories)
	return out
}

// Classify maps an AQI value to its category.
//
// Fractional values are rounded half-up before the table lookup, the same way
// they are displayed, so 50.4 is Good and 50.5 is Moderate. Values above the
// last bound are Hazardous; negative and non-finite values are Unknown.
func Classify(aqi float64) Category {
	if math.IsNaN(aqi) || math.IsInf(aqi, 0) || aqi < 0 {
		return Unknown
	}
	if aqi > float64(categories[len(categories)-1].High) {
		return Hazardous
	}
	v := RoundHalfUp(aqi)
	for _, c := range categories {
		if v >= float64(c.Low) && v <= float64(c.High) {
			return c.Name
		}
	}
	return Hazardous
}

// RoundHalfUp rounds to the nearest integer with halves going up. The result
// stays a float64 so values beyond the int range do not wrap.
func RoundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

// Valid reports whether c is one of the six table categories.
func (c Category) Valid() bool {
	_, ok := lookup(c)
	return ok
}

// Severity returns the zero-based table position of c, or -1 for Unknown.
func (c Category) Severity() int {
	for i, info := range categories {
		if info.Name == c {
			return i
		}
	}
	return -1
}

// Info returns the table row for c.
func (c Category) Info() (CategoryInfo, bool) {
	return lookup(c)
}

func lookup(c Category) (CategoryInfo, bool) {
	for _, info := range categories {
		if info.Name == c {
			return info, true
		}
	}
	return CategoryInfo{}, false
}

// ColorFor returns the display color for a category name. Unrecognized names
// get NeutralColor.
func ColorFor(name string) string {
	if info, ok := lookup(Category(name)); ok {
		return info.Color
	}
	return NeutralColor
}

// TextColorFor returns the foreground color paired with ColorFor.
func TextColorFor(name string) string {
	if info, ok := lookup(Category(name)); ok {
		return info.TextColor
	}
	return NeutralTextColor
}

// StyleTokenFor returns the CSS class token for a category name.
func StyleTokenFor(name string) string {
	if info, ok := lookup(Category(name)); ok {
		return info.StyleToken
	}
	return NeutralStyleToken
}

// ColorForValue classifies v and returns its color.
func ColorForValue(v float64) string {
	return ColorFor(string(Classify(v)))
}

var advisories = map[Category]string{
	Good:                        "Air quality is satisfactory, and air pollution poses little or no risk.",
	Moderate:                    "Air quality is acceptable. However, there may be a risk for some people, particularly those who are unusually sensitive to air pollution.",
	UnhealthyForSensitiveGroups: "Members of sensitive groups may experience health effects. The general public is less likely to be affected.",
	Unhealthy:                   "Some members of the general public may experience health effects; members of sensitive groups may experience more serious health effects.",
	VeryUnhealthy:               "Health alert: The risk of health effects is increased for everyone.",
	Hazardous:                   "Health warning of emergency conditions: everyone is more likely to be affected.",
}

// Advisory returns the health advisory text shown in the legend tooltip. The
// category name itself is returned when no advisory exists.
func Advisory(c Category) string {
	if s, ok := advisories[c]; ok {
		return s
	}
	return string(c)
}
