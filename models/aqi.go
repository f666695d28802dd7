package models

import (
	"fmt"
	"sort"

	"aqi-service/aqi"
)

// County is a county with historical AQI data
type County struct {
	County      string `json:"county"`
	State       string `json:"state"`
	DisplayName string `json:"display_name"`
}

// NewCounty builds a County with its "County, State" display name
func NewCounty(county, state string) County {
	return County{
		County:      county,
		State:       state,
		DisplayName: fmt.Sprintf("%s, %s", county, state),
	}
}

// SortCounties orders counties by state, then county name
func SortCounties(counties []County) {
	sort.Slice(counties, func(i, j int) bool {
		if counties[i].State != counties[j].State {
			return counties[i].State < counties[j].State
		}
		return counties[i].County < counties[j].County
	})
}

// AqiSample is one daily observation for a county
type AqiSample struct {
	County            string  `json:"county,omitempty"`
	State             string  `json:"state,omitempty"`
	Date              string  `json:"date"`
	AQI               float64 `json:"aqi"`
	Category          string  `json:"category"`
	DefiningParameter string  `json:"defining_parameter"`
}

// Samples strips boundary-only fields, keeping date and value
func Samples(in []AqiSample) []aqi.Sample {
	out := make([]aqi.Sample, len(in))
	for i, s := range in {
		out[i] = aqi.Sample{Date: s.Date, AQI: s.AQI}
	}
	return out
}

// HistoricalResponse is the envelope for a county's history
type HistoricalResponse struct {
	Success bool        `json:"success"`
	County  string      `json:"county"`
	State   string      `json:"state"`
	Days    int         `json:"days"`
	Data    []AqiSample `json:"data"`
	Count   int         `json:"count"`
	Source  string      `json:"source"`
}
