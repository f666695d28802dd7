package aqi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_EveryIntegerInRange(t *testing.T) {
	for v := 0; v <= 500; v++ {
		got := Classify(float64(v))
		info, ok := got.Info()
		require.True(t, ok, "aqi %d classified as %q", v, got)
		assert.GreaterOrEqual(t, v, info.Low, "aqi %d", v)
		assert.LessOrEqual(t, v, info.High, "aqi %d", v)

		matches := 0
		for _, c := range Categories() {
			if v >= c.Low && v <= c.High {
				matches++
			}
		}
		assert.Equal(t, 1, matches, "aqi %d", v)
	}
}

func TestClassify_Boundaries(t *testing.T) {
	tests := []struct {
		aqi  float64
		want Category
	}{
		{0, Good},
		{50, Good},
		{51, Moderate},
		{100, Moderate},
		{101, UnhealthyForSensitiveGroups},
		{150, UnhealthyForSensitiveGroups},
		{151, Unhealthy},
		{200, Unhealthy},
		{201, VeryUnhealthy},
		{300, VeryUnhealthy},
		{301, Hazardous},
		{500, Hazardous},
		{501, Hazardous},
		{1e9, Hazardous},
		{50.4, Good},
		{50.5, Moderate},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.aqi), "aqi %v", tt.aqi)
	}
}

func TestClassify_InvalidInput(t *testing.T) {
	assert.Equal(t, Unknown, Classify(-1))
	assert.Equal(t, Unknown, Classify(-0.1))
	assert.Equal(t, Unknown, Classify(math.NaN()))
	assert.Equal(t, Unknown, Classify(math.Inf(1)))
	assert.Equal(t, Unknown, Classify(math.Inf(-1)))
	assert.False(t, Unknown.Valid())
	assert.Equal(t, -1, Unknown.Severity())
}

func TestLookups(t *testing.T) {
	assert.Equal(t, "#00E400", ColorFor("Good"))
	assert.Equal(t, "#7E0023", ColorFor("Hazardous"))
	assert.Equal(t, "bg-aqi-ufs text-black", StyleTokenFor("Unhealthy for Sensitive Groups"))
	assert.Equal(t, "#FFFFFF", TextColorFor("Very Unhealthy"))
	assert.Equal(t, "#FF0000", ColorForValue(175))
}

func TestLookups_Fallback(t *testing.T) {
	for _, name := range []string{"Unknown", "", "good", "Extreme"} {
		assert.Equal(t, NeutralColor, ColorFor(name), name)
		assert.Equal(t, NeutralStyleToken, StyleTokenFor(name), name)
		assert.Equal(t, NeutralTextColor, TextColorFor(name), name)
	}
	assert.Equal(t, NeutralColor, ColorForValue(-5))
}

func TestCategories_ContiguousAndCopied(t *testing.T) {
	cats := Categories()
	require.Len(t, cats, 6)
	assert.Equal(t, 0, cats[0].Low)
	assert.Equal(t, 500, cats[len(cats)-1].High)
	for i := 1; i < len(cats); i++ {
		assert.Equal(t, cats[i-1].High+1, cats[i].Low)
	}

	cats[0].Color = "#000000"
	assert.Equal(t, "#00E400", ColorFor("Good"))
}

func TestAdvisory(t *testing.T) {
	assert.Contains(t, Advisory(Hazardous), "emergency conditions")
	assert.Equal(t, "Unknown", Advisory(Unknown))
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, 55.0, RoundHalfUp(55.4))
	assert.Equal(t, 56.0, RoundHalfUp(55.5))
	assert.Equal(t, 63.0, RoundHalfUp(63.333))
	assert.Equal(t, 0.0, RoundHalfUp(0))
	assert.Equal(t, 1e20, RoundHalfUp(1e20))
}
