package regime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"goldsweep/internal/config"
	"goldsweep/internal/market"
)

func row(adx, fast, slow, width float64) market.Series {
	candles := []market.Candle{{OpenTime: 1, Open: 2000, High: 2001, Low: 1999, Close: 2000}}
	return market.NewSeries("4h", candles, market.Frame{
		market.ColADX:     {adx},
		market.ColEMAFast: {fast},
		market.ColEMASlow: {slow},
		market.ColBBWidth: {width},
	})
}

func TestClassify(t *testing.T) {
	c := NewClassifier(config.Default().Strategy.Regime)
	cases := []struct {
		name   string
		series market.Series
		want   Regime
		adx    float64
	}{
		{"bull", row(30, 2010, 2000, 0.05), TrendingBull, 30},
		{"bear", row(30, 1990, 2000, 0.05), TrendingBear, 30},
		{"equal emas are bear", row(26, 2000, 2000, 0.01), TrendingBear, 26},
		{"range", row(15, 2000, 2001, 0.01), Range, 15},
		{"quiet but wide", row(15, 2000, 2001, 0.03), BreakoutPending, 15},
		{"between thresholds", row(22, 2000, 2001, 0.01), BreakoutPending, 22},
		{"at trending threshold", row(25, 2010, 2000, 0.01), BreakoutPending, 25},
		{"missing adx", row(math.NaN(), 2010, 2000, 0.01), Unknown, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.series)
			assert.Equal(t, tc.want, got.Regime)
			assert.Equal(t, tc.adx, got.ADX)
		})
	}
	assert.Equal(t, Result{Regime: Unknown}, c.Classify(market.NewSeries("4h", nil, nil)))
}

func TestIsFavorable(t *testing.T) {
	for _, r := range []Regime{TrendingBull, TrendingBear, Range, BreakoutPending} {
		assert.True(t, IsFavorable(r), r)
	}
	assert.False(t, IsFavorable(Unknown))
}

func TestClassifyIgnoresFutureRows(t *testing.T) {
	c := NewClassifier(config.Default().Strategy.Regime)
	candles := []market.Candle{{OpenTime: 1}, {OpenTime: 2}, {OpenTime: 3}}
	full := market.NewSeries("4h", candles, market.Frame{
		market.ColADX:     {15, 30, 40},
		market.ColEMAFast: {2000, 2010, 1990},
		market.ColEMASlow: {2001, 2000, 2000},
		market.ColBBWidth: {0.01, 0.01, 0.01},
	})
	assert.Equal(t, TrendingBull, c.Classify(full.Head(2)).Regime)
	assert.Equal(t, TrendingBear, c.Classify(full).Regime)
	assert.Equal(t, Range, c.Classify(full.Head(1)).Regime)
}

func TestDescription(t *testing.T) {
	assert.Contains(t, Range.Description(), "Range-bound")
	assert.Equal(t, Unknown.Description(), Regime("bogus").Description())
}
