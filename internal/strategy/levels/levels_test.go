package levels

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldsweep/internal/config"
	"goldsweep/internal/market"
)

var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func newLocator() *Locator {
	cfg := config.Default().Strategy
	return NewLocator(cfg.Levels, cfg.Instrument)
}

// stairs 生成 n 根递增的 H4 K 线：open=2000+i, high=open+3, low=open-2, close=open+1。
func stairs(n int) market.Series {
	candles := make([]market.Candle, n)
	for i := range candles {
		o := 2000 + float64(i)
		ts := monday.Add(time.Duration(i) * 4 * time.Hour).UnixMilli()
		candles[i] = market.Candle{OpenTime: ts, Open: o, High: o + 3, Low: o - 2, Close: o + 1}
	}
	return market.NewSeries("4h", candles, nil)
}

func TestCatalogContents(t *testing.T) {
	cat := newLocator().Catalog(stairs(18), nil)

	expectNamed := map[Name]float64{
		PDH: 2014, PDL: 2004, PDC: 2012,
		AsianHigh: 2017, AsianLow: 1998,
		WeeklyOpen: 2000,
		SwingHigh:  2020, SwingLow: 1998,
	}
	assert.Equal(t, expectNamed, cat.Named)

	require.Len(t, cat.Fibonacci, 7)
	assert.Equal(t, FibLevel{Label: "0.0", Price: 1998}, cat.Fibonacci[0])
	assert.Equal(t, FibLevel{Label: "50.0", Price: 2009}, cat.Fibonacci[3])
	assert.Equal(t, FibLevel{Label: "100.0", Price: 2020}, cat.Fibonacci[6])
	assert.Equal(t, []float64{1900, 1950, 2000, 2050, 2100}, cat.RoundNumbers)
}

func TestCatalogUsesSuppliedDaily(t *testing.T) {
	daily := []market.Candle{
		{OpenTime: 1, High: 2050, Low: 2030, Close: 2040},
		{OpenTime: 2, High: 2060, Low: 2035, Close: 2055},
	}
	cat := newLocator().Catalog(stairs(18), daily)
	pdh, ok := cat.Get(PDH)
	require.True(t, ok)
	assert.Equal(t, 2050.0, pdh)
}

func TestCatalogPartialAndEmpty(t *testing.T) {
	l := newLocator()
	assert.True(t, l.Catalog(market.NewSeries("4h", nil, nil), nil).Empty())

	// 单根 12:00 的 K 线：不在亚盘区间，前一日取唯一一天
	c := market.Candle{OpenTime: monday.Add(12 * time.Hour).UnixMilli(), Open: 2000, High: 2003, Low: 1998, Close: 2001}
	cat := l.Catalog(market.NewSeries("4h", []market.Candle{c}, nil), nil)
	assert.False(t, cat.Empty())
	_, ok := cat.Get(AsianHigh)
	assert.False(t, ok)
	pdh, ok := cat.Get(PDH)
	require.True(t, ok)
	assert.Equal(t, 2003.0, pdh)
}

func TestCatalogBoundedLookbackAndNoLookahead(t *testing.T) {
	l := newLocator()
	full := stairs(400)
	cut := monday.Add(250 * 4 * time.Hour)
	a := l.Catalog(full.Until(cut), nil)
	b := l.Catalog(stairs(251), nil)
	assert.Equal(t, a, b)

	// 只看最近 200 根
	swingLow, _ := a.Get(SwingLow)
	assert.Equal(t, 2000.0+250-49-2, swingLow)
	fib0 := a.Fibonacci[0].Price
	assert.Equal(t, 2000.0+250-99-2, fib0)
}

func TestNearestTieGoesToFirstInOrder(t *testing.T) {
	l := newLocator()
	cat := Catalog{
		Named:        map[Name]float64{PDL: 1999, PDH: 2001, SwingHigh: 2001},
		Fibonacci:    []FibLevel{{Label: "23.6", Price: 1999}},
		RoundNumbers: []float64{2001},
	}
	lvl, ok := l.Nearest(2000, cat)
	require.True(t, ok)
	assert.Equal(t, "PDH", lvl.Name)
	assert.Equal(t, 2001.0, lvl.Price)
	assert.InDelta(t, 10.0, lvl.Distance, 1e-9)
}

func TestNearestNamesAndThreshold(t *testing.T) {
	l := newLocator()
	cat := Catalog{
		Named:        map[Name]float64{PDH: 2010},
		Fibonacci:    []FibLevel{{Label: "61.8", Price: 2001.5}},
		RoundNumbers: []float64{2000},
	}
	lvl, ok := l.Nearest(2000.4, cat)
	require.True(t, ok)
	assert.Equal(t, "Round $2000", lvl.Name)

	lvl, ok = l.Nearest(2001.2, cat)
	require.True(t, ok)
	assert.Equal(t, "Fib 61.8", lvl.Name)

	_, ok = l.Nearest(2050, cat)
	assert.False(t, ok)

	lvl, ok = l.Nearest(2012, Catalog{Named: map[Name]float64{PDH: 2010}})
	require.True(t, ok, "exactly max distance is accepted")
	assert.Equal(t, "PDH", lvl.Name)
}

func flatBars(n int, high, low, close float64) []market.Candle {
	out := make([]market.Candle, n)
	for i := range out {
		out[i] = market.Candle{OpenTime: int64(i + 1), Open: close, High: high, Low: low, Close: close}
	}
	return out
}

func TestDetectSweepAbove(t *testing.T) {
	bars := flatBars(10, 1995, 1990, 1993)
	bars[7].High, bars[7].Close = 2003, 1998
	s := newLocator().DetectSweep(market.NewSeries("15m", bars, nil), 2000)
	assert.Equal(t, Sweep{Detected: true, Direction: SweepAbove, Price: 2003}, s)
}

func TestDetectSweepAboveConfirmedByNextClose(t *testing.T) {
	bars := flatBars(10, 1995, 1990, 1993)
	bars[5].High, bars[5].Close = 2004, 2002
	bars[6].High, bars[6].Close = 2003, 1999
	s := newLocator().DetectSweep(market.NewSeries("15m", bars, nil), 2000)
	assert.Equal(t, Sweep{Detected: true, Direction: SweepAbove, Price: 2004}, s)
}

func TestDetectSweepBelow(t *testing.T) {
	bars := flatBars(10, 2010, 2005, 2007)
	bars[6].Low, bars[6].Close = 1997, 2003
	s := newLocator().DetectSweep(market.NewSeries("15m", bars, nil), 2000)
	assert.Equal(t, Sweep{Detected: true, Direction: SweepBelow, Price: 1997}, s)
}

func TestDetectSweepMostRecentWins(t *testing.T) {
	bars := flatBars(10, 1995, 1990, 1993)
	bars[3].High, bars[3].Close = 2002, 1996
	bars[7].High, bars[7].Close = 2006, 1997
	s := newLocator().DetectSweep(market.NewSeries("15m", bars, nil), 2000)
	assert.Equal(t, 2006.0, s.Price)
}

func TestDetectSweepNone(t *testing.T) {
	l := newLocator()
	rising := make([]market.Candle, 10)
	for i := range rising {
		p := 1980 + float64(i)
		rising[i] = market.Candle{OpenTime: int64(i + 1), Open: p, High: p + 1, Low: p - 1, Close: p}
	}
	assert.Equal(t, Sweep{Direction: SweepNone}, l.DetectSweep(market.NewSeries("15m", rising, nil), 2000))

	// 只有最后一根刺破（缺少 next）不算
	bars := flatBars(10, 1995, 1990, 1993)
	bars[9].High, bars[9].Close = 2003, 1998
	assert.False(t, l.DetectSweep(market.NewSeries("15m", bars, nil), 2000).Detected)

	// 只看最近 10 根
	old := flatBars(20, 1995, 1990, 1993)
	old[5].High, old[5].Close = 2003, 1998
	assert.False(t, l.DetectSweep(market.NewSeries("15m", old, nil), 2000).Detected)
}
