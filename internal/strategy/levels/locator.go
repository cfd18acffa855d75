package levels

import (
	"math"

	"goldsweep/internal/config"
	"goldsweep/internal/market"
)

// Direction 是扫流动性的方向。
type Direction string

const (
	SweepNone  Direction = "none"
	SweepAbove Direction = "above"
	SweepBelow Direction = "below"
)

// Sweep 是扫单检测结果；Price 为刺破 K 线的最高价（above）或最低价（below）。
type Sweep struct {
	Detected  bool      `json:"detected"`
	Direction Direction `json:"direction"`
	Price     float64   `json:"sweep_price,omitempty"`
}

// Locator 基于上下文周期序列计算关键位、最近位与扫单。
type Locator struct {
	cfg     config.LevelsConfig
	pipSize float64
}

func NewLocator(cfg config.LevelsConfig, inst config.InstrumentConfig) *Locator {
	return &Locator{cfg: cfg, pipSize: inst.PipSize}
}

// Catalog 在最近 catalog_lookback 根 K 线上计算关键位。
// daily 为空时把窗口按 UTC 自然日聚合得到前一日高低收。
func (l *Locator) Catalog(s market.Series, daily []market.Candle) Catalog {
	cat := newCatalog()
	window := s
	if l.cfg.CatalogLookback > 0 {
		window = s.Tail(l.cfg.CatalogLookback)
	}
	last, ok := window.Last()
	if !ok {
		return cat
	}

	if len(daily) == 0 {
		daily = market.DailyBuckets(window.Candles)
	}
	if n := len(daily); n > 0 {
		prev := daily[n-1]
		if n > 1 {
			prev = daily[n-2]
		}
		cat.set(PDH, prev.High)
		cat.set(PDL, prev.Low)
		cat.set(PDC, prev.Close)
	}

	if hi, lo, ok := l.asianRange(window.Candles); ok {
		cat.set(AsianHigh, hi)
		cat.set(AsianLow, lo)
	}

	if weeks := market.WeeklyBuckets(window.Candles); len(weeks) > 0 {
		cat.set(WeeklyOpen, weeks[len(weeks)-1].Open)
	} else {
		cat.set(WeeklyOpen, window.Candles[0].Open)
	}

	if hi, lo, ok := extremes(window.Tail(l.cfg.SwingLookback).Candles); ok {
		cat.set(SwingHigh, hi)
		cat.set(SwingLow, lo)
	}

	if hi, lo, ok := extremes(window.Tail(l.cfg.FibLookback).Candles); ok {
		span := hi - lo
		for _, f := range fibRatios {
			price := lo + span*f.ratio
			if f.ratio == 1 {
				price = hi
			}
			cat.Fibonacci = append(cat.Fibonacci, FibLevel{Label: f.label, Price: price})
		}
	}

	if step := l.cfg.RoundStep; step > 0 && !math.IsNaN(last.Close) {
		base := math.Trunc(last.Close/step) * step
		for k := -2; k <= 2; k++ {
			cat.RoundNumbers = append(cat.RoundNumbers, base+float64(k)*step)
		}
	}
	return cat
}

// asianRange 取 UTC [start:00, end:00]（两端包含）内 K 线的最高/最低价。
func (l *Locator) asianRange(candles []market.Candle) (float64, float64, bool) {
	from, to := l.cfg.AsianStartHour*60, l.cfg.AsianEndHour*60
	var in []market.Candle
	for _, c := range candles {
		t := c.Time()
		minute := t.Hour()*60 + t.Minute()
		if minute >= from && minute <= to {
			in = append(in, c)
		}
	}
	return extremes(in)
}

func extremes(candles []market.Candle) (float64, float64, bool) {
	if len(candles) == 0 {
		return 0, 0, false
	}
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, c := range candles {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	return hi, lo, true
}

// Nearest 返回距离 price 不超过 max_distance_pips 的最近关键位；并列时按遍历顺序取第一个。
func (l *Locator) Nearest(price float64, cat Catalog) (Level, bool) {
	var best Level
	bestDist := math.Inf(1)
	found := false
	for _, cand := range cat.Candidates() {
		dist := math.Abs(price-cand.Price) / l.pipSize
		if dist <= l.cfg.MaxDistancePips && dist < bestDist {
			bestDist = dist
			best = cand
			best.Distance = dist
			found = true
		}
	}
	return best, found
}

// DetectSweep 在最近 sweep_lookback 根 K 线内，从最新往回逐个检查 (prev, bar, next) 三元组。
func (l *Locator) DetectSweep(s market.Series, level float64) Sweep {
	bars := s.Tail(l.cfg.SweepLookback).Candles
	for i := len(bars) - 2; i >= 1; i-- {
		bar, prev, next := bars[i], bars[i-1], bars[i+1]
		if bar.High > level && prev.High <= level {
			if bar.Close < level || next.Close < level {
				return Sweep{Detected: true, Direction: SweepAbove, Price: bar.High}
			}
		}
		if bar.Low < level && prev.Low >= level {
			if bar.Close > level || next.Close > level {
				return Sweep{Detected: true, Direction: SweepBelow, Price: bar.Low}
			}
		}
	}
	return Sweep{Direction: SweepNone}
}
