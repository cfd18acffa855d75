package indicator

import (
	"math"

	"github.com/markcheno/go-talib"

	"goldsweep/internal/config"
	"goldsweep/internal/market"
)

// Compute 计算信号管线用到的全部指标列，与 candles 逐行对齐。
// 第 i 行只依赖 [0, i] 的 K 线；ta-lib 预热期（lookback）填 NaN。
func Compute(candles []market.Candle, cfg config.IndicatorConfig) market.Frame {
	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	frame := market.Frame{}
	frame[market.ColEMAFast] = guard(n, cfg.EMAFast-1, func() []float64 { return talib.Ema(closes, cfg.EMAFast) })
	frame[market.ColEMASlow] = guard(n, cfg.EMASlow-1, func() []float64 { return talib.Ema(closes, cfg.EMASlow) })
	frame[market.ColADX] = guard(n, 2*cfg.ADXPeriod-1, func() []float64 { return talib.Adx(highs, lows, closes, cfg.ADXPeriod) })
	frame[market.ColRSI] = guard(n, cfg.RSIPeriod, func() []float64 { return talib.Rsi(closes, cfg.RSIPeriod) })
	frame[market.ColATR] = guard(n, cfg.ATRPeriod, func() []float64 { return talib.Atr(highs, lows, closes, cfg.ATRPeriod) })
	frame[market.ColVolumeMA] = guard(n, cfg.VolumeMA-1, func() []float64 { return talib.Sma(volumes, cfg.VolumeMA) })

	bbLookback := cfg.BBPeriod - 1
	var upper, middle, lower []float64
	if n > bbLookback {
		upper, middle, lower = talib.BBands(closes, cfg.BBPeriod, cfg.BBDev, cfg.BBDev, talib.SMA)
	}
	frame[market.ColBBUpper] = mask(upper, n, bbLookback)
	frame[market.ColBBMiddle] = mask(middle, n, bbLookback)
	frame[market.ColBBLower] = mask(lower, n, bbLookback)
	frame[market.ColBBWidth] = ratio(n, func(i int) (float64, float64) {
		return frame[market.ColBBUpper][i] - frame[market.ColBBLower][i], closes[i]
	})

	stochLookback := cfg.StochK - 1 + cfg.StochD - 1
	var k, d []float64
	if n > stochLookback {
		k, d = talib.StochF(highs, lows, closes, cfg.StochK, cfg.StochD, talib.SMA)
	}
	frame[market.ColStochK] = mask(k, n, stochLookback)
	frame[market.ColStochD] = mask(d, n, stochLookback)

	macdLookback := cfg.MACDSlow - 1 + cfg.MACDSignal - 1
	var macd, signal, hist []float64
	if n > macdLookback {
		macd, signal, hist = talib.Macd(closes, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	}
	frame[market.ColMACD] = mask(macd, n, macdLookback)
	frame[market.ColMACDSignal] = mask(signal, n, macdLookback)
	frame[market.ColMACDDiff] = mask(hist, n, macdLookback)

	frame[market.ColVolumeRatio] = ratio(n, func(i int) (float64, float64) {
		return volumes[i], frame[market.ColVolumeMA][i]
	})
	return frame
}

// Attach 计算指标并组装为 Series。
func Attach(timeframe string, candles []market.Candle, cfg config.IndicatorConfig) market.Series {
	return market.NewSeries(timeframe, candles, Compute(candles, cfg))
}

// Lookback 返回所有列都可用之前需要的最少 K 线数量。
func Lookback(cfg config.IndicatorConfig) int {
	out := 0
	for _, lb := range []int{
		cfg.EMAFast - 1, cfg.EMASlow - 1, 2*cfg.ADXPeriod - 1, cfg.BBPeriod - 1, cfg.RSIPeriod,
		cfg.StochK + cfg.StochD - 2, cfg.MACDSlow + cfg.MACDSignal - 2, cfg.ATRPeriod, cfg.VolumeMA - 1,
	} {
		if lb > out {
			out = lb
		}
	}
	return out + 1
}

// guard 在数据不足时跳过 ta-lib 调用，直接返回全 NaN 列。
func guard(n, lookback int, fn func() []float64) []float64 {
	if lookback < 0 || n <= lookback {
		return mask(nil, n, n)
	}
	return mask(fn(), n, lookback)
}

// mask 把前 lookback 行与非有限值置为 NaN。
func mask(src []float64, n, lookback int) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i < lookback || i >= len(src) || math.IsInf(src[i], 0) {
			out[i] = math.NaN()
			continue
		}
		out[i] = src[i]
	}
	return out
}

func ratio(n int, fn func(int) (float64, float64)) []float64 {
	out := make([]float64, n)
	for i := range out {
		num, den := fn(i)
		if math.IsNaN(num) || math.IsNaN(den) || den == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = num / den
	}
	return out
}
