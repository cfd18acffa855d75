package market

import (
	"errors"
	"fmt"
	"math"
)

// ErrCorruptSeries 表示输入 K 线不满足基本约束（时间递增、价格有限且自洽）。
var ErrCorruptSeries = errors.New("corrupt candle series")

// ValidateCandles 校验 K 线序列：时间严格递增、OHLC 有限且 High>=max(O,C)、Low<=min(O,C)、成交量非负。
func ValidateCandles(candles []Candle) error {
	for i, c := range candles {
		for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: bar %d has non-finite value", ErrCorruptSeries, i)
			}
		}
		if c.High < c.Low || c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
			return fmt.Errorf("%w: bar %d high/low inconsistent (o=%.4f h=%.4f l=%.4f c=%.4f)",
				ErrCorruptSeries, i, c.Open, c.High, c.Low, c.Close)
		}
		if c.Volume < 0 {
			return fmt.Errorf("%w: bar %d negative volume", ErrCorruptSeries, i)
		}
		if i > 0 && c.OpenTime <= candles[i-1].OpenTime {
			return fmt.Errorf("%w: bar %d time %d not after %d", ErrCorruptSeries, i, c.OpenTime, candles[i-1].OpenTime)
		}
	}
	return nil
}
