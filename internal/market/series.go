package market

import (
	"math"
	"sort"
	"time"
)

// Column 是指标列名。
type Column string

const (
	ColEMAFast     Column = "ema_fast"
	ColEMASlow     Column = "ema_slow"
	ColADX         Column = "adx"
	ColBBUpper     Column = "bb_upper"
	ColBBMiddle    Column = "bb_middle"
	ColBBLower     Column = "bb_lower"
	ColBBWidth     Column = "bb_width"
	ColRSI         Column = "rsi"
	ColStochK      Column = "stoch_k"
	ColStochD      Column = "stoch_d"
	ColMACD        Column = "macd"
	ColMACDSignal  Column = "macd_signal"
	ColMACDDiff    Column = "macd_diff"
	ColATR         Column = "atr"
	ColVolumeMA    Column = "volume_ma"
	ColVolumeRatio Column = "volume_ratio"
)

// Frame 保存与 K 线按下标对齐的指标列；预热期的值为 NaN。
type Frame map[Column][]float64

// Series 是只读的 K 线序列 + 指标列。切片操作共享底层数组，调用方不得修改。
type Series struct {
	Timeframe string
	Candles   []Candle
	Frame     Frame
}

// NewSeries 构造序列；frame 可为 nil。
func NewSeries(timeframe string, candles []Candle, frame Frame) Series {
	if frame == nil {
		frame = Frame{}
	}
	return Series{Timeframe: timeframe, Candles: candles, Frame: frame}
}

func (s Series) Len() int { return len(s.Candles) }

// Head 返回前 n 根（[0, n)），即截至第 n-1 根的时点视图。
func (s Series) Head(n int) Series {
	if n < 0 {
		n = 0
	}
	if n > len(s.Candles) {
		n = len(s.Candles)
	}
	return s.slice(0, n)
}

// Tail 返回最后 n 根。
func (s Series) Tail(n int) Series {
	if n < 0 {
		n = 0
	}
	start := len(s.Candles) - n
	if start < 0 {
		start = 0
	}
	return s.slice(start, len(s.Candles))
}

// Until 返回开盘时间不晚于 ts 的全部 K 线。
func (s Series) Until(ts time.Time) Series {
	ms := ts.UnixMilli()
	n := sort.Search(len(s.Candles), func(i int) bool {
		return s.Candles[i].OpenTime > ms
	})
	return s.slice(0, n)
}

// Since 返回开盘时间不早于 ts 的全部 K 线。
func (s Series) Since(ts time.Time) Series {
	ms := ts.UnixMilli()
	start := sort.Search(len(s.Candles), func(i int) bool {
		return s.Candles[i].OpenTime >= ms
	})
	return s.slice(start, len(s.Candles))
}

// After 返回开盘时间严格晚于 ts 的前 limit 根 K 线（limit<=0 表示不限）。
func (s Series) After(ts time.Time, limit int) []Candle {
	ms := ts.UnixMilli()
	start := sort.Search(len(s.Candles), func(i int) bool {
		return s.Candles[i].OpenTime > ms
	})
	end := len(s.Candles)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return s.Candles[start:end]
}

func (s Series) slice(start, end int) Series {
	out := Series{Timeframe: s.Timeframe, Candles: s.Candles[start:end], Frame: make(Frame, len(s.Frame))}
	for col, values := range s.Frame {
		if len(values) != len(s.Candles) {
			continue
		}
		out.Frame[col] = values[start:end]
	}
	return out
}

// Last 返回最后一根 K 线。
func (s Series) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// At 返回第 i 行的指标值；列缺失、越界或预热期（NaN）返回 false。
func (s Series) At(col Column, i int) (float64, bool) {
	values, ok := s.Frame[col]
	if !ok || i < 0 || i >= len(values) {
		return 0, false
	}
	v := values[i]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Latest 返回最后一行的指标值。
func (s Series) Latest(col Column) (float64, bool) {
	return s.At(col, len(s.Candles)-1)
}
