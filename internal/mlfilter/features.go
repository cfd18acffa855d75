package mlfilter

import (
	"fmt"

	"goldsweep/internal/market"
	"goldsweep/internal/strategy/risk"
	"goldsweep/internal/strategy/signal"
)

// FeatureNames 与 Features.Vector() 的顺序一致，模型端按此顺序读取。
var FeatureNames = []string{
	"h4_rsi", "h4_adx", "h4_macd", "h4_macd_diff", "h4_atr", "h4_volume_ratio", "h4_ema_trend", "h4_bb_position",
	"m15_rsi", "m15_stoch_k", "m15_stoch_d", "m15_macd_diff", "m15_volume_ratio", "m15_stoch_cross",
	"m15_momentum_5", "m15_atr_pct",
	"signal_confidence", "signal_pips_risk", "signal_rr", "signal_long",
}

// Features 是提交给模型的特征向量。
type Features struct {
	values []float64
}

func (f Features) Vector() []float64 { return append([]float64(nil), f.values...) }

// Map 以名称为 key 返回特征。
func (f Features) Map() map[string]float64 {
	out := make(map[string]float64, len(f.values))
	for i, v := range f.values {
		out[FeatureNames[i]] = v
	}
	return out
}

// Extract 从两个周期最后一行指标与候选信号提取特征；任一值不可用时返回错误。
func Extract(in signal.Input, cand signal.Signal) (Features, error) {
	h4, m15 := in.Context, in.Entry
	var values []float64
	var missing []string
	pick := func(s market.Series, col market.Column, name string) float64 {
		v, ok := s.Latest(col)
		if !ok {
			missing = append(missing, name)
		}
		return v
	}

	values = append(values,
		pick(h4, market.ColRSI, "h4_rsi"),
		pick(h4, market.ColADX, "h4_adx"),
		pick(h4, market.ColMACD, "h4_macd"),
		pick(h4, market.ColMACDDiff, "h4_macd_diff"),
		pick(h4, market.ColATR, "h4_atr"),
		pick(h4, market.ColVolumeRatio, "h4_volume_ratio"),
	)
	fast := pick(h4, market.ColEMAFast, "h4_ema_fast")
	slow := pick(h4, market.ColEMASlow, "h4_ema_slow")
	values = append(values, flag(fast > slow))

	upper := pick(h4, market.ColBBUpper, "h4_bb_upper")
	lower := pick(h4, market.ColBBLower, "h4_bb_lower")
	h4Last, _ := h4.Last()
	bbPos := 0.0
	if upper != lower {
		bbPos = (h4Last.Close - lower) / (upper - lower)
	}
	values = append(values, bbPos)

	k := pick(m15, market.ColStochK, "m15_stoch_k")
	d := pick(m15, market.ColStochD, "m15_stoch_d")
	values = append(values,
		pick(m15, market.ColRSI, "m15_rsi"),
		k, d,
		pick(m15, market.ColMACDDiff, "m15_macd_diff"),
		pick(m15, market.ColVolumeRatio, "m15_volume_ratio"),
		flag(k > d),
	)

	n := m15.Len()
	if n < 6 {
		return Features{}, fmt.Errorf("entry series too short for momentum: %d bars", n)
	}
	now, before := m15.Candles[n-1].Close, m15.Candles[n-6].Close
	values = append(values, (now-before)/before)
	atr := pick(m15, market.ColATR, "m15_atr")
	values = append(values, atr/now)

	if len(missing) > 0 {
		return Features{}, fmt.Errorf("missing indicators: %v", missing)
	}

	values = append(values,
		float64(cand.Confidence)/100,
		cand.Risk.PipRisk/30,
		cand.Risk.RewardRisk/4,
		flag(cand.Direction == risk.Long),
	)
	return Features{values: values}, nil
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
