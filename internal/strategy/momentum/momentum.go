package momentum

import (
	"goldsweep/internal/config"
	"goldsweep/internal/market"
	"goldsweep/internal/strategy/risk"
)

// Divergence 是价格与振荡指标的背离类型。
type Divergence string

const (
	NoDivergence Divergence = ""
	Bullish      Divergence = "bullish"
	Bearish      Divergence = "bearish"
)

// DetectDivergence 比较最近 lookback 根的首尾：价格更低的低点 + 指标更高 → bullish（优先判断），
// 价格更高的高点 + 指标更低 → bearish。指标不可用时返回 NoDivergence。
func DetectDivergence(s market.Series, col market.Column, lookback int) Divergence {
	w := s.Tail(lookback)
	n := w.Len()
	if n < 2 {
		return NoDivergence
	}
	first, ok1 := w.At(col, 0)
	last, ok2 := w.At(col, n-1)
	if !ok1 || !ok2 {
		return NoDivergence
	}
	head, tail := w.Candles[0], w.Candles[n-1]
	if tail.Low < head.Low && last > first {
		return Bullish
	}
	if tail.High > head.High && last < first {
		return Bearish
	}
	return NoDivergence
}

// Check 记录方向确认的各项条件，便于日志与诊断。
type Check struct {
	Direction  risk.Direction `json:"direction"`
	RSI        float64        `json:"rsi"`
	StochK     float64        `json:"stoch_k"`
	StochD     float64        `json:"stoch_d"`
	Divergence Divergence     `json:"rsi_divergence,omitempty"`
	RSIOK      bool           `json:"rsi_ok"`
	StochOK    bool           `json:"stoch_ok"`
	PriceOK    bool           `json:"price_ok"`
}

// Confirmed 三项条件同时满足。
func (c Check) Confirmed() bool {
	return c.RSIOK && c.StochOK && c.PriceOK
}

// Confirmer 在入场周期上做方向确认。
type Confirmer struct {
	cfg config.MomentumConfig
}

func NewConfirmer(cfg config.MomentumConfig) *Confirmer {
	return &Confirmer{cfg: cfg}
}

// Confirm 检查 dir 方向的 RSI/背离、随机指标交叉与收盘相对关键位的位置。
func (c *Confirmer) Confirm(s market.Series, dir risk.Direction, price, level float64) Check {
	check := Check{Direction: dir}
	rsi, ok1 := s.Latest(market.ColRSI)
	k, ok2 := s.Latest(market.ColStochK)
	d, ok3 := s.Latest(market.ColStochD)
	if !ok1 || !ok2 || !ok3 {
		return check
	}
	check.RSI, check.StochK, check.StochD = rsi, k, d
	check.Divergence = c.RSIDivergence(s)
	switch dir {
	case risk.Long:
		check.RSIOK = rsi < c.cfg.RSIOversold || check.Divergence == Bullish
		check.StochOK = k > d && k < c.cfg.StochLongMax
		check.PriceOK = price > level
	case risk.Short:
		check.RSIOK = rsi > c.cfg.RSIOverbought || check.Divergence == Bearish
		check.StochOK = k < d && k > c.cfg.StochShortMin
		check.PriceOK = price < level
	}
	return check
}

func (c *Confirmer) RSIDivergence(s market.Series) Divergence {
	return DetectDivergence(s, market.ColRSI, c.cfg.DivergenceLookback)
}

func (c *Confirmer) MACDDivergence(s market.Series) Divergence {
	return DetectDivergence(s, market.ColMACD, c.cfg.DivergenceLookback)
}
