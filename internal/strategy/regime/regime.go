package regime

import (
	"goldsweep/internal/config"
	"goldsweep/internal/market"
)

// Regime 是市场状态标签。
type Regime string

const (
	TrendingBull    Regime = "trending_bull"
	TrendingBear    Regime = "trending_bear"
	Range           Regime = "range"
	BreakoutPending Regime = "breakout_pending"
	Unknown         Regime = "unknown"
)

var descriptions = map[Regime]string{
	TrendingBull:    "Strong uptrend - Look for pullback entries",
	TrendingBear:    "Strong downtrend - Look for rally short entries",
	Range:           "Range-bound - Trade liquidity sweeps at range extremes",
	BreakoutPending: "Low volatility - Breakout imminent",
	Unknown:         "Unable to determine regime",
}

// Description 返回人类可读的状态说明。
func (r Regime) Description() string {
	if d, ok := descriptions[r]; ok {
		return d
	}
	return descriptions[Unknown]
}

// Result 是分类结果及其 ADX。Unknown 时 ADX 为 0。
type Result struct {
	Regime Regime  `json:"regime"`
	ADX    float64 `json:"adx"`
}

// Classifier 只读取序列最后一行的 ADX / EMA / 布林宽度。
type Classifier struct {
	cfg config.RegimeConfig
}

func NewClassifier(cfg config.RegimeConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify 对序列最后一根 K 线分类；任一输入不可用则返回 Unknown。
func (c *Classifier) Classify(s market.Series) Result {
	adx, ok1 := s.Latest(market.ColADX)
	fast, ok2 := s.Latest(market.ColEMAFast)
	slow, ok3 := s.Latest(market.ColEMASlow)
	width, ok4 := s.Latest(market.ColBBWidth)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Result{Regime: Unknown}
	}
	switch {
	case adx > c.cfg.ADXTrending:
		if fast > slow {
			return Result{Regime: TrendingBull, ADX: adx}
		}
		return Result{Regime: TrendingBear, ADX: adx}
	case adx < c.cfg.ADXRanging && width < c.cfg.BBWidthMax:
		return Result{Regime: Range, ADX: adx}
	default:
		return Result{Regime: BreakoutPending, ADX: adx}
	}
}

// IsFavorable 接受除 Unknown 以外的所有状态。
func IsFavorable(r Regime) bool {
	return r != Unknown
}
