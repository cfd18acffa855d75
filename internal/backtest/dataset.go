package backtest

import (
	"context"
	"time"

	"goldsweep/internal/analysis/indicator"
	"goldsweep/internal/config"
	"goldsweep/internal/market"
)

// Dataset 是一次回测所需的原始 K 线：上下文周期（H4）与入场周期（M15）。
// Start/End（Unix ms，0 表示不限制）在指标计算之后再截取，预热不受区间影响。
type Dataset struct {
	ContextTimeframe string
	Context          []market.Candle
	EntryTimeframe   string
	Entry            []market.Candle
	Start            int64
	End              int64
}

// Series 按指标配置计算两组序列的指标列，再按区间截取。
func (d Dataset) Series(cfg config.IndicatorConfig) (market.Series, market.Series) {
	ctxSeries := indicator.Attach(d.ContextTimeframe, d.Context, cfg)
	entry := indicator.Attach(d.EntryTimeframe, d.Entry, cfg)
	return d.window(ctxSeries), d.window(entry)
}

func (d Dataset) window(s market.Series) market.Series {
	if d.Start > 0 {
		s = s.Since(time.UnixMilli(d.Start))
	}
	if d.End > 0 {
		s = s.Until(time.UnixMilli(d.End))
	}
	return s
}

// RunDataset 计算指标后执行一次模拟。
func (s *Simulator) RunDataset(ctx context.Context, d Dataset) (Result, error) {
	if need := indicator.Lookback(s.strategy.Indicators); s.cfg.WarmupBars < need {
		s.log.Warnf("warmup_bars=%d 小于指标预热所需的 %d 根，前段评估会因指标缺失被拒绝", s.cfg.WarmupBars, need)
	}
	ctxSeries, entry := d.Series(s.strategy.Indicators)
	return s.Run(ctx, ctxSeries, entry)
}
