package backtest

import (
	"fmt"
	"strings"

	"goldsweep/internal/strategy/signal"
)

// Metrics 汇总收益与风险指标，仅在至少有一笔交易时计算。
type Metrics struct {
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalReturnPct float64 `json:"total_return_pct"`
	TotalTrades    int     `json:"total_trades"`
	Wins           int     `json:"wins"`
	Losses         int     `json:"losses"`
	WinRate        float64 `json:"win_rate"`
	GrossProfit    float64 `json:"gross_profit"`
	GrossLoss      float64 `json:"gross_loss"`
	ProfitFactor   float64 `json:"profit_factor"`
	AvgWin         float64 `json:"avg_win"`
	AvgLoss        float64 `json:"avg_loss"`
	Expectancy     float64 `json:"expectancy"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// ComputeMetrics 由交易列表与资金曲线计算指标；trades 为空时返回 nil。
// WinRate 为 0~1 的小数；没有亏损时 ProfitFactor 为 0。
func ComputeMetrics(initial float64, trades []Trade, equity []float64) *Metrics {
	if len(trades) == 0 {
		return nil
	}
	m := &Metrics{InitialCapital: initial, TotalTrades: len(trades)}
	for _, t := range trades {
		m.TotalPnL += t.PnL
		switch t.Outcome {
		case OutcomeWin:
			m.Wins++
			m.GrossProfit += t.PnL
		case OutcomeLoss:
			m.Losses++
			m.GrossLoss += -t.PnL
		}
	}
	m.FinalCapital = initial + m.TotalPnL
	if initial != 0 {
		m.TotalReturnPct = m.TotalPnL / initial * 100
	}
	m.WinRate = float64(m.Wins) / float64(m.TotalTrades)
	if m.GrossLoss > 0 {
		m.ProfitFactor = m.GrossProfit / m.GrossLoss
	}
	if m.Wins > 0 {
		m.AvgWin = m.GrossProfit / float64(m.Wins)
	}
	if m.Losses > 0 {
		m.AvgLoss = m.GrossLoss / float64(m.Losses)
	}
	m.Expectancy = m.WinRate*m.AvgWin - (1-m.WinRate)*m.AvgLoss
	m.MaxDrawdownPct = MaxDrawdownPct(equity)
	return m
}

// MaxDrawdownPct 返回资金曲线上最大的峰谷回撤百分比，峰值按运行最大值跟踪。
func MaxDrawdownPct(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - v) / peak * 100; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Summary 生成多行文本汇总，供 CLI 用 logger.InfoBlock 输出。
func (r Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "evaluated %d bars (skipped %d), signals %d, abandoned %d\n",
		r.Evaluated, r.Skipped, r.Signals, r.Abandoned)
	if r.Metrics == nil {
		b.WriteString("NO TRADES GENERATED\n")
	} else {
		m := r.Metrics
		fmt.Fprintf(&b, "initial capital   %.2f\n", m.InitialCapital)
		fmt.Fprintf(&b, "final capital     %.2f\n", m.FinalCapital)
		fmt.Fprintf(&b, "total pnl         %.2f (%.2f%%)\n", m.TotalPnL, m.TotalReturnPct)
		fmt.Fprintf(&b, "trades            %d (win %d / loss %d)\n", m.TotalTrades, m.Wins, m.Losses)
		fmt.Fprintf(&b, "win rate          %.2f%%\n", m.WinRate*100)
		fmt.Fprintf(&b, "profit factor     %.2f\n", m.ProfitFactor)
		fmt.Fprintf(&b, "avg win / loss    %.2f / %.2f\n", m.AvgWin, m.AvgLoss)
		fmt.Fprintf(&b, "expectancy        %.2f\n", m.Expectancy)
		fmt.Fprintf(&b, "max drawdown      %.2f%%\n", m.MaxDrawdownPct)
	}
	for _, gate := range signal.Gates {
		if n := r.GateStats[gate]; n > 0 {
			fmt.Fprintf(&b, "rejected at %-18s %d\n", gate, n)
		}
	}
	return b.String()
}
