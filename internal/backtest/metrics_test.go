package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goldsweep/internal/strategy/signal"
)

func TestMaxDrawdownPct(t *testing.T) {
	assert.InDelta(t, 18.18, MaxDrawdownPct([]float64{10000, 11000, 9000, 9500}), 0.01)
	assert.Equal(t, 0.0, MaxDrawdownPct([]float64{10000, 10100, 10200}))
	assert.Equal(t, 0.0, MaxDrawdownPct(nil))
	// 峰值按运行最大值跟踪，后续新高之后的回撤单独计算
	assert.InDelta(t, 25.0, MaxDrawdownPct([]float64{100, 90, 120, 90, 110}), 1e-9)
}

func TestComputeMetrics(t *testing.T) {
	trades := []Trade{
		{Outcome: OutcomeWin, PnL: 300},
		{Outcome: OutcomeLoss, PnL: -100},
		{Outcome: OutcomeWin, PnL: 100},
		{Outcome: OutcomeLoss, PnL: -200},
	}
	m := ComputeMetrics(10000, trades, []float64{10000, 10300, 10200, 10300, 10100})
	require.NotNil(t, m)
	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 2, m.Wins)
	assert.Equal(t, 2, m.Losses)
	assert.Equal(t, 0.5, m.WinRate)
	assert.Equal(t, 400.0, m.GrossProfit)
	assert.Equal(t, 300.0, m.GrossLoss)
	assert.InDelta(t, 1.3333, m.ProfitFactor, 1e-4)
	assert.Equal(t, 200.0, m.AvgWin)
	assert.Equal(t, 150.0, m.AvgLoss)
	assert.Equal(t, 25.0, m.Expectancy)
	assert.Equal(t, 100.0, m.TotalPnL)
	assert.Equal(t, 10100.0, m.FinalCapital)
	assert.Equal(t, 1.0, m.TotalReturnPct)
	assert.InDelta(t, 1.9417, m.MaxDrawdownPct, 1e-4)
}

func TestComputeMetricsEmpty(t *testing.T) {
	assert.Nil(t, ComputeMetrics(10000, nil, []float64{10000}))
}

func TestSummaryListsGateRejections(t *testing.T) {
	res := Result{
		Evaluated: 3,
		GateStats: map[signal.Gate]int{signal.GateSweep: 2, signal.GateSession: 1},
		Trades:    []Trade{{Outcome: OutcomeWin, PnL: 10}},
	}
	res.Metrics = ComputeMetrics(1000, res.Trades, []float64{1000, 1010})
	out := res.Summary()
	assert.Contains(t, out, "win rate          100.00%")
	assert.Contains(t, out, "rejected at sweep")
	assert.Contains(t, out, "rejected at session")
}
