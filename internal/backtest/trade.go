package backtest

import (
	"time"

	"goldsweep/internal/strategy/risk"
	"goldsweep/internal/strategy/signal"
)

// Outcome 是已结算交易的结果。
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
)

// Trade 是一笔在前向窗口内结算的模拟交易（止损或 TP1 触发）。
type Trade struct {
	Direction    risk.Direction `json:"direction"`
	Entry        float64        `json:"entry"`
	Exit         float64        `json:"exit"`
	StopLoss     float64        `json:"stop_loss"`
	TakeProfit   float64        `json:"take_profit"`
	Outcome      Outcome        `json:"outcome"`
	PnL          float64        `json:"pnl"`
	Pips         float64        `json:"pips"`
	BarsHeld     int            `json:"bars_held"`
	OpenedAt     time.Time      `json:"opened_at"`
	ClosedAt     time.Time      `json:"closed_at"`
	PositionSize float64        `json:"lot_size"`
	Confidence   int            `json:"confidence"`
	LevelName    string         `json:"level_name"`
	Session      string         `json:"session"`
	Balance      float64        `json:"balance"`
}

// EquityPoint 是资金曲线上的一个点；除起点外每笔结算交易追加一个。
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Result 是一次回测的完整输出。没有任何成交时 Metrics 为 nil（显式空结果）。
type Result struct {
	Trades      []Trade             `json:"trades"`
	EquityCurve []EquityPoint       `json:"equity_curve"`
	Metrics     *Metrics            `json:"metrics,omitempty"`
	Evaluated   int                 `json:"evaluated"`
	Skipped     int                 `json:"skipped"`
	Signals     int                 `json:"signals"`
	Abandoned   int                 `json:"abandoned"`
	GateStats   map[signal.Gate]int `json:"gate_stats"`
}

// Empty 表示整个回测没有产生任何结算交易。
func (r Result) Empty() bool { return len(r.Trades) == 0 }

// Equity 返回资金曲线的数值序列。
func (r Result) Equity() []float64 {
	out := make([]float64, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		out[i] = p.Equity
	}
	return out
}
