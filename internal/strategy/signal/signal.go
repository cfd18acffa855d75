package signal

import (
	"context"
	"time"

	"goldsweep/internal/market"
	"goldsweep/internal/strategy/levels"
	"goldsweep/internal/strategy/regime"
	"goldsweep/internal/strategy/risk"
)

// TakeProfit 是一档止盈及其仓位占比（百分比）。
type TakeProfit struct {
	Price  float64 `json:"price"`
	Weight float64 `json:"weight"`
}

// Signal 是管线产出的完整交易信号，发出后只读。
type Signal struct {
	Direction    risk.Direction `json:"direction"`
	Entry        float64        `json:"entry_price"`
	StopLoss     float64        `json:"stop_loss"`
	TakeProfits  [3]TakeProfit  `json:"take_profits"`
	PositionSize float64        `json:"lot_size"`
	Confidence   int            `json:"confidence"`
	MLConfidence *float64       `json:"ml_confidence,omitempty"`
	Regime       regime.Regime  `json:"regime"`
	RegimeLabel  string         `json:"regime_label"`
	ADX          float64        `json:"adx"`
	LevelName    string         `json:"level_name"`
	LevelPrice   float64        `json:"level_price"`
	Sweep        levels.Sweep   `json:"sweep"`
	Session      string         `json:"session"`
	GeneratedAt  time.Time      `json:"generated_at"`
	Risk         risk.Metrics   `json:"risk"`
}

// TP1 是回测用于结算的第一目标。
func (s Signal) TP1() float64 { return s.TakeProfits[0].Price }

// Gate 标识管线在哪一关拒绝。
type Gate string

const (
	GateNone         Gate = ""
	GateSession      Gate = "session"
	GateRegime       Gate = "regime"
	GateCatalog      Gate = "catalog"
	GateData         Gate = "insufficient_data"
	GateProximity    Gate = "proximity"
	GateSweep        Gate = "sweep"
	GateConfirmation Gate = "confirmation"
	GateStopDistance Gate = "stop_distance"
	GateRiskReward   Gate = "risk_reward"
	GateSizing       Gate = "position_size"
	GateMLFilter     Gate = "ml_filter"
)

// Gates 按管线顺序列出全部拒绝原因。
var Gates = []Gate{
	GateSession, GateRegime, GateCatalog, GateData, GateProximity, GateSweep,
	GateConfirmation, GateStopDistance, GateRiskReward, GateSizing, GateMLFilter,
}

// Decision 是一次评估的结果：要么 Signal 非空，要么 Rejected 给出拒绝关卡。
// 被 ML 过滤否决时 Candidate 保留已构建的信号（含置信度）供日志使用。
type Decision struct {
	Signal    *Signal `json:"signal,omitempty"`
	Candidate *Signal `json:"candidate,omitempty"`
	Rejected  Gate    `json:"rejected,omitempty"`
	Detail    string  `json:"detail,omitempty"`
}

func (d Decision) Emitted() bool { return d.Signal != nil }

// Input 是某个评估时点可见的数据：上下文周期（H4）与入场周期（M15），
// 两者都只包含不晚于评估时点的 K 线。Daily 可选。
type Input struct {
	Context market.Series
	Entry   market.Series
	Daily   []market.Candle
}

// BalanceSource 提供账户余额；出错时管线回退到 default_balance。
type BalanceSource interface {
	CurrentBalance(ctx context.Context) (float64, error)
}

// BalanceFunc 适配普通函数。
type BalanceFunc func(ctx context.Context) (float64, error)

func (f BalanceFunc) CurrentBalance(ctx context.Context) (float64, error) { return f(ctx) }

// Filter 是可选的 ML 置信度过滤器：在信号完整构建后做事后否决。
type Filter interface {
	Evaluate(ctx context.Context, in Input, candidate Signal) (accept bool, confidence float64)
}
