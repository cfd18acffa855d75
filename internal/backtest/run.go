package backtest

import (
	"time"

	"goldsweep/internal/config"
	"goldsweep/internal/strategy/signal"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunRequest 是发起一次回测的参数；零值字段使用配置中的默认值。
type RunRequest struct {
	Symbol         string         `json:"symbol"`
	Start          int64          `json:"start_ts"`
	End            int64          `json:"end_ts"`
	InitialCapital float64        `json:"initial_capital"`
	Strategy       map[string]any `json:"strategy,omitempty"`
	Notes          string         `json:"notes,omitempty"`
}

// RunConfig 记录本次模拟的完整参数快照，便于重放。
type RunConfig struct {
	Symbol           string                `json:"symbol"`
	ContextTimeframe string                `json:"context_timeframe"`
	EntryTimeframe   string                `json:"entry_timeframe"`
	Start            int64                 `json:"start_ts"`
	End              int64                 `json:"end_ts"`
	Backtest         config.BacktestConfig `json:"backtest"`
	Strategy         config.StrategyConfig `json:"strategy"`
	Notes            string                `json:"notes,omitempty"`
}

// Run 表示一次回测任务及其汇总。
type Run struct {
	ID          string              `json:"id"`
	Symbol      string              `json:"symbol"`
	Status      string              `json:"status"`
	Message     string              `json:"message"`
	Config      RunConfig           `json:"config"`
	Metrics     *Metrics            `json:"metrics,omitempty"`
	GateStats   map[signal.Gate]int `json:"gate_stats,omitempty"`
	Evaluated   int                 `json:"evaluated"`
	Signals     int                 `json:"signals"`
	Abandoned   int                 `json:"abandoned"`
	Trades      int                 `json:"trades"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CompletedAt time.Time           `json:"completed_at"`
}

// Finished 表示任务已进入终态。
func (r Run) Finished() bool {
	return r.Status == RunStatusDone || r.Status == RunStatusFailed
}
